//go:build darwin
// +build darwin

package allowedcmd

import (
	"context"
	"os/exec"
)

// Linux-only tools. Callers fall back to native implementations where one exists.
var (
	Ip       = unsupported("ip")
	Iptables = unsupported("iptables")
	Nftables = unsupported("nft")
	Ss       = unsupported("ss")
)

func Iperf3(ctx context.Context, arg ...string) (*exec.Cmd, error) {
	return firstValidatedCommand(ctx, []string{"/opt/homebrew/bin/iperf3", "/usr/local/bin/iperf3"}, arg...)
}

func Ping(ctx context.Context, arg ...string) (*exec.Cmd, error) {
	return validatedCommand(ctx, "/sbin/ping", arg...)
}
