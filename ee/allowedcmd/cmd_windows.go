//go:build windows
// +build windows

package allowedcmd

import (
	"context"
	"os/exec"
)

var (
	Ip       = unsupported("ip")
	Iptables = unsupported("iptables")
	Nftables = unsupported("nft")
	Ss       = unsupported("ss")
	Ping     = unsupported("ping")
)

func Iperf3(ctx context.Context, arg ...string) (*exec.Cmd, error) {
	return validatedCommand(ctx, `C:\Program Files\iperf3\iperf3.exe`, arg...)
}
