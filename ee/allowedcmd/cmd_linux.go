//go:build linux
// +build linux

package allowedcmd

import (
	"context"
	"os/exec"
)

func Ip(ctx context.Context, arg ...string) (*exec.Cmd, error) {
	return firstValidatedCommand(ctx, []string{"/usr/sbin/ip", "/sbin/ip", "/usr/bin/ip", "/bin/ip"}, arg...)
}

func Iperf3(ctx context.Context, arg ...string) (*exec.Cmd, error) {
	return firstValidatedCommand(ctx, []string{"/usr/bin/iperf3", "/usr/local/bin/iperf3"}, arg...)
}

func Iptables(ctx context.Context, arg ...string) (*exec.Cmd, error) {
	return firstValidatedCommand(ctx, []string{"/usr/sbin/iptables", "/sbin/iptables"}, arg...)
}

func Nftables(ctx context.Context, arg ...string) (*exec.Cmd, error) {
	return firstValidatedCommand(ctx, []string{"/usr/sbin/nft", "/sbin/nft"}, arg...)
}

func Ping(ctx context.Context, arg ...string) (*exec.Cmd, error) {
	return firstValidatedCommand(ctx, []string{"/usr/bin/ping", "/bin/ping", "/usr/sbin/ping"}, arg...)
}

func Ss(ctx context.Context, arg ...string) (*exec.Cmd, error) {
	return firstValidatedCommand(ctx, []string{"/usr/bin/ss", "/usr/sbin/ss", "/bin/ss", "/sbin/ss"}, arg...)
}
