package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kolide/netcheck/ee/allowedcmd"
)

// privilegeMarkers are substrings the tools we run print when they lack privilege.
var privilegeMarkers = []string{
	"permission denied",
	"operation not permitted",
	"must be root",
	"you must be root",
	"insufficient privilege",
}

// runCommand runs an allowlisted command and classifies any failure. Output is
// returned on failure too, since the tool's own error text is worth logging.
func runCommand(ctx context.Context, probeName, target string, cmdFn allowedcmd.AllowedCommand, args ...string) ([]byte, error) {
	cmd, err := cmdFn(ctx, args...)
	if err != nil {
		return nil, newError(KindUnavailable, probeName, target, nil, err)
	}

	out, err := cmd.CombinedOutput()
	if err == nil {
		return out, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return out, newError(KindUnreachable, probeName, target, out, fmt.Errorf("timed out running %s: %w", cmd.Path, ctx.Err()))
	case errors.Is(err, exec.ErrNotFound), isPermissionError(err, out):
		return out, newError(KindUnavailable, probeName, target, out, fmt.Errorf("running %s: %w", cmd.Path, err))
	default:
		return out, newError(KindUnreachable, probeName, target, out, fmt.Errorf("running %s: %w", cmd.Path, err))
	}
}

func isPermissionError(err error, out []byte) bool {
	lowered := strings.ToLower(string(out) + " " + err.Error())
	for _, marker := range privilegeMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// IPCommand reads interface addresses with `ip -4 -o addr show dev <iface>`.
type IPCommand struct {
	Cmd allowedcmd.AllowedCommand
}

func (i IPCommand) InterfaceAddress(ctx context.Context, iface string) (string, error) {
	out, err := runCommand(ctx, "ip", iface, i.Cmd, "-4", "-o", "addr", "show", "dev", iface)
	if err != nil {
		return "", err
	}

	addr, ok := parseIPAddrOutput(out)
	if !ok {
		return "", newError(KindParse, "ip", iface, out, fmt.Errorf("no IPv4 address assigned to %s", iface))
	}

	return addr, nil
}

// parseIPAddrOutput returns the first address following an `inet` token.
func parseIPAddrOutput(out []byte) (string, bool) {
	fields := strings.Fields(string(out))
	for i := 0; i < len(fields)-1; i++ {
		if fields[i] == "inet" {
			return fields[i+1], true
		}
	}
	return "", false
}

// PingCommand sends echo requests with `ping -c <count> <target>`.
type PingCommand struct {
	Cmd allowedcmd.AllowedCommand
}

func (p PingCommand) Echo(ctx context.Context, target string, count int) ([]byte, error) {
	return runCommand(ctx, "ping", target, p.Cmd, "-c", strconv.Itoa(count), target)
}

// Iperf3Command measures throughput with `iperf3 -c <target> -t <seconds>`. The target
// must be running `iperf3 -s`.
type Iperf3Command struct {
	Cmd allowedcmd.AllowedCommand
}

func (i Iperf3Command) Throughput(ctx context.Context, target string, duration time.Duration) ([]byte, error) {
	return runCommand(ctx, "iperf3", target, i.Cmd, "-c", target, "-t", strconv.Itoa(ThroughputSeconds(duration)))
}

// ThroughputSeconds is how long, in whole seconds, a throughput test of duration runs.
// iperf3 only takes whole seconds, so duration is rounded, with a floor of one.
func ThroughputSeconds(duration time.Duration) int {
	seconds := int(duration.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// FirewallCommand lists rules with iptables, falling back to nft when iptables is not installed.
type FirewallCommand struct {
	Iptables allowedcmd.AllowedCommand
	Nftables allowedcmd.AllowedCommand
}

func (f FirewallCommand) FirewallRules(ctx context.Context) ([]byte, error) {
	out, err := runCommand(ctx, "iptables", "", f.Iptables, "-L", "-n", "-v")
	if err == nil || !errors.Is(err, allowedcmd.ErrCommandNotFound) || f.Nftables == nil {
		return out, err
	}

	return runCommand(ctx, "nft", "", f.Nftables, "list", "ruleset")
}

// SocketCommand lists listening sockets with `ss -tuln`. When ss is not installed
// it uses Fallback, if set.
type SocketCommand struct {
	Cmd      allowedcmd.AllowedCommand
	Fallback SocketLister
}

func (s SocketCommand) ListeningSockets(ctx context.Context) ([]byte, error) {
	out, err := runCommand(ctx, "ss", "", s.Cmd, "-tuln")
	if err == nil || !errors.Is(err, allowedcmd.ErrCommandNotFound) || s.Fallback == nil {
		return out, err
	}

	return s.Fallback.ListeningSockets(ctx)
}

// FallbackAddressLookup uses Primary, and Secondary only when Primary's tool is not installed.
type FallbackAddressLookup struct {
	Primary   AddressLookup
	Secondary AddressLookup
}

func (f FallbackAddressLookup) InterfaceAddress(ctx context.Context, iface string) (string, error) {
	addr, err := f.Primary.InterfaceAddress(ctx, iface)
	if err == nil || !errors.Is(err, allowedcmd.ErrCommandNotFound) || f.Secondary == nil {
		return addr, err
	}

	return f.Secondary.InterfaceAddress(ctx, iface)
}
