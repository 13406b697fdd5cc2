package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/kolide/kit/version"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks errors caused by how netcheck was invoked, rather than by a probe.
type usageError struct {
	err error
}

func (u usageError) Error() string {
	return u.err.Error()
}

func (u usageError) Unwrap() error {
	return u.err
}

func newUsageError(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

type subcommand struct {
	run     func(ctx context.Context, args []string, stdout, stderr io.Writer) error
	summary string
}

var subcommands = map[string]subcommand{
	"ip-watch":       {runIPWatch, "poll an interface and log address changes"},
	"dns-check":      {runDNSCheck, "time a name resolution"},
	"network-health": {runNetworkHealth, "record ping and iperf3 output for a host"},
	"firewall-audit": {runFirewallAudit, "snapshot firewall rules and listening sockets"},
	"ssl-expiry":     {runSSLExpiry, "check how long a TLS certificate has left"},
	"doctor":         {runDoctor, "run every single-shot check with its defaults"},
	"history":        {runHistory, "print stored observations for a utility"},
}

func main() {
	os.Exit(runNetcheck(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func runNetcheck(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}

	switch args[0] {
	case "version", "--version", "-version":
		version.PrintFull()
		return exitOK
	case "help", "--help", "-help", "-h":
		printUsage(stdout)
		return exitOK
	}

	sc, ok := subcommands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr)
		return exitUsage
	}

	err := sc.run(ctx, args[1:], stdout, stderr)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.As(err, &usageError{}):
		fmt.Fprintf(stderr, "netcheck %s: %v\n", args[0], err)
		return exitUsage
	default:
		fmt.Fprintf(stderr, "netcheck %s: %v\n", args[0], err)
		return exitFailure
	}
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(subcommands))
	for name := range subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Usage: netcheck <command> [flags] [target]\n\nCommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-16s%s\n", name, subcommands[name].summary)
	}
	b.WriteString("  version         print version information\n")
	b.WriteString("\nRun `netcheck <command> -h` for a command's flags.\n")

	fmt.Fprint(w, b.String())
}
