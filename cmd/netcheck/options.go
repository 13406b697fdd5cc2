package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/peterbourgon/ff/v3"
)

// commonOptions are the settings shared by every utility.
type commonOptions struct {
	logPath      string
	dbPath       string
	timeout      time.Duration
	debug        bool
	debugLogFile string
	// dedupWindow collapses repeated stderr log lines. Zero leaves them alone.
	dedupWindow time.Duration
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	flagset := flag.NewFlagSet("netcheck "+name, flag.ContinueOnError)
	flagset.SetOutput(stderr)
	flagset.Usage = commandUsage(flagset, name)
	return flagset
}

func commandUsage(flagset *flag.FlagSet, name string) func() {
	return func() {
		fmt.Fprintf(flagset.Output(), "Usage: netcheck %s [flags] [target]\n\nFlags:\n", name)
		flagset.PrintDefaults()
	}
}

// addCommonFlags registers the shared flags. defaultLogPath is the utility's own log.
func addCommonFlags(flagset *flag.FlagSet, defaultLogPath string) *commonOptions {
	opts := &commonOptions{}
	flagset.StringVar(&opts.logPath, "log_path", defaultLogPath, "append-only observation log")
	flagset.StringVar(&opts.dbPath, "db_path", "", "also store observations in this bbolt database")
	flagset.DurationVar(&opts.timeout, "timeout", 0, "per-probe timeout (0 uses the utility's default)")
	flagset.BoolVar(&opts.debug, "debug", false, "enable debug logging on stderr")
	flagset.StringVar(&opts.debugLogFile, "debug_log_file", "", "also write JSON debug logs to this rotating file")
	return opts
}

// parseFlags parses args with flags, NETCHECK_ environment variables and an optional
// --config file, in that order of precedence. It returns the single optional
// positional target.
func parseFlags(flagset *flag.FlagSet, args []string) (string, error) {
	flagset.String("config", "", "config file (optional)")

	if err := ff.Parse(flagset, args,
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("NETCHECK"),
	); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return "", err
		}
		return "", usageError{err: fmt.Errorf("parsing flags: %w", err)}
	}

	switch flagset.NArg() {
	case 0:
		return "", nil
	case 1:
		return flagset.Arg(0), nil
	default:
		return "", newUsageError("expected at most one target, got %d", flagset.NArg())
	}
}
