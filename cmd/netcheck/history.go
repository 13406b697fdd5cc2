package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kolide/netcheck/pkg/checkups"
	"github.com/kolide/netcheck/pkg/observation"
	agentbbolt "github.com/kolide/netcheck/pkg/storage/bbolt"
)

var knownUtilities = []string{
	checkups.IPWatchName,
	checkups.DNSCheckName,
	checkups.NetworkHealthName,
	checkups.FirewallAuditName,
	checkups.SSLExpiryName,
}

// utilityName accepts either the command name (dns-check) or the utility name (dns_check).
func utilityName(arg string) (string, bool) {
	name := strings.ReplaceAll(arg, "-", "_")
	for _, u := range knownUtilities {
		if u == name {
			return u, true
		}
	}
	return "", false
}

func runHistory(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flagset := newFlagSet("history", stderr)
	opts := &commonOptions{}
	flagset.StringVar(&opts.dbPath, "db_path", "", "bbolt database observations were stored in")
	flagset.BoolVar(&opts.debug, "debug", false, "enable debug logging on stderr")
	flLevel := flagset.String("level", "", "only print observations at this level (info, warn, error)")

	arg, err := parseFlags(flagset, args)
	if err != nil {
		return err
	}
	if arg == "" {
		return newUsageError("history needs a utility, one of: %s", strings.Join(knownUtilities, ", "))
	}
	utility, ok := utilityName(arg)
	if !ok {
		return newUsageError("unknown utility %q, expected one of: %s", arg, strings.Join(knownUtilities, ", "))
	}
	if opts.dbPath == "" {
		return newUsageError("history needs --db_path")
	}

	// Opening would create an empty database, which is never what was meant
	if _, err := os.Stat(opts.dbPath); err != nil {
		return fmt.Errorf("reading observation store: %w", err)
	}

	ctx, ms, closeLogs := newSlogger(ctx, "history", opts, stderr)
	defer closeLogs()

	store, err := agentbbolt.Open(ctx, ms.Logger, opts.dbPath)
	if err != nil {
		return fmt.Errorf("opening observation store: %w", err)
	}
	defer store.Close()

	count, err := store.Count(utility)
	if err != nil {
		return fmt.Errorf("counting %s observations: %w", utility, err)
	}
	if count == 0 {
		fmt.Fprintf(stderr, "no %s observations stored in %s\n", utility, opts.dbPath)
		return nil
	}

	return store.ForEach(utility, func(o observation.Observation) error {
		if *flLevel != "" && string(o.Level) != *flLevel {
			return nil
		}

		b, err := o.MarshalText()
		if err != nil {
			return fmt.Errorf("formatting observation %s: %w", o.ID, err)
		}
		_, err = stdout.Write(b)
		return err
	})
}
