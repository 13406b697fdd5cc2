package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/kolide/netcheck/pkg/checkups"
	"github.com/kolide/netcheck/pkg/log/dedup"
	"github.com/oklog/run"
)

func runIPWatch(ctx context.Context, args []string, _, stderr io.Writer) error {
	flagset := newFlagSet("ip-watch", stderr)
	opts := addCommonFlags(flagset, checkups.DefaultIPWatchLog)
	flInterval := flagset.Duration("interval", checkups.DefaultIPWatchInterval, "how often to read the interface address")
	flagset.DurationVar(&opts.dedupWindow, "dedup_window", dedup.DefaultDuplicateLogWindow, "collapse identical stderr log lines seen within this long (0 disables)")

	iface, err := parseFlags(flagset, args)
	if err != nil {
		return err
	}
	if iface == "" {
		iface = checkups.DefaultInterface
	}
	if *flInterval <= 0 {
		return newUsageError("interval must be positive, got %s", *flInterval)
	}

	ctx, slogger, sink, cleanup := prepare(ctx, checkups.IPWatchName, opts, stderr)
	defer cleanup()

	watcher := checkups.NewIPWatcher(checkups.IPWatchConfig{
		Interface: iface,
		Interval:  *flInterval,
		Timeout:   opts.timeout,
	}, addressLookup(), sink, checkups.WithSlogger(slogger))

	return runWatch(ctx, slogger, watcher, make(chan os.Signal, 1))
}

// runWatch runs the poller until it receives a signal on sigChannel or ctx is done.
func runWatch(ctx context.Context, slogger *slog.Logger, watcher *checkups.IPWatcher, sigChannel chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var runGroup run.Group

	sigListener := newSignalListener(sigChannel, cancel, slogger)
	runGroup.Add(sigListener.Execute, sigListener.Interrupt)

	state := watcher.Start(ctx)
	runGroup.Add(func() error {
		return watcher.Run(ctx, state)
	}, func(error) {
		cancel()
	})

	start := time.Now()
	err := runGroup.Run()

	slogger.Log(ctx, slog.LevelInfo,
		"stopped watching interface",
		"interface", state.Interface,
		"last_address", state.LastAddress,
		"ran_for", time.Since(start).String(),
	)

	return err
}
