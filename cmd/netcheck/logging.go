package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kolide/netcheck/pkg/log/dedup"
	"github.com/kolide/netcheck/pkg/log/locallogger"
	"github.com/kolide/netcheck/pkg/log/multislogger"
	slogmulti "github.com/samber/slog-multi"
)

// newSlogger builds the diagnostic logger: text on stderr, plus a rotating JSON
// file when asked for. Repeated stderr lines are collapsed when opts.dedupWindow
// is set. The returned context carries the utility and run id, which every log
// line picks up.
func newSlogger(ctx context.Context, utility string, opts *commonOptions, stderr io.Writer) (context.Context, *multislogger.MultiSlogger, func()) {
	level := slog.LevelWarn
	if opts.debug {
		level = slog.LevelDebug
	}

	var stderrHandler slog.Handler = slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: level,
	})
	if opts.dedupWindow > 0 {
		stderrHandler = slogmulti.
			Pipe(slogmulti.NewHandleInlineMiddleware(dedup.New(opts.dedupWindow).Middleware)).
			Handler(stderrHandler)
	}

	slogger := multislogger.New(stderrHandler)

	cleanup := func() {}
	if opts.debugLogFile != "" {
		ll := locallogger.New(opts.debugLogFile, slog.LevelDebug)
		slogger.AddHandler(ll.SlogHandler())
		cleanup = func() {
			_ = ll.Close()
		}
	}

	ctx = context.WithValue(ctx, multislogger.UtilityKey, utility)
	ctx = context.WithValue(ctx, multislogger.RunIdKey, uuid.NewString())

	return ctx, slogger, cleanup
}
