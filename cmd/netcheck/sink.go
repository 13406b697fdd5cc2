package main

import (
	"context"
	"log/slog"

	"github.com/kolide/netcheck/pkg/observation"
	agentbbolt "github.com/kolide/netcheck/pkg/storage/bbolt"
)

// newSink returns the utility's log file and, when dbPath is set, a copy in the
// observation store. The log file is written first and is the record of truth.
func newSink(ctx context.Context, slogger *slog.Logger, logPath, dbPath string) observation.Sink {
	fileLog := observation.NewFileLog(logPath)
	if dbPath == "" {
		return fileLog
	}

	return observation.MultiSink(fileLog, newStoreSink(ctx, slogger, dbPath))
}

// storeSink writes to the observation store without failing the utility. Another
// netcheck process may be holding the database, and a missed copy is only logged.
type storeSink struct {
	ctx     context.Context
	slogger *slog.Logger
	store   *agentbbolt.ObservationStore
}

func newStoreSink(ctx context.Context, slogger *slog.Logger, dbPath string) *storeSink {
	return &storeSink{
		ctx:     ctx,
		slogger: slogger,
		store:   agentbbolt.NewPerWrite(slogger, dbPath),
	}
}

func (s *storeSink) Append(obs ...observation.Observation) error {
	if err := s.store.Append(obs...); err != nil {
		s.slogger.Log(s.ctx, slog.LevelWarn,
			"could not copy observations to store, log file still has them",
			"db_path", s.store.Path(),
			"count", len(obs),
			"err", err,
		)
	}

	return nil
}
