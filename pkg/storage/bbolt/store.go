// Package agentbbolt keeps a structured copy of observations in a local bbolt
// database, one bucket per utility, for downstream ingestion and `netcheck history`.
package agentbbolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kolide/netcheck/pkg/observation"
	"go.etcd.io/bbolt"
)

// NoDbError is an error type that represents a nil bbolt database
type NoDbError struct{}

func (e NoDbError) Error() string {
	return "bbolt db is nil"
}

// NoBucketError is an error type that represents a nonexistent bucket
type NoBucketError struct {
	bucketName string
}

func (e NoBucketError) Error() string {
	return fmt.Sprintf("%s bucket does not exist", e.bucketName)
}

func NewNoBucketError(bucketName string) NoBucketError {
	return NoBucketError{bucketName: bucketName}
}

const (
	// lockTimeout bounds how long Open waits on another netcheck process holding the db.
	lockTimeout = 5 * time.Second
	// writeLockTimeout bounds each per-write open. Writers hold the lock for milliseconds.
	writeLockTimeout = time.Second
)

// ObservationStore is either held open (Open) or opened for the length of each
// write (NewPerWrite).
type ObservationStore struct {
	slogger *slog.Logger
	path    string
	db      *bbolt.DB
}

// Open opens (creating if needed) the database at path and holds it, and its file
// lock, until Close.
func Open(ctx context.Context, slogger *slog.Logger, path string) (*ObservationStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db at %s: %w", path, err)
	}

	slogger.Log(ctx, slog.LevelDebug,
		"opened observation store",
		"path", path,
	)

	return &ObservationStore{
		slogger: slogger.With("component", "observation_store"),
		path:    path,
		db:      db,
	}, nil
}

// NewPerWrite returns a store that opens the database at path only inside Append, so
// long-running utilities do not keep other netcheck processes out between writes.
func NewPerWrite(slogger *slog.Logger, path string) *ObservationStore {
	return &ObservationStore{
		slogger: slogger.With("component", "observation_store"),
		path:    path,
	}
}

func (s *ObservationStore) Path() string {
	return s.path
}

func (s *ObservationStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// update runs fn in a read-write transaction, opening the database first if the
// store is not held open.
func (s *ObservationStore) update(fn func(tx *bbolt.Tx) error) error {
	if s == nil || (s.db == nil && s.path == "") {
		return NoDbError{}
	}

	if s.db != nil {
		return s.db.Update(fn)
	}

	db, err := bbolt.Open(s.path, 0600, &bbolt.Options{Timeout: writeLockTimeout})
	if err != nil {
		return fmt.Errorf("opening bbolt db at %s: %w", s.path, err)
	}

	if err := db.Update(fn); err != nil {
		_ = db.Close()
		return err
	}

	return db.Close()
}

// Append stores each observation under its ID in the bucket named for its utility.
// IDs are time-ordered, so a bucket iterates oldest first.
func (s *ObservationStore) Append(obs ...observation.Observation) error {
	return s.update(func(tx *bbolt.Tx) error {
		for _, o := range obs {
			if o.Utility == "" || o.ID == "" {
				return fmt.Errorf("observation needs a utility and an id to be stored")
			}

			b, err := tx.CreateBucketIfNotExists([]byte(o.Utility))
			if err != nil {
				return fmt.Errorf("creating bucket: %w", err)
			}

			raw, err := json.Marshal(o)
			if err != nil {
				return fmt.Errorf("marshalling observation: %w", err)
			}

			if err := b.Put([]byte(o.ID), raw); err != nil {
				return fmt.Errorf("error setting %s key: %w", o.ID, err)
			}
		}

		return nil
	})
}

// ForEach provides a read-only iterator over the observations stored for utility, oldest first.
// It needs a store from Open.
func (s *ObservationStore) ForEach(utility string, fn func(observation.Observation) error) error {
	if s == nil || s.db == nil {
		return NoDbError{}
	}

	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(utility))
		if b == nil {
			return NewNoBucketError(utility)
		}

		return b.ForEach(func(k, v []byte) error {
			var o observation.Observation
			if err := json.Unmarshal(v, &o); err != nil {
				// Log errors but continue processing the remaining observations
				s.slogger.Log(context.TODO(), slog.LevelError,
					"failed to unmarshal stored observation",
					"key", string(k),
					"err", err,
				)
				return nil
			}
			return fn(o)
		})
	})
}

func (s *ObservationStore) Count(utility string) (int, error) {
	if s == nil || s.db == nil {
		return 0, NoDbError{}
	}

	var numKeys int
	if err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(utility))
		if b == nil {
			return NewNoBucketError(utility)
		}

		numKeys = b.Stats().KeyN
		return nil
	}); err != nil {
		var noBucket NoBucketError
		if errors.As(err, &noBucket) {
			return 0, nil
		}
		s.slogger.Log(context.TODO(), slog.LevelError,
			"err counting from bucket",
			"err", err,
		)
		return 0, err
	}

	return numKeys, nil
}
