// Package dedup provides a slog-multi inline middleware that suppresses repeats of
// the same diagnostic record. A long-running poller that keeps failing the same way
// would otherwise write an identical line to stderr every interval.
//
// The first occurrence of a record passes through. Identical records (same level,
// message and attributes, ignoring time and source) seen within the window are
// dropped. The first repeat after the window has elapsed passes through carrying
// duplicate_count, first_seen and last_seen, and starts a new window.
package dedup

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mixer/clock"
)

const (
	DefaultDuplicateLogWindow = 5 * time.Minute
	defaultMaxCacheSize       = 500
)

// excludedHashFields are the attribute keys that should not affect the content hash.
var excludedHashFields = map[string]bool{
	"time":   true,
	"source": true,
}

// logEntry tracks one distinct record.
type logEntry struct {
	firstSeen  time.Time
	lastSeen   time.Time
	suppressed int
}

type Option func(*Engine)

// WithClock sets the clock used to measure windows.
func WithClock(c clock.Clock) Option {
	return func(d *Engine) {
		d.clock = c
	}
}

// WithMaxCacheSize bounds how many distinct records are tracked.
func WithMaxCacheSize(n int) Option {
	return func(d *Engine) {
		d.maxCacheSize = n
	}
}

// Engine holds dedup state. It is safe for concurrent use.
type Engine struct {
	window       time.Duration
	maxCacheSize int
	clock        clock.Clock

	lock  sync.Mutex
	cache map[string]*logEntry
}

// New returns an engine suppressing repeats within window. A window <= 0 disables dedup.
func New(window time.Duration, opts ...Option) *Engine {
	d := &Engine{
		window:       window,
		maxCacheSize: defaultMaxCacheSize,
		clock:        clock.DefaultClock{},
		cache:        make(map[string]*logEntry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Middleware matches slog-multi's inline middleware signature.
func (d *Engine) Middleware(ctx context.Context, record slog.Record, next func(context.Context, slog.Record) error) error {
	if d.window <= 0 {
		return next(ctx, record)
	}

	hash := hashRecord(record)
	now := d.clock.Now()

	var (
		pass       bool
		suppressed int
		firstSeen  time.Time
		lastSeen   time.Time
	)

	func() {
		d.lock.Lock()
		defer d.lock.Unlock()

		entry, exists := d.cache[hash]
		if !exists {
			d.evictIfFull(now)
			d.cache[hash] = &logEntry{firstSeen: now, lastSeen: now}
			pass = true
			return
		}

		if now.Sub(entry.firstSeen) < d.window {
			entry.suppressed++
			entry.lastSeen = now
			return
		}

		suppressed, firstSeen, lastSeen = entry.suppressed, entry.firstSeen, entry.lastSeen
		d.cache[hash] = &logEntry{firstSeen: now, lastSeen: now}
		pass = true
	}()

	if !pass {
		return nil
	}

	if suppressed > 0 {
		record = record.Clone()
		record.AddAttrs(
			slog.Int("duplicate_count", suppressed),
			slog.Time("first_seen", firstSeen),
			slog.Time("last_seen", lastSeen),
		)
	}

	return next(ctx, record)
}

// evictIfFull drops expired entries, then the oldest ones, to make room. Caller holds the lock.
func (d *Engine) evictIfFull(now time.Time) {
	if len(d.cache) < d.maxCacheSize {
		return
	}

	for hash, entry := range d.cache {
		if now.Sub(entry.lastSeen) >= d.window {
			delete(d.cache, hash)
		}
	}

	if len(d.cache) < d.maxCacheSize {
		return
	}

	type hashTime struct {
		hash     string
		lastSeen time.Time
	}
	items := make([]hashTime, 0, len(d.cache))
	for h, e := range d.cache {
		items = append(items, hashTime{hash: h, lastSeen: e.lastSeen})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].lastSeen.Before(items[j].lastSeen) })

	for i := 0; i <= len(items)-d.maxCacheSize; i++ {
		delete(d.cache, items[i].hash)
	}
}

// hashRecord creates a hash of the log record content, excluding time and source information.
func hashRecord(record slog.Record) string {
	pairs := make([]string, 0, record.NumAttrs())
	record.Attrs(func(attr slog.Attr) bool {
		if !excludedHashFields[attr.Key] {
			pairs = append(pairs, attr.Key+"="+attr.Value.String())
		}
		return true
	})
	sort.Strings(pairs)

	h := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%s", record.Level, record.Message, strings.Join(pairs, "\x00"))))
	return fmt.Sprintf("%x", h)
}
