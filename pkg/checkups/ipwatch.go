package checkups

import (
	"context"
	"log/slog"
	"time"

	"github.com/kolide/netcheck/pkg/observation"
	"github.com/kolide/netcheck/pkg/probe"
	"github.com/mixer/clock"
)

const (
	DefaultInterface       = "eth0"
	DefaultIPWatchLog      = "ip_changes.log"
	DefaultIPWatchInterval = 10 * time.Second
	defaultIPWatchTimeout  = 5 * time.Second
)

type IPWatchConfig struct {
	Interface string
	Interval  time.Duration
	// Timeout bounds each address read.
	Timeout time.Duration
}

func DefaultIPWatchConfig() IPWatchConfig {
	return IPWatchConfig{
		Interface: DefaultInterface,
		Interval:  DefaultIPWatchInterval,
		Timeout:   defaultIPWatchTimeout,
	}
}

// PollState is what the poller remembers between reads. Known is false until the
// first successful read.
type PollState struct {
	Interface   string
	LastAddress string
	Known       bool
}

// IPWatcher polls an interface's address and logs every change.
type IPWatcher struct {
	cfg    IPWatchConfig
	lookup probe.AddressLookup
	rec    *recorder
	clock  clock.Clock
}

func NewIPWatcher(cfg IPWatchConfig, lookup probe.AddressLookup, sink observation.Sink, opts ...Option) *IPWatcher {
	if cfg.Interface == "" {
		cfg.Interface = DefaultInterface
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultIPWatchInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultIPWatchTimeout
	}

	o := newOptions(opts)
	return &IPWatcher{
		cfg:    cfg,
		lookup: lookup,
		rec:    newRecorder(IPWatchName, sink, o),
		clock:  o.clock,
	}
}

func (w *IPWatcher) Name() string {
	return IPWatchName
}

// Start reads the current address to use as the baseline. A failed read is logged
// and leaves the state unknown, so the first successful poll becomes the baseline.
func (w *IPWatcher) Start(ctx context.Context) *PollState {
	state := &PollState{Interface: w.cfg.Interface}

	addr, err := w.read(ctx)
	if err != nil {
		w.logFailure(ctx, err)
		return state
	}

	state.LastAddress = addr
	state.Known = true

	w.rec.slogger.Log(ctx, slog.LevelInfo,
		"watching interface",
		"interface", w.cfg.Interface,
		"address", addr,
		"interval", w.cfg.Interval.String(),
	)

	return state
}

// Run polls every interval until ctx is cancelled. Failed reads are logged and
// never end the loop. Run only returns an error if it is given no state.
func (w *IPWatcher) Run(ctx context.Context, state *PollState) error {
	if state == nil {
		return errNilPollState
	}

	ticker := w.clock.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.rec.slogger.Log(ctx, slog.LevelDebug,
				"interface watch stopped",
				"interface", state.Interface,
			)
			return nil
		case <-ticker.Chan():
			w.Poll(ctx, state)
		}
	}
}

// Poll does a single read, comparing it to and updating state.
func (w *IPWatcher) Poll(ctx context.Context, state *PollState) {
	addr, err := w.read(ctx)
	if err != nil {
		// Cancellation mid-read is shutdown, not a failed poll
		if ctx.Err() != nil {
			return
		}
		w.logFailure(ctx, err)
		return
	}

	if !state.Known {
		state.LastAddress = addr
		state.Known = true
		w.rec.slogger.Log(ctx, slog.LevelInfo,
			"established interface baseline",
			"interface", state.Interface,
			"address", addr,
		)
		return
	}

	if addr == state.LastAddress {
		return
	}

	obs := w.rec.observe(state.Interface, observation.LevelInfo, "changed from %s to %s", state.LastAddress, addr).
		With("old", state.LastAddress).
		With("new", addr).
		With(statusField, Informational.field())

	// The change happened whether or not we could write it down
	state.LastAddress = addr
	_ = w.rec.write(ctx, obs)
}

func (w *IPWatcher) read(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	return w.lookup.InterfaceAddress(ctx, w.cfg.Interface)
}

func (w *IPWatcher) logFailure(ctx context.Context, err error) {
	obs := w.rec.failure(w.cfg.Interface, err).With(statusField, Failing.field())
	_ = w.rec.write(ctx, obs)
}
