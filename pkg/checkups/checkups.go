// Package checkups contains the netcheck utilities. Each one runs one or two probes,
// appends timestamped observations to its log, and checks a single threshold rule.
//
// Single-shot utilities implement Checkup. They report a general status and a short
// summary once Run returns, the same way regardless of whether they were invoked on
// their own or as part of `doctor`. The interface poller is the odd one out: it loops
// until its context is cancelled, so it has its own Run signature.
package checkups

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kolide/netcheck/pkg/log/multislogger"
	"github.com/kolide/netcheck/pkg/observation"
	"github.com/kolide/netcheck/pkg/probe"
	"github.com/mixer/clock"
)

type Status string

const (
	Unknown       Status = "Unknown"
	Erroring      Status = "Error"         // The checkup could not write its observations
	Informational Status = "Informational" // Checkup does not have pass/fail status, information only
	Passing       Status = "Passing"       // Checkup is passing
	Warning       Status = "Warning"       // Threshold rule tripped
	Failing       Status = "Failing"       // Probe failed
)

// Utility names. These double as the `utility` field in observations and bucket names in the store.
const (
	IPWatchName       = "ip_watch"
	DNSCheckName      = "dns_check"
	NetworkHealthName = "network_health"
	FirewallAuditName = "firewall_audit"
	SSLExpiryName     = "ssl_expiry"
)

var errNilPollState = errors.New("poll state is nil")

type Checkup interface {
	Name() string                  // Utility name
	Run(ctx context.Context) error // Run the probes and append observations. Errors mean a probe or the log failed
	Status() Status                // State after Run
	Summary() string               // Short summary string about the status
}

type Option func(*options)

type options struct {
	clock   clock.Clock
	slogger *slog.Logger
}

// WithClock sets the clock used for timestamps, elapsed time and tickers.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithSlogger sets the logger for diagnostic (not observation) logs.
func WithSlogger(slogger *slog.Logger) Option {
	return func(o *options) {
		o.slogger = slogger
	}
}

func newOptions(opts []Option) options {
	o := options{
		clock:   clock.DefaultClock{},
		slogger: multislogger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// recorder stamps observations for one utility and appends them to its sink.
type recorder struct {
	utility string
	clock   clock.Clock
	sink    observation.Sink
	slogger *slog.Logger
}

func newRecorder(utility string, sink observation.Sink, o options) *recorder {
	return &recorder{
		utility: utility,
		clock:   o.clock,
		sink:    sink,
		slogger: o.slogger.With("component", utility),
	}
}

func (r *recorder) observe(target string, level observation.Level, format string, args ...any) observation.Observation {
	return observation.New(r.clock.Now(), r.utility, target, level, fmt.Sprintf(format, args...))
}

// failure builds an error observation, classifying err and carrying the probe's raw output.
func (r *recorder) failure(target string, err error) observation.Observation {
	kind := probe.KindOf(err)
	return r.observe(target, observation.LevelError, "%s", err.Error()).
		With("error_kind", string(kind)).
		WithRaw(probe.OutputOf(err))
}

func (r *recorder) write(ctx context.Context, obs ...observation.Observation) error {
	if err := r.sink.Append(obs...); err != nil {
		r.slogger.Log(ctx, slog.LevelError,
			"could not append observations",
			"count", len(obs),
			"err", err,
		)
		return fmt.Errorf("appending %s observations: %w", r.utility, err)
	}

	for _, o := range obs {
		r.slogger.Log(ctx, slogLevel(o.Level),
			"recorded observation",
			"target", o.Target,
			"observation", o.Message,
		)
	}

	return nil
}

func slogLevel(l observation.Level) slog.Level {
	switch l {
	case observation.LevelWarn:
		return slog.LevelWarn
	case observation.LevelError:
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

func writeSummary(w io.Writer, s Status, name, msg string) {
	fmt.Fprintf(w, "%s\t%s: %s\n", s.Emoji(), name, msg)
}

// RunDoctor runs each checkup in turn, printing a summary line for each, and returns
// the names of the ones that failed.
func RunDoctor(ctx context.Context, checkups []Checkup, w io.Writer, perCheckupTimeout time.Duration) []string {
	failingCheckups := []string{}
	warningCheckups := []string{}

	for _, c := range checkups {
		switch runDoctorCheckup(ctx, c, w, perCheckupTimeout) {
		case Warning:
			warningCheckups = append(warningCheckups, c.Name())
		case Failing, Erroring:
			failingCheckups = append(failingCheckups, c.Name())
		case Unknown, Informational, Passing:
			// No need to print additional information about unknown, informational, or passing checkups
		}
	}

	if len(warningCheckups) > 0 {
		fmt.Fprintf(w, "\nCheckups with warnings:\n")
		for _, n := range warningCheckups {
			fmt.Fprintf(w, "\t* %s\n", n)
		}
		fmt.Fprintf(w, "\n")
	}

	if len(failingCheckups) > 0 {
		fmt.Fprintf(w, "\nCheckups with failures:\n")
		for _, n := range failingCheckups {
			fmt.Fprintf(w, "\t* %s\n", n)
		}
		fmt.Fprintf(w, "\n")
	}

	return failingCheckups
}

func runDoctorCheckup(ctx context.Context, c Checkup, w io.Writer, timeout time.Duration) Status {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Run's error is already reflected in the status and summary
	_ = c.Run(ctx)
	writeSummary(w, c.Status(), c.Name(), c.Summary())

	return c.Status()
}
