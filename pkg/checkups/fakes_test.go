package checkups

import (
	"context"
	"crypto/x509"
	"errors"
	"sync"
	"time"

	"github.com/kolide/netcheck/pkg/observation"
	"github.com/kolide/netcheck/pkg/probe"
	"github.com/mixer/clock"
)

var testNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

type memorySink struct {
	mu  sync.Mutex
	obs []observation.Observation
}

func (m *memorySink) Append(obs ...observation.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs = append(m.obs, obs...)
	return nil
}

func (m *memorySink) all() []observation.Observation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]observation.Observation(nil), m.obs...)
}

func (m *memorySink) withLevel(level observation.Level) []observation.Observation {
	var matched []observation.Observation
	for _, o := range m.all() {
		if o.Level == level {
			matched = append(matched, o)
		}
	}
	return matched
}

type brokenSink struct{}

func (brokenSink) Append(...observation.Observation) error {
	return errors.New("disk full")
}

// read is one scripted result from sequenceLookup.
type read struct {
	addr string
	err  error
}

// sequenceLookup hands back reads in order. Once exhausted it keeps returning the
// last read.
type sequenceLookup struct {
	mu    sync.Mutex
	reads []read
	calls int
}

func (s *sequenceLookup) InterfaceAddress(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	if i >= len(s.reads) {
		i = len(s.reads) - 1
	}
	s.calls++

	return s.reads[i].addr, s.reads[i].err
}

func (s *sequenceLookup) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// slowResolver advances a mock clock by delay before answering.
type slowResolver struct {
	clock *clock.MockClock
	delay time.Duration
	addrs []string
	err   error
}

func (s slowResolver) LookupHost(_ context.Context, _ string) ([]string, error) {
	s.clock.AddTime(s.delay)
	return s.addrs, s.err
}

type staticCert struct {
	notAfter time.Time
	err      error
}

func (s staticCert) PeerCertificate(context.Context, string, int) (*x509.Certificate, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &x509.Certificate{NotAfter: s.notAfter}, nil
}

type staticOutput struct {
	out []byte
	err error
}

func (s staticOutput) Echo(context.Context, string, int) ([]byte, error) { return s.out, s.err }
func (s staticOutput) Throughput(context.Context, string, time.Duration) ([]byte, error) {
	return s.out, s.err
}
func (s staticOutput) FirewallRules(context.Context) ([]byte, error)    { return s.out, s.err }
func (s staticOutput) ListeningSockets(context.Context) ([]byte, error) { return s.out, s.err }

type throughputFunc func(ctx context.Context, target string, d time.Duration) ([]byte, error)

func (f throughputFunc) Throughput(ctx context.Context, target string, d time.Duration) ([]byte, error) {
	return f(ctx, target, d)
}

func probeError(kind probe.Kind, name, target, output string) error {
	return &probe.Error{
		Kind:   kind,
		Probe:  name,
		Target: target,
		Output: []byte(output),
		Err:    errors.New(output),
	}
}
