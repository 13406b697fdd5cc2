package checkups

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kolide/netcheck/pkg/observation"
	"github.com/kolide/netcheck/pkg/probe"
	"github.com/mixer/clock"
)

const (
	DefaultDNSDomain    = "example.com"
	DefaultDNSLog       = "dns_check.log"
	DefaultDNSThreshold = 500 * time.Millisecond
	defaultDNSTimeout   = 10 * time.Second
)

type DNSConfig struct {
	Domain string
	// Threshold is the resolution time, in whole milliseconds, that must be exceeded to warn.
	Threshold time.Duration
	Timeout   time.Duration
}

func DefaultDNSConfig() DNSConfig {
	return DNSConfig{
		Domain:    DefaultDNSDomain,
		Threshold: DefaultDNSThreshold,
		Timeout:   defaultDNSTimeout,
	}
}

// DNSCheck times a single name resolution.
type DNSCheck struct {
	cfg      DNSConfig
	resolver probe.Resolver
	rec      *recorder
	clock    clock.Clock

	status  Status
	summary string
	elapsed time.Duration
}

func NewDNSCheck(cfg DNSConfig, resolver probe.Resolver, sink observation.Sink, opts ...Option) *DNSCheck {
	if cfg.Domain == "" {
		cfg.Domain = DefaultDNSDomain
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultDNSThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDNSTimeout
	}

	o := newOptions(opts)
	return &DNSCheck{
		cfg:      cfg,
		resolver: resolver,
		rec:      newRecorder(DNSCheckName, sink, o),
		clock:    o.clock,
		status:   Unknown,
	}
}

func (d *DNSCheck) Name() string {
	return DNSCheckName
}

func (d *DNSCheck) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := d.clock.Now()
	addrs, err := d.resolver.LookupHost(ctx, d.cfg.Domain)
	d.elapsed = d.clock.Now().Sub(start).Truncate(time.Millisecond)

	if err != nil {
		d.status = Failing
		d.summary = fmt.Sprintf("could not resolve %s: %s", d.cfg.Domain, probe.KindOf(err))
		obs := d.rec.failure(d.cfg.Domain, err).
			With("duration_ms", strconv.FormatInt(d.elapsed.Milliseconds(), 10)).
			With(statusField, d.status.field())
		return errors.Join(fmt.Errorf("resolving %s: %w", d.cfg.Domain, err), d.rec.write(ctx, obs))
	}

	ms := d.elapsed.Milliseconds()
	d.status = Passing
	if ms > d.cfg.Threshold.Milliseconds() {
		d.status = Warning
	}

	result := d.rec.observe(d.cfg.Domain, observation.LevelInfo, "resolved %s in %d ms", d.cfg.Domain, ms).
		With("duration_ms", strconv.FormatInt(ms, 10)).
		With("records", strconv.Itoa(len(addrs))).
		With(statusField, d.status.field()).
		WithRaw([]byte(strings.Join(addrs, "\n")))
	obs := []observation.Observation{result}

	if d.status == Warning {
		obs = append(obs,
			d.rec.observe(d.cfg.Domain, observation.LevelWarn, "resolution took %d ms, over the %d ms threshold", ms, d.cfg.Threshold.Milliseconds()).
				With("duration_ms", strconv.FormatInt(ms, 10)).
				With("threshold_ms", strconv.FormatInt(d.cfg.Threshold.Milliseconds(), 10)),
		)
		d.summary = fmt.Sprintf("resolved %s in %d ms (threshold %d ms)", d.cfg.Domain, ms, d.cfg.Threshold.Milliseconds())
	} else {
		d.summary = fmt.Sprintf("resolved %s in %d ms", d.cfg.Domain, ms)
	}

	if err := d.rec.write(ctx, obs...); err != nil {
		d.status = Erroring
		d.summary = err.Error()
		return err
	}

	return nil
}

func (d *DNSCheck) Status() Status {
	return d.status
}

func (d *DNSCheck) Summary() string {
	return d.summary
}

// Elapsed is the time the last resolution took.
func (d *DNSCheck) Elapsed() time.Duration {
	return d.elapsed
}
