package checkups

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kolide/netcheck/pkg/observation"
	"github.com/kolide/netcheck/pkg/probe"
)

const (
	DefaultFirewallLog     = "firewall_audit.log"
	defaultExposureTimeout = 15 * time.Second
	// exposureTarget stands in for the target, since the audit is of this host.
	exposureTarget = "localhost"
)

type ExposureConfig struct {
	Timeout time.Duration
}

func DefaultExposureConfig() ExposureConfig {
	return ExposureConfig{Timeout: defaultExposureTimeout}
}

// ExposureAudit snapshots the firewall rules and listening sockets. There is no policy
// evaluation and no diffing; each run is a point-in-time record.
type ExposureAudit struct {
	cfg      ExposureConfig
	firewall probe.FirewallLister
	sockets  probe.SocketLister
	rec      *recorder

	status  Status
	summary string
}

func NewExposureAudit(cfg ExposureConfig, firewall probe.FirewallLister, sockets probe.SocketLister, sink observation.Sink, opts ...Option) *ExposureAudit {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultExposureTimeout
	}

	return &ExposureAudit{
		cfg:      cfg,
		firewall: firewall,
		sockets:  sockets,
		rec:      newRecorder(FirewallAuditName, sink, newOptions(opts)),
		status:   Unknown,
	}
}

func (e *ExposureAudit) Name() string {
	return FirewallAuditName
}

func (e *ExposureAudit) Run(ctx context.Context) error {
	var probeErrs []error
	var obs []observation.Observation

	snapshot := func(name string, fn func(context.Context) ([]byte, error)) {
		ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()

		out, err := fn(ctx)
		if err != nil {
			probeErrs = append(probeErrs, fmt.Errorf("listing %s: %w", name, err))
			obs = append(obs, e.rec.failure(exposureTarget, err).With("section", name))
			return
		}

		obs = append(obs,
			e.rec.observe(exposureTarget, observation.LevelInfo, "%s snapshot", name).
				With("section", name).
				WithRaw(out),
		)
	}

	snapshot("firewall", e.firewall.FirewallRules)
	snapshot("sockets", e.sockets.ListeningSockets)

	if len(probeErrs) == 0 {
		e.status = Informational
		e.summary = "recorded firewall rules and listening sockets"
	} else {
		e.status = Failing
		e.summary = errors.Join(probeErrs...).Error()
	}

	for i := range obs {
		obs[i] = obs[i].With(statusField, e.status.field())
	}

	if err := e.rec.write(ctx, obs...); err != nil {
		if len(probeErrs) == 0 {
			e.status = Erroring
			e.summary = err.Error()
		}
		probeErrs = append(probeErrs, err)
	}

	return errors.Join(probeErrs...)
}

func (e *ExposureAudit) Status() Status {
	return e.status
}

func (e *ExposureAudit) Summary() string {
	return e.summary
}
