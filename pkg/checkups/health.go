package checkups

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kolide/netcheck/pkg/observation"
	"github.com/kolide/netcheck/pkg/probe"
)

const (
	DefaultHealthTarget        = "google.com"
	DefaultHealthLog           = "network_health.log"
	DefaultEchoCount           = 5
	DefaultThroughputDuration  = 5 * time.Second
	defaultEchoTimeout         = 30 * time.Second
	throughputTimeoutAllowance = 15 * time.Second
)

type HealthConfig struct {
	Target             string
	EchoCount          int
	ThroughputDuration time.Duration
	// Timeout bounds each probe. Zero picks a default sized to the probe.
	Timeout time.Duration
}

func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Target:             DefaultHealthTarget,
		EchoCount:          DefaultEchoCount,
		ThroughputDuration: DefaultThroughputDuration,
	}
}

// NetworkHealth records raw latency and throughput probe output. There is no threshold.
type NetworkHealth struct {
	cfg        HealthConfig
	echo       probe.EchoTester
	throughput probe.ThroughputTester
	rec        *recorder

	status  Status
	summary string
}

func NewNetworkHealth(cfg HealthConfig, echo probe.EchoTester, throughput probe.ThroughputTester, sink observation.Sink, opts ...Option) *NetworkHealth {
	if cfg.Target == "" {
		cfg.Target = DefaultHealthTarget
	}
	if cfg.EchoCount <= 0 {
		cfg.EchoCount = DefaultEchoCount
	}
	if cfg.ThroughputDuration <= 0 {
		cfg.ThroughputDuration = DefaultThroughputDuration
	}

	return &NetworkHealth{
		cfg:        cfg,
		echo:       echo,
		throughput: throughput,
		rec:        newRecorder(NetworkHealthName, sink, newOptions(opts)),
		status:     Unknown,
	}
}

func (n *NetworkHealth) Name() string {
	return NetworkHealthName
}

func (n *NetworkHealth) echoTimeout() time.Duration {
	if n.cfg.Timeout > 0 {
		return n.cfg.Timeout
	}
	return defaultEchoTimeout
}

func (n *NetworkHealth) throughputTimeout() time.Duration {
	if n.cfg.Timeout > 0 {
		return n.cfg.Timeout
	}
	return n.cfg.ThroughputDuration + throughputTimeoutAllowance
}

// Run runs both probes, even if the first fails, and appends each result.
func (n *NetworkHealth) Run(ctx context.Context) error {
	var probeErrs []error
	var obs []observation.Observation

	echoCtx, cancel := context.WithTimeout(ctx, n.echoTimeout())
	out, err := n.echo.Echo(echoCtx, n.cfg.Target, n.cfg.EchoCount)
	cancel()
	if err != nil {
		probeErrs = append(probeErrs, fmt.Errorf("echo test: %w", err))
		obs = append(obs, n.rec.failure(n.cfg.Target, err).With("probe", "echo"))
	} else {
		obs = append(obs,
			n.rec.observe(n.cfg.Target, observation.LevelInfo, "echo test to %s", n.cfg.Target).
				With("probe", "echo").
				With("count", strconv.Itoa(n.cfg.EchoCount)).
				WithRaw(out),
		)
	}

	tpCtx, cancel := context.WithTimeout(ctx, n.throughputTimeout())
	out, err = n.throughput.Throughput(tpCtx, n.cfg.Target, n.cfg.ThroughputDuration)
	cancel()
	if err != nil {
		probeErrs = append(probeErrs, fmt.Errorf("throughput test: %w", err))
		obs = append(obs, n.rec.failure(n.cfg.Target, err).With("probe", "throughput"))
	} else {
		obs = append(obs,
			n.rec.observe(n.cfg.Target, observation.LevelInfo, "throughput test to %s", n.cfg.Target).
				With("probe", "throughput").
				With("duration_s", strconv.Itoa(probe.ThroughputSeconds(n.cfg.ThroughputDuration))).
				WithRaw(out),
		)
	}

	switch len(probeErrs) {
	case 0:
		n.status = Informational
		n.summary = fmt.Sprintf("recorded echo and throughput tests to %s", n.cfg.Target)
	case 1:
		n.status = Failing
		n.summary = probeErrs[0].Error()
	default:
		n.status = Failing
		n.summary = fmt.Sprintf("both probes to %s failed", n.cfg.Target)
	}

	for i := range obs {
		obs[i] = obs[i].With(statusField, n.status.field())
	}

	if err := n.rec.write(ctx, obs...); err != nil {
		if len(probeErrs) == 0 {
			n.status = Erroring
			n.summary = err.Error()
		}
		probeErrs = append(probeErrs, err)
	}

	return errors.Join(probeErrs...)
}

func (n *NetworkHealth) Status() Status {
	return n.status
}

func (n *NetworkHealth) Summary() string {
	return n.summary
}
