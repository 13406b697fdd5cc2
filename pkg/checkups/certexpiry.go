package checkups

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kolide/netcheck/pkg/observation"
	"github.com/kolide/netcheck/pkg/probe"
	"github.com/mixer/clock"
)

const (
	DefaultCertDomain     = "example.com"
	DefaultCertPort       = 443
	DefaultSSLExpiryLog   = "ssl_expiry.log"
	DefaultExpiryWindow   = 30 * 24 * time.Hour
	defaultHandshakeLimit = 15 * time.Second
)

type CertConfig struct {
	Domain string
	Port   int
	// Window is how far ahead to look. Certificates expiring strictly before now+Window warn.
	Window  time.Duration
	Timeout time.Duration
}

func DefaultCertConfig() CertConfig {
	return CertConfig{
		Domain:  DefaultCertDomain,
		Port:    DefaultCertPort,
		Window:  DefaultExpiryWindow,
		Timeout: defaultHandshakeLimit,
	}
}

// CertExpiry checks how long a server's leaf certificate has left.
type CertExpiry struct {
	cfg       CertConfig
	inspector probe.TLSInspector
	rec       *recorder
	clock     clock.Clock

	status   Status
	summary  string
	notAfter time.Time
}

func NewCertExpiry(cfg CertConfig, inspector probe.TLSInspector, sink observation.Sink, opts ...Option) *CertExpiry {
	if cfg.Domain == "" {
		cfg.Domain = DefaultCertDomain
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultCertPort
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultExpiryWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHandshakeLimit
	}

	o := newOptions(opts)
	return &CertExpiry{
		cfg:       cfg,
		inspector: inspector,
		rec:       newRecorder(SSLExpiryName, sink, o),
		clock:     o.clock,
		status:    Unknown,
	}
}

func (c *CertExpiry) Name() string {
	return SSLExpiryName
}

func (c *CertExpiry) target() string {
	return net.JoinHostPort(c.cfg.Domain, strconv.Itoa(c.cfg.Port))
}

func (c *CertExpiry) Run(ctx context.Context) error {
	handshakeCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cert, err := c.inspector.PeerCertificate(handshakeCtx, c.cfg.Domain, c.cfg.Port)
	if err != nil {
		c.status = Failing
		c.summary = fmt.Sprintf("could not read certificate for %s: %s", c.target(), probe.KindOf(err))
		obs := c.rec.failure(c.target(), err).With(statusField, c.status.field())
		return errors.Join(fmt.Errorf("checking certificate for %s: %w", c.target(), err), c.rec.write(ctx, obs))
	}

	now := c.clock.Now()
	c.notAfter = cert.NotAfter.UTC()
	daysLeft := int(c.notAfter.Sub(now) / (24 * time.Hour))
	windowDays := int(c.cfg.Window / (24 * time.Hour))

	c.status = Passing
	if c.notAfter.Before(now.Add(c.cfg.Window)) {
		c.status = Warning
	}

	result := c.rec.observe(c.target(), observation.LevelInfo, "certificate for %s expires %s", c.cfg.Domain, c.notAfter.Format(time.RFC3339)).
		With("not_after", c.notAfter.Format(time.RFC3339)).
		With("days_left", strconv.Itoa(daysLeft)).
		With("subject", cert.Subject.CommonName).
		With("issuer", cert.Issuer.CommonName).
		With(statusField, c.status.field())
	obs := []observation.Observation{result}

	if c.status == Warning {
		obs = append(obs,
			c.rec.observe(c.target(), observation.LevelWarn, "certificate for %s expires within %d days", c.cfg.Domain, windowDays).
				With("not_after", c.notAfter.Format(time.RFC3339)).
				With("window_days", strconv.Itoa(windowDays)),
		)
		c.summary = fmt.Sprintf("certificate for %s expires in %d days (%s)", c.cfg.Domain, daysLeft, c.notAfter.Format(time.RFC3339))
	} else {
		c.summary = fmt.Sprintf("certificate for %s valid until %s", c.cfg.Domain, c.notAfter.Format(time.RFC3339))
	}

	if err := c.rec.write(ctx, obs...); err != nil {
		c.status = Erroring
		c.summary = err.Error()
		return err
	}

	return nil
}

func (c *CertExpiry) Status() Status {
	return c.status
}

func (c *CertExpiry) Summary() string {
	return c.summary
}

// NotAfter is the expiry of the last certificate seen.
func (c *CertExpiry) NotAfter() time.Time {
	return c.notAfter
}
