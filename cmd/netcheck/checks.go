package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kolide/netcheck/pkg/checkups"
	"github.com/kolide/netcheck/pkg/observation"
	"github.com/kolide/netcheck/pkg/probe"
)

// prepare sets up logging and the observation sink for one utility. cleanup closes the logs.
func prepare(ctx context.Context, utility string, opts *commonOptions, stderr io.Writer) (context.Context, *slog.Logger, observation.Sink, func()) {
	ctx, ms, closeLogs := newSlogger(ctx, utility, opts, stderr)
	slogger := ms.Logger

	sink := newSink(ctx, slogger, opts.logPath, opts.dbPath)

	slogger.Log(ctx, slog.LevelDebug,
		"appending observations",
		"log_path", opts.logPath,
		"db_path", opts.dbPath,
	)

	return ctx, slogger, sink, closeLogs
}

// runCheckup runs c once and prints its summary.
func runCheckup(ctx context.Context, c checkups.Checkup, stdout io.Writer) error {
	err := c.Run(ctx)
	fmt.Fprintf(stdout, "%s\t%s\n", c.Status().Emoji(), c.Summary())
	return err
}

func runDNSCheck(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flagset := newFlagSet("dns-check", stderr)
	opts := addCommonFlags(flagset, checkups.DefaultDNSLog)
	var (
		flThreshold  = flagset.Duration("threshold", checkups.DefaultDNSThreshold, "warn when resolution takes longer than this")
		flNameserver = flagset.String("nameserver", "", "query this nameserver (host or host:port) instead of the system resolver")
	)

	domain, err := parseFlags(flagset, args)
	if err != nil {
		return err
	}
	if *flThreshold <= 0 {
		return newUsageError("threshold must be positive, got %s", *flThreshold)
	}

	ctx, slogger, sink, cleanup := prepare(ctx, checkups.DNSCheckName, opts, stderr)
	defer cleanup()

	check := checkups.NewDNSCheck(checkups.DNSConfig{
		Domain:    domain,
		Threshold: *flThreshold,
		Timeout:   opts.timeout,
	}, probe.DNSResolver{Nameserver: *flNameserver}, sink, checkups.WithSlogger(slogger))

	return runCheckup(ctx, check, stdout)
}

func runNetworkHealth(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flagset := newFlagSet("network-health", stderr)
	opts := addCommonFlags(flagset, checkups.DefaultHealthLog)
	var (
		flEchoCount          = flagset.Int("echo_count", checkups.DefaultEchoCount, "number of echo requests to send")
		flThroughputDuration = flagset.Duration("throughput_duration", checkups.DefaultThroughputDuration, "how long to run the throughput test")
	)

	target, err := parseFlags(flagset, args)
	if err != nil {
		return err
	}
	if *flEchoCount <= 0 {
		return newUsageError("echo_count must be positive, got %d", *flEchoCount)
	}
	if *flThroughputDuration <= 0 {
		return newUsageError("throughput_duration must be positive, got %s", *flThroughputDuration)
	}

	ctx, slogger, sink, cleanup := prepare(ctx, checkups.NetworkHealthName, opts, stderr)
	defer cleanup()

	check := checkups.NewNetworkHealth(checkups.HealthConfig{
		Target:             target,
		EchoCount:          *flEchoCount,
		ThroughputDuration: *flThroughputDuration,
		Timeout:            opts.timeout,
	}, echoTester(), throughputTester(), sink, checkups.WithSlogger(slogger))

	return runCheckup(ctx, check, stdout)
}

func runFirewallAudit(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flagset := newFlagSet("firewall-audit", stderr)
	opts := addCommonFlags(flagset, checkups.DefaultFirewallLog)

	target, err := parseFlags(flagset, args)
	if err != nil {
		return err
	}
	if target != "" {
		return newUsageError("firewall-audit takes no target, got %q", target)
	}

	ctx, slogger, sink, cleanup := prepare(ctx, checkups.FirewallAuditName, opts, stderr)
	defer cleanup()

	check := checkups.NewExposureAudit(checkups.ExposureConfig{
		Timeout: opts.timeout,
	}, firewallLister(), socketLister(), sink, checkups.WithSlogger(slogger))

	return runCheckup(ctx, check, stdout)
}

func runSSLExpiry(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flagset := newFlagSet("ssl-expiry", stderr)
	opts := addCommonFlags(flagset, checkups.DefaultSSLExpiryLog)
	var (
		flPort     = flagset.Int("port", checkups.DefaultCertPort, "port to connect to")
		flWindow   = flagset.Duration("window", checkups.DefaultExpiryWindow, "warn when the certificate expires within this long")
		flInsecure = flagset.Bool("insecure", false, "skip certificate chain validation")
	)

	domain, err := parseFlags(flagset, args)
	if err != nil {
		return err
	}
	if *flPort <= 0 || *flPort > 65535 {
		return newUsageError("port must be between 1 and 65535, got %d", *flPort)
	}
	if *flWindow <= 0 {
		return newUsageError("window must be positive, got %s", *flWindow)
	}

	ctx, slogger, sink, cleanup := prepare(ctx, checkups.SSLExpiryName, opts, stderr)
	defer cleanup()

	check := checkups.NewCertExpiry(checkups.CertConfig{
		Domain:  domain,
		Port:    *flPort,
		Window:  *flWindow,
		Timeout: opts.timeout,
	}, probe.TLSDialer{Insecure: *flInsecure}, sink, checkups.WithSlogger(slogger))

	return runCheckup(ctx, check, stdout)
}
