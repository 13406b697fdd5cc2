package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/kolide/netcheck/pkg/checkups"
	"github.com/kolide/netcheck/pkg/observation"
	"github.com/kolide/netcheck/pkg/probe"
)

const defaultDoctorTimeout = time.Minute

func runDoctor(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flagset := newFlagSet("doctor", stderr)
	opts := &commonOptions{}
	var (
		flLogDir         = flagset.String("log_dir", ".", "directory holding each utility's log")
		flCheckupTimeout = flagset.Duration("checkup_timeout", defaultDoctorTimeout, "how long each check may run")
	)
	flagset.StringVar(&opts.dbPath, "db_path", "", "also store observations in this bbolt database")
	flagset.BoolVar(&opts.debug, "debug", false, "enable debug logging on stderr")
	flagset.StringVar(&opts.debugLogFile, "debug_log_file", "", "also write JSON debug logs to this rotating file")

	target, err := parseFlags(flagset, args)
	if err != nil {
		return err
	}
	if target != "" {
		return newUsageError("doctor takes no target, got %q", target)
	}
	if *flCheckupTimeout <= 0 {
		return newUsageError("checkup_timeout must be positive, got %s", *flCheckupTimeout)
	}

	ctx, ms, closeLogs := newSlogger(ctx, "doctor", opts, stderr)
	defer closeLogs()
	slogger := ms.Logger

	sinkFor := func(logName string) observation.Sink {
		return newSink(ctx, slogger, filepath.Join(*flLogDir, logName), opts.dbPath)
	}

	checkupOpts := []checkups.Option{checkups.WithSlogger(slogger)}
	list := []checkups.Checkup{
		checkups.NewDNSCheck(checkups.DefaultDNSConfig(), probe.DNSResolver{}, sinkFor(checkups.DefaultDNSLog), checkupOpts...),
		checkups.NewNetworkHealth(checkups.DefaultHealthConfig(), echoTester(), throughputTester(), sinkFor(checkups.DefaultHealthLog), checkupOpts...),
		checkups.NewExposureAudit(checkups.DefaultExposureConfig(), firewallLister(), socketLister(), sinkFor(checkups.DefaultFirewallLog), checkupOpts...),
		checkups.NewCertExpiry(checkups.DefaultCertConfig(), probe.TLSDialer{}, sinkFor(checkups.DefaultSSLExpiryLog), checkupOpts...),
	}

	failing := checkups.RunDoctor(ctx, list, stdout, *flCheckupTimeout)
	if len(failing) > 0 {
		return fmt.Errorf("%d checks failed: %s", len(failing), strings.Join(failing, ", "))
	}

	return nil
}
