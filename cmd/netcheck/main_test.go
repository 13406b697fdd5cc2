package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kolide/netcheck/pkg/checkups"
	"github.com/kolide/netcheck/pkg/log/multislogger"
	"github.com/kolide/netcheck/pkg/observation"
	agentbbolt "github.com/kolide/netcheck/pkg/storage/bbolt"
	"github.com/stretchr/testify/require"
)

func runArgs(t *testing.T, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	code := runNetcheck(ctx, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name         string
		args         []string
		expectedCode int
	}{
		{name: "no command", args: nil, expectedCode: exitUsage},
		{name: "unknown command", args: []string{"traceroute"}, expectedCode: exitUsage},
		{name: "help", args: []string{"help"}, expectedCode: exitOK},
		{name: "command help", args: []string{"dns-check", "-h"}, expectedCode: exitOK},
		{name: "too many targets", args: []string{"dns-check", "example.com", "example.org"}, expectedCode: exitUsage},
		{name: "undefined flag", args: []string{"ssl-expiry", "--days", "30"}, expectedCode: exitUsage},
		{name: "bad port", args: []string{"ssl-expiry", "--port", "0"}, expectedCode: exitUsage},
		{name: "negative threshold", args: []string{"dns-check", "--threshold", "-1s"}, expectedCode: exitUsage},
		{name: "zero interval", args: []string{"ip-watch", "--interval", "0s"}, expectedCode: exitUsage},
		{name: "firewall audit has no target", args: []string{"firewall-audit", "eth0"}, expectedCode: exitUsage},
		{name: "doctor has no target", args: []string{"doctor", "example.com"}, expectedCode: exitUsage},
		{name: "history needs a utility", args: []string{"history", "--db_path", "x.db"}, expectedCode: exitUsage},
		{name: "history unknown utility", args: []string{"history", "--db_path", "x.db", "traceroute"}, expectedCode: exitUsage},
		{name: "history needs a db", args: []string{"history", "dns-check"}, expectedCode: exitUsage},
	} {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, _, _ := runArgs(t, tt.args...)
			require.Equal(t, tt.expectedCode, code)
		})
	}
}

func TestRun_DNSCheck(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), checkups.DefaultDNSLog)

	code, stdout, stderr := runArgs(t, "dns-check", "--log_path", logPath, "--threshold", "1h", "localhost")
	require.Equal(t, exitOK, code, stderr)
	require.Contains(t, stdout, "resolved localhost")

	obs, err := observation.ReadFile(logPath)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	require.Equal(t, "localhost", obs[0].Target)
	_, ok := obs[0].Field("duration_ms")
	require.True(t, ok)
}

func TestRun_DNSCheckWhileStoreHeld(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logPath := filepath.Join(dir, checkups.DefaultDNSLog)
	dbPath := filepath.Join(dir, "netcheck.db")

	// Another netcheck process holding the database
	held, err := agentbbolt.Open(context.Background(), multislogger.NewNopLogger(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { held.Close() })

	code, stdout, stderr := runArgs(t, "dns-check", "--log_path", logPath, "--db_path", dbPath, "--threshold", "1h", "localhost")
	require.Equal(t, exitOK, code, stderr)
	require.Contains(t, stdout, "resolved localhost")
	require.Contains(t, stderr, "could not copy observations to store")

	obs, err := observation.ReadFile(logPath)
	require.NoError(t, err)
	require.Len(t, obs, 1, "the log file is written even when the store is busy")

	require.NoError(t, held.Close())

	// Once released, the next run reaches the store too
	code, _, stderr = runArgs(t, "dns-check", "--log_path", logPath, "--db_path", dbPath, "--threshold", "1h", "localhost")
	require.Equal(t, exitOK, code, stderr)

	store, err := agentbbolt.Open(context.Background(), multislogger.NewNopLogger(), dbPath)
	require.NoError(t, err)
	defer store.Close()

	count, err := store.Count(checkups.DNSCheckName)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRun_SSLExpiry(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)

	dir := t.TempDir()
	logPath := filepath.Join(dir, checkups.DefaultSSLExpiryLog)
	dbPath := filepath.Join(dir, "netcheck.db")

	code, _, stderr := runArgs(t, "ssl-expiry", "--insecure", "--port", port, "--log_path", logPath, "--db_path", dbPath, host)
	require.Equal(t, exitOK, code, stderr)

	obs, err := observation.ReadFile(logPath)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	require.Equal(t, srv.Certificate().NotAfter.UTC().Format(time.RFC3339), obs[0].Fields["not_after"])

	// The same observation went to the store, and history prints it back
	code, stdout, stderr := runArgs(t, "history", "--db_path", dbPath, "ssl-expiry")
	require.Equal(t, exitOK, code, stderr)

	fromStore, err := observation.Parse(strings.NewReader(stdout))
	require.NoError(t, err)
	require.Len(t, fromStore, 1)
	require.Equal(t, obs[0].Message, fromStore[0].Message)
	require.Equal(t, obs[0].Fields, fromStore[0].Fields)
}

func TestRun_SSLExpiryUnreachable(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, l.Close())

	logPath := filepath.Join(t.TempDir(), checkups.DefaultSSLExpiryLog)
	code, _, _ := runArgs(t, "ssl-expiry", "--port", port, "--log_path", logPath, "127.0.0.1")
	require.Equal(t, exitFailure, code)

	obs, err := observation.ReadFile(logPath)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	require.Equal(t, observation.LevelError, obs[0].Level)
	require.Equal(t, "target_unreachable", obs[0].Fields["error_kind"])
}

func TestRun_History(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "netcheck.db")
	store, err := agentbbolt.Open(context.Background(), multislogger.NewNopLogger(), dbPath)
	require.NoError(t, err)

	now := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.Append(
		observation.New(now, checkups.DNSCheckName, "example.com", observation.LevelInfo, "resolved example.com in 12 ms").With("duration_ms", "12"),
		observation.New(now.Add(time.Second), checkups.DNSCheckName, "example.com", observation.LevelWarn, "resolution took 900 ms, over the 500 ms threshold"),
		observation.New(now, checkups.IPWatchName, "eth0", observation.LevelInfo, "changed from a to b"),
	))
	require.NoError(t, store.Close())

	code, stdout, stderr := runArgs(t, "history", "--db_path", dbPath, "dns_check")
	require.Equal(t, exitOK, code, stderr)

	obs, err := observation.Parse(strings.NewReader(stdout))
	require.NoError(t, err)
	require.Len(t, obs, 2)
	require.Equal(t, "12", obs[0].Fields["duration_ms"])
	require.Equal(t, observation.LevelWarn, obs[1].Level)

	code, stdout, _ = runArgs(t, "history", "--db_path", dbPath, "--level", "warn", "dns-check")
	require.Equal(t, exitOK, code)
	require.Equal(t, 1, strings.Count(stdout, "\n"))

	code, stdout, stderr = runArgs(t, "history", "--db_path", dbPath, "ssl-expiry")
	require.Equal(t, exitOK, code)
	require.Empty(t, stdout)
	require.Contains(t, stderr, "no ssl_expiry observations")

	code, _, _ = runArgs(t, "history", "--db_path", filepath.Join(t.TempDir(), "missing.db"), "dns-check")
	require.Equal(t, exitFailure, code)
}

func TestParseFlags_ConfigFile(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "netcheck.conf")
	require.NoError(t, os.WriteFile(configPath, []byte("threshold 750ms\nlog_path /var/log/dns.log\n"), 0644))

	flagset := newFlagSet("dns-check", &bytes.Buffer{})
	opts := addCommonFlags(flagset, checkups.DefaultDNSLog)
	flThreshold := flagset.Duration("threshold", checkups.DefaultDNSThreshold, "")

	target, err := parseFlags(flagset, []string{"--config", configPath, "--log_path", "override.log", "kolide.com"})
	require.NoError(t, err)
	require.Equal(t, "kolide.com", target)
	require.Equal(t, 750*time.Millisecond, *flThreshold)
	require.Equal(t, "override.log", opts.logPath, "flags take precedence over the config file")
}

func TestParseFlags_Env(t *testing.T) {
	t.Setenv("NETCHECK_INTERVAL", "3s")

	flagset := newFlagSet("ip-watch", &bytes.Buffer{})
	addCommonFlags(flagset, checkups.DefaultIPWatchLog)
	flInterval := flagset.Duration("interval", checkups.DefaultIPWatchInterval, "")

	target, err := parseFlags(flagset, nil)
	require.NoError(t, err)
	require.Equal(t, "", target)
	require.Equal(t, 3*time.Second, *flInterval)
}

func TestUtilityName(t *testing.T) {
	t.Parallel()

	for arg, expected := range map[string]string{
		"ip-watch":       checkups.IPWatchName,
		"dns_check":      checkups.DNSCheckName,
		"network-health": checkups.NetworkHealthName,
		"firewall-audit": checkups.FirewallAuditName,
		"ssl-expiry":     checkups.SSLExpiryName,
	} {
		name, ok := utilityName(arg)
		require.True(t, ok, arg)
		require.Equal(t, expected, name)
	}

	_, ok := utilityName("doctor")
	require.False(t, ok)
}
