// Package probe holds the capabilities netcheck utilities observe the network
// through. Each one is a small interface so utilities can be tested without
// invoking real system tools; the implementations here either shell out to an
// allowlisted command or use a native library.
package probe

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

type (
	// AddressLookup reads the IPv4 address (in CIDR form) currently assigned to a network interface.
	AddressLookup interface {
		InterfaceAddress(ctx context.Context, iface string) (string, error)
	}

	// Resolver performs a single name resolution.
	Resolver interface {
		LookupHost(ctx context.Context, host string) ([]string, error)
	}

	// EchoTester sends count echo requests to target and returns the tool's raw output.
	EchoTester interface {
		Echo(ctx context.Context, target string, count int) ([]byte, error)
	}

	// ThroughputTester measures throughput against a cooperating server for duration.
	ThroughputTester interface {
		Throughput(ctx context.Context, target string, duration time.Duration) ([]byte, error)
	}

	// FirewallLister dumps the current firewall rule set.
	FirewallLister interface {
		FirewallRules(ctx context.Context) ([]byte, error)
	}

	// SocketLister dumps the current listening sockets.
	SocketLister interface {
		ListeningSockets(ctx context.Context) ([]byte, error)
	}

	// TLSInspector performs a TLS handshake and returns the leaf certificate presented.
	TLSInspector interface {
		PeerCertificate(ctx context.Context, host string, port int) (*x509.Certificate, error)
	}
)

// Kind classifies why a probe failed.
type Kind string

const (
	// KindUnavailable: the tool or library is missing, or we lack the privilege to use it.
	KindUnavailable Kind = "probe_unavailable"
	// KindUnreachable: network, DNS or TLS failure, including timeouts.
	KindUnreachable Kind = "target_unreachable"
	// KindParse: the probe ran, but an expected field was absent from its output.
	KindParse Kind = "parse_failure"
)

// Error is a classified probe failure. Output carries whatever the underlying
// tool printed, so it can be logged verbatim.
type Error struct {
	Kind   Kind
	Probe  string
	Target string
	Output []byte
	Err    error
}

func (e *Error) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Probe, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Probe, e.Target, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, probeName, target string, output []byte, err error) *Error {
	return &Error{
		Kind:   kind,
		Probe:  probeName,
		Target: target,
		Output: output,
		Err:    err,
	}
}

// KindOf returns the classification of err. Errors that did not come from a probe
// are treated as unreachable targets, which is the most common cause.
func KindOf(err error) Kind {
	var probeErr *Error
	if errors.As(err, &probeErr) {
		return probeErr.Kind
	}
	return KindUnreachable
}

// OutputOf returns the raw tool output carried by err, if any.
func OutputOf(err error) []byte {
	var probeErr *Error
	if errors.As(err, &probeErr) {
		return probeErr.Output
	}
	return nil
}
