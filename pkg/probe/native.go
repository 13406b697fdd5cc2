package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"sort"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/pkg/errors"
	gopsnet "github.com/shirou/gopsutil/v4/net"
)

// NativeInterfaces reads interface addresses from the OS directly.
type NativeInterfaces struct{}

func (NativeInterfaces) InterfaceAddress(ctx context.Context, iface string) (string, error) {
	ifaces, err := gopsnet.InterfacesWithContext(ctx)
	if err != nil {
		return "", newError(KindUnavailable, "interfaces", iface, nil, fmt.Errorf("listing interfaces: %w", err))
	}

	for _, i := range ifaces {
		if i.Name != iface {
			continue
		}

		for _, a := range i.Addrs {
			ip, _, err := net.ParseCIDR(a.Addr)
			if err != nil {
				continue
			}
			if ip.To4() != nil {
				return a.Addr, nil
			}
		}

		return "", newError(KindParse, "interfaces", iface, nil, fmt.Errorf("no IPv4 address assigned to %s", iface))
	}

	return "", newError(KindUnreachable, "interfaces", iface, nil, fmt.Errorf("interface %s not found", iface))
}

// NativeSockets reads the socket table from the OS, formatted like `ss -tuln`.
type NativeSockets struct{}

func (NativeSockets) ListeningSockets(ctx context.Context) ([]byte, error) {
	conns, err := gopsnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, newError(KindUnavailable, "sockets", "", nil, fmt.Errorf("listing connections: %w", err))
	}

	type row struct {
		netid, state, local string
	}

	rows := make([]row, 0)
	for _, c := range conns {
		local := net.JoinHostPort(c.Laddr.IP, strconv.FormatUint(uint64(c.Laddr.Port), 10))
		switch {
		case c.Type == syscall.SOCK_STREAM && c.Status == "LISTEN":
			rows = append(rows, row{"tcp", "LISTEN", local})
		case c.Type == syscall.SOCK_DGRAM && c.Raddr.IP == "":
			rows = append(rows, row{"udp", "UNCONN", local})
		}
	}

	// The OS hands these back in no particular order; sort so unchanged state gives unchanged output.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].netid != rows[j].netid {
			return rows[i].netid < rows[j].netid
		}
		return rows[i].local < rows[j].local
	})

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "Netid\tState\tLocal Address:Port")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.netid, r.state, r.local)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("formatting socket table: %w", err)
	}

	return buf.Bytes(), nil
}

// DNSResolver resolves names with the Go resolver. When Nameserver is set, queries go
// only to that server.
type DNSResolver struct {
	Nameserver string
}

func (d DNSResolver) resolver() *net.Resolver {
	if d.Nameserver == "" {
		return net.DefaultResolver
	}

	server := d.Nameserver
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var dialer net.Dialer
			return dialer.DialContext(ctx, network, server)
		},
	}
}

func (d DNSResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	addrs, err := d.resolver().LookupHost(ctx, host)
	if err != nil {
		return nil, newError(KindUnreachable, "resolver", host, []byte(err.Error()), err)
	}

	if len(addrs) == 0 {
		return nil, newError(KindParse, "resolver", host, nil, fmt.Errorf("no records returned for %s", host))
	}

	return addrs, nil
}

// TLSDialer performs a handshake with crypto/tls. Chain validation is whatever the
// handshake performs; Insecure turns it off entirely.
type TLSDialer struct {
	Insecure bool
	// RootCAs overrides the system pool. Mostly useful for tests.
	RootCAs *x509.CertPool
}

func (d TLSDialer) PeerCertificate(ctx context.Context, host string, port int) (*x509.Certificate, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := &tls.Dialer{
		Config: &tls.Config{
			ServerName:         host,
			RootCAs:            d.RootCAs,
			InsecureSkipVerify: d.Insecure, // #nosec G402 -- only when asked for with --insecure
			MinVersion:         tls.VersionTLS12,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newError(KindUnreachable, "tls", addr, []byte(err.Error()), fmt.Errorf("handshake: %w", err))
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil, newError(KindParse, "tls", addr, nil, errors.Errorf("unexpected connection type %T", conn))
	}

	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, newError(KindParse, "tls", addr, nil, errors.Errorf("no peer certificates presented by %s", addr))
	}

	leaf := certs[0]
	if leaf.NotAfter.IsZero() {
		return nil, newError(KindParse, "tls", addr, nil, errors.Errorf("certificate for %s has no expiry", addr))
	}

	return leaf, nil
}
