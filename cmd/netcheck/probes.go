package main

import (
	"github.com/kolide/netcheck/ee/allowedcmd"
	"github.com/kolide/netcheck/pkg/probe"
)

// The probes below are what the utilities run against on a real host. Tests swap
// these out through the checkups constructors instead.

func addressLookup() probe.AddressLookup {
	return probe.FallbackAddressLookup{
		Primary:   probe.IPCommand{Cmd: allowedcmd.Ip},
		Secondary: probe.NativeInterfaces{},
	}
}

func echoTester() probe.EchoTester {
	return probe.PingCommand{Cmd: allowedcmd.Ping}
}

func throughputTester() probe.ThroughputTester {
	return probe.Iperf3Command{Cmd: allowedcmd.Iperf3}
}

func firewallLister() probe.FirewallLister {
	return probe.FirewallCommand{
		Iptables: allowedcmd.Iptables,
		Nftables: allowedcmd.Nftables,
	}
}

func socketLister() probe.SocketLister {
	return probe.SocketCommand{
		Cmd:      allowedcmd.Ss,
		Fallback: probe.NativeSockets{},
	}
}
