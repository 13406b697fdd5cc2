package checkups

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/kolide/netcheck/pkg/observation"
	"github.com/kolide/netcheck/pkg/probe"
	"github.com/stretchr/testify/require"
)

func TestNetworkHealth(t *testing.T) {
	t.Parallel()

	pingOut := []byte("5 packets transmitted, 5 received, 0% packet loss, time 4006ms\n")
	iperfOut := []byte("[  5]   0.00-5.00   sec  56.2 MBytes  94.3 Mbits/sec  sender\n")
	refused := probeError(probe.KindUnreachable, "iperf3", "google.com", "iperf3: error - unable to connect to server: Connection refused")

	for _, tt := range []struct {
		name           string
		echo           staticOutput
		throughput     staticOutput
		expectedStatus Status
		expectedLevels []observation.Level
		expectErr      bool
	}{
		{
			name:           "both probes succeed",
			echo:           staticOutput{out: pingOut},
			throughput:     staticOutput{out: iperfOut},
			expectedStatus: Informational,
			expectedLevels: []observation.Level{observation.LevelInfo, observation.LevelInfo},
		},
		{
			name:           "no cooperating server",
			echo:           staticOutput{out: pingOut},
			throughput:     staticOutput{err: refused},
			expectedStatus: Failing,
			expectedLevels: []observation.Level{observation.LevelInfo, observation.LevelError},
			expectErr:      true,
		},
		{
			name:           "both fail",
			echo:           staticOutput{err: probeError(probe.KindUnavailable, "ping", "google.com", "ping: socket: Operation not permitted")},
			throughput:     staticOutput{err: refused},
			expectedStatus: Failing,
			expectedLevels: []observation.Level{observation.LevelError, observation.LevelError},
			expectErr:      true,
		},
	} {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sink := &memorySink{}
			n := NewNetworkHealth(DefaultHealthConfig(), tt.echo, tt.throughput, sink)

			err := n.Run(context.Background())
			if tt.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.expectedStatus, n.Status())
			require.NotEmpty(t, n.Summary())

			obs := sink.all()
			require.Len(t, obs, len(tt.expectedLevels))
			for i, o := range obs {
				require.Equal(t, tt.expectedLevels[i], o.Level)
				require.Equal(t, DefaultHealthTarget, o.Target)
				require.NotEmpty(t, o.Raw, "raw tool output is always recorded")
			}
			require.Equal(t, "echo", obs[0].Fields["probe"])
			require.Equal(t, "throughput", obs[1].Fields["probe"])
		})
	}
}

func TestNetworkHealth_RecordsDurationTestRan(t *testing.T) {
	t.Parallel()

	var gotDuration time.Duration
	throughput := throughputFunc(func(_ context.Context, _ string, d time.Duration) ([]byte, error) {
		gotDuration = d
		return []byte("[  5]   0.00-2.00   sec  22.5 MBytes  94.3 Mbits/sec  sender\n"), nil
	})

	sink := &memorySink{}
	cfg := DefaultHealthConfig()
	cfg.ThroughputDuration = 1500 * time.Millisecond
	require.NoError(t, NewNetworkHealth(cfg, staticOutput{out: []byte("ok\n")}, throughput, sink).Run(context.Background()))

	obs := sink.all()
	require.Len(t, obs, 2)
	require.Equal(t, "2", obs[1].Fields["duration_s"])
	require.Equal(t, strconv.Itoa(probe.ThroughputSeconds(gotDuration)), obs[1].Fields["duration_s"], "logged duration matches what iperf3 runs for")
}
