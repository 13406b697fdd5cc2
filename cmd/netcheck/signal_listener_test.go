package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kolide/netcheck/pkg/checkups"
	"github.com/kolide/netcheck/pkg/log/multislogger"
	"github.com/kolide/netcheck/pkg/observation"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func TestInterrupt_Multiple(t *testing.T) {
	t.Parallel()

	sigChannel := make(chan os.Signal, 1)
	_, cancel := context.WithCancel(context.TODO())
	var logBytes lockedBuffer
	slogger := slog.New(slog.NewTextHandler(&logBytes, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	sigListener := newSignalListener(sigChannel, cancel, slogger)

	// Let the signal listener run for a bit
	executeDone := make(chan struct{})
	go func() {
		sigListener.Execute()
		close(executeDone)
	}()
	time.Sleep(100 * time.Millisecond)
	interruptStart := time.Now()
	sigListener.Interrupt(errors.New("test error"))

	// Confirm we can call Interrupt multiple times without blocking
	interruptComplete := make(chan struct{})
	expectedInterrupts := 3
	for i := 0; i < expectedInterrupts; i += 1 {
		go func() {
			sigListener.Interrupt(nil)
			interruptComplete <- struct{}{}
		}()
	}

	receivedInterrupts := 0
	for {
		if receivedInterrupts >= expectedInterrupts {
			break
		}

		select {
		case <-interruptComplete:
			receivedInterrupts += 1
			continue
		case <-time.After(5 * time.Second):
			t.Errorf("could not call interrupt multiple times and return within 5 seconds -- interrupted at %s, received %d interrupts before timeout; logs: \n%s\n", interruptStart.String(), receivedInterrupts, logBytes.String())
			t.FailNow()
		}
	}

	require.Equal(t, expectedInterrupts, receivedInterrupts)

	select {
	case <-executeDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after Interrupt")
	}
}

type flappingLookup struct {
	mu    sync.Mutex
	calls int
}

func (f *flappingLookup) InterfaceAddress(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls%2 == 0 {
		return "10.0.0.2/24", nil
	}
	return "10.0.0.1/24", nil
}

func TestRunWatch_StopsOnSignal(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), checkups.DefaultIPWatchLog)
	watcher := checkups.NewIPWatcher(checkups.IPWatchConfig{Interface: "eth0", Interval: 5 * time.Millisecond}, &flappingLookup{}, observation.NewFileLog(logPath))

	sigChannel := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- runWatch(context.Background(), multislogger.NewNopLogger(), watcher, sigChannel)
	}()

	require.Eventually(t, func() bool {
		obs, err := observation.ReadFile(logPath)
		return err == nil && len(obs) >= 3
	}, 5*time.Second, 10*time.Millisecond)

	sigChannel <- os.Interrupt

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after signal")
	}

	obs, err := observation.ReadFile(logPath)
	require.NoError(t, err)
	for _, o := range obs {
		require.Equal(t, observation.LevelInfo, o.Level)
		require.NotEqual(t, o.Fields["old"], o.Fields["new"])
	}
}

func TestRunWatch_StopsOnCancel(t *testing.T) {
	t.Parallel()

	watcher := checkups.NewIPWatcher(checkups.IPWatchConfig{Interval: time.Hour}, &flappingLookup{}, observation.NewFileLog(filepath.Join(t.TempDir(), "ip.log")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runWatch(ctx, multislogger.NewNopLogger(), watcher, make(chan os.Signal, 1))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
