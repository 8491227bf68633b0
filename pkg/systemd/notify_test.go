package systemd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "planexport/pkg/logx"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) send(_ bool, state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func TestNotifierStates(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := New(logx.Nop())
	n.send = rec.send

	n.Ready()
	n.Status("exports: %d", 2)
	n.Reloading()
	n.Stopping()

	require.Equal(t, []string{"READY=1", "STATUS=exports: 2", "RELOADING=1", "STOPPING=1"}, rec.snapshot())
}

func TestNotifierSendErrorIsLoggedOnly(t *testing.T) {
	t.Parallel()
	n := New(logx.Nop())
	n.send = func(bool, string) (bool, error) { return false, errors.New("socket gone") }
	require.NotPanics(t, n.Ready)
}

func TestWatchdogDisabledReturns(t *testing.T) {
	t.Parallel()
	n := New(logx.Nop())
	n.watchdog = func(bool) (time.Duration, error) { return 0, nil }
	require.NoError(t, n.Watchdog(context.Background()))
}

func TestWatchdogPings(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := New(logx.Nop())
	n.send = rec.send
	n.watchdog = func(bool) (time.Duration, error) { return 20 * time.Millisecond, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Watchdog(ctx) }()

	require.Eventually(t, func() bool {
		for _, s := range rec.snapshot() {
			if s == "WATCHDOG=1" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
