package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"planexport/internal/eventbus"
	logx "planexport/pkg/logx"

	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in     string
		kind   SpecKind
		cron   string
		every  time.Duration
		source string
	}{
		{in: "*/5 * * * *", kind: SpecCron, cron: "*/5 * * * *", source: "cron"},
		{in: "@daily", kind: SpecCron, cron: "@daily", source: "cron"},
		{in: "cron: 0 6 * * 1-5", kind: SpecCron, cron: "0 6 * * 1-5", source: "cron"},
		{in: "55m", kind: SpecInterval, every: 55 * time.Minute, source: "duration"},
		{in: "02:30", kind: SpecInterval, every: 150 * time.Minute, source: "hhmm"},
		{in: "every: 1h", kind: SpecInterval, every: time.Hour, source: "duration"},
		{in: "Interval:00:50", kind: SpecInterval, every: 50 * time.Minute, source: "hhmm"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			ps, err := ParseSchedule(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.kind, ps.Kind)
			require.Equal(t, tc.cron, ps.Cron)
			require.Equal(t, tc.every, ps.Every)
			require.Equal(t, tc.source, ps.Source)
		})
	}
}

func TestParseScheduleRejects(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "cron:", "soon", "-5m", "00:00", "01:75", "every:"} {
		_, err := ParseSchedule(in)
		require.Error(t, err, in)
	}
}

func TestCronSpec(t *testing.T) {
	t.Parallel()
	ps, err := ParseSchedule("01:30")
	require.NoError(t, err)
	require.Equal(t, "@every 1h30m0s", ps.CronSpec())
}

func TestAddRejectsBadCron(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	err := s.AddSchedule("bad", "cron: 99 * * * *", 0, func(context.Context) error { return nil })
	require.Error(t, err)
	require.Empty(t, s.Names())

	require.Error(t, s.AddDaily("late", "24:00", 0, func(context.Context) error { return nil }))
}

func TestUpsertAndRemove(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	job := func(context.Context) error { return nil }
	require.NoError(t, s.AddSchedule("nightly", "@daily", 0, job))
	require.NoError(t, s.AddSchedule("hourly", "1h", 0, job))
	require.NoError(t, s.AddSchedule("nightly", "0 2 * * *", 0, job))

	require.Equal(t, []string{"hourly", "nightly"}, s.Names())
	snap := s.Snapshot()
	require.Equal(t, "@every 1h0m0s", snap.Schedules[0].Spec)
	require.Equal(t, "0 2 * * *", snap.Schedules[1].Spec)
	require.False(t, snap.Running)

	require.True(t, s.Remove("hourly"))
	require.False(t, s.Remove("hourly"))
	require.Equal(t, []string{"nightly"}, s.Names())
}

func TestStartRegistersAndStops(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop(), nil)
	require.NoError(t, s.AddCron("weekly", "0 0 * * 0", 0, func(context.Context) error { return nil }))

	s.Start(context.Background())
	require.True(t, s.Snapshot().Running)
	require.Eventually(t, func() bool {
		return !s.Snapshot().Schedules[0].Next.IsZero()
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, time.Sunday, s.Snapshot().Schedules[0].Next.Weekday())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	require.False(t, s.Snapshot().Running)
}

func TestStartDisabledIsNoop(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	s.Start(context.Background())
	require.False(t, s.Snapshot().Running)
}

func TestRunNowAppliesTimeoutAndPublishes(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()
	events := eventbus.Filter(ch, 8, "schedule.")

	s := New(Config{Enabled: true}, logx.Nop(), bus)
	require.NoError(t, s.AddInterval("export", time.Hour, 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	err := s.RunNow(context.Background(), "export")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, uint64(1), s.Snapshot().Schedules[0].Runs)

	var got []string
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("missing events: %v", got)
		}
	}
	require.Equal(t, []string{eventbus.ScheduleFired, eventbus.ScheduleFailed}, got)

	require.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrUnknownSchedule)
}

func TestRunNowSkipsOverlap(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.AddInterval("slow", time.Hour, 0, func(context.Context) error {
		close(started)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-started

	require.True(t, errors.Is(s.RunNow(context.Background(), "slow"), ErrAlreadyRunning))
	close(release)
	require.NoError(t, <-done)
}

func TestIntervalWithSpread(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	sched, delay := intervalWithSpread(time.Hour, now, "nightly")
	require.GreaterOrEqual(t, delay, time.Duration(0))
	require.Less(t, delay, maxStartupSpread)

	first := sched.Next(now)
	require.Equal(t, now.Add(time.Hour+delay), first)
	// after the first run the plain interval applies
	require.Equal(t, first.Add(time.Hour).Truncate(time.Second), sched.Next(first).Truncate(time.Second))

	sched, delay = intervalWithSpread(10*time.Second, now, "fast")
	require.Less(t, delay, 10*time.Second)
	require.False(t, sched.Next(now).After(now.Add(20*time.Second)))
}
