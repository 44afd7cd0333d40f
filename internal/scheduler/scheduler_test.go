package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countTicks(t *testing.T, windowDelay time.Duration) uint64 {
	t.Helper()

	s := New()
	require.NoError(t, s.Add(Job{Name: "camera", Interval: 10 * time.Millisecond, Run: func(ctx context.Context) {}}))
	require.NoError(t, s.Add(Job{Name: "window", Interval: 20 * time.Millisecond, Run: func(ctx context.Context) {
		select {
		case <-time.After(windowDelay):
		case <-ctx.Done():
		}
	}}))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(500 * time.Millisecond)
	ticks := s.Ticks("camera")
	require.NoError(t, s.Stop(time.Second))
	return ticks
}

func TestJobsAreIndependent(t *testing.T) {
	normal := countTicks(t, 20*time.Millisecond)
	slow := countTicks(t, 100*time.Millisecond)

	require.Greater(t, normal, uint64(20))
	// a 5x slower window job must not change the camera cadence
	assert.InDelta(t, float64(normal), float64(slow), float64(normal)*0.3)
}

func TestSlowJobDropsTicks(t *testing.T) {
	s := New()
	var running, maxRunning atomic.Int32
	require.NoError(t, s.Add(Job{Name: "slow", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) {
		n := running.Add(1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		time.Sleep(50 * time.Millisecond)
		running.Add(-1)
	}}))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, s.Stop(time.Second))

	assert.Equal(t, int32(1), maxRunning.Load())
	// at most one call per 50ms, not one per 5ms tick
	assert.LessOrEqual(t, s.Ticks("slow"), uint64(8))
}

func TestImmediateRunsAtStart(t *testing.T) {
	s := New()
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add(Job{Name: "logo", Interval: time.Hour, Immediate: true, Run: func(ctx context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	}}))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(time.Second)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("immediate job did not run")
	}
}

func TestStopTimeoutWhenJobHangs(t *testing.T) {
	s := New()
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Add(Job{Name: "hung", Interval: time.Millisecond, Immediate: true, Run: func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	}}))
	require.NoError(t, s.Start(context.Background()))
	<-started

	start := time.Now()
	err := s.Stop(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrStopTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(release)
	assert.NoError(t, s.Stop(time.Second), "second stop is a no-op")
}

func TestAddWhileRunningAndRemove(t *testing.T) {
	s := New()
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(time.Second)

	var calls atomic.Int32
	job := Job{Name: "camera", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) { calls.Add(1) }}
	require.NoError(t, s.Add(job))
	assert.Error(t, s.Add(job))

	require.Eventually(t, func() bool { return calls.Load() > 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Stats()["camera"].Running)

	assert.True(t, s.Remove("camera"))
	assert.False(t, s.Remove("camera"))
	assert.False(t, s.Stats()["camera"].Running)

	// the name can be reused for a retry
	require.NoError(t, s.Add(job))
	assert.Eventually(t, func() bool { return s.Stats()["camera"].Running }, time.Second, 5*time.Millisecond)
}

func TestPanickingJobKeepsRunning(t *testing.T) {
	s := New()
	var calls atomic.Int32
	require.NoError(t, s.Add(Job{Name: "bad", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) {
		calls.Add(1)
		panic("boom")
	}}))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(time.Second))
	assert.GreaterOrEqual(t, s.Stats()["bad"].Panics, uint64(3))
}

func TestAddValidation(t *testing.T) {
	s := New()
	assert.Error(t, s.Add(Job{Name: "", Interval: time.Second, Run: func(context.Context) {}}))
	assert.Error(t, s.Add(Job{Name: "x", Interval: 0, Run: func(context.Context) {}}))
	assert.Error(t, s.Add(Job{Name: "x", Interval: time.Second}))

	require.NoError(t, s.Stop(time.Second))
	assert.ErrorIs(t, s.Add(Job{Name: "x", Interval: time.Second, Run: func(context.Context) {}}), ErrStopped)
	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)
}

func TestIntervalForFPS(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, IntervalForFPS(10))
	assert.Equal(t, time.Second, IntervalForFPS(0))
}
