// Package scheduler runs named periodic jobs, each on its own goroutine and
// ticker, so a slow job only delays itself.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bryanchriswhite/SplitScreen/internal/logger"
)

var (
	// ErrStopTimeout is returned by Stop when a job is still running after
	// the join timeout
	ErrStopTimeout = errors.New("scheduler: jobs still running after stop timeout")

	ErrStopped = errors.New("scheduler: stopped")
)

// Job is one periodic task. Run is called once per tick; ticks that arrive
// while Run is still executing are dropped, never queued.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)

	// Immediate runs the job once at start instead of waiting a full
	// interval
	Immediate bool
}

// JobStats counts a job's activity
type JobStats struct {
	Interval time.Duration `json:"interval"`
	Ticks    uint64        `json:"ticks"`
	Panics   uint64        `json:"panics"`
	Running  bool          `json:"running"`
}

type jobState struct {
	job    Job
	cancel context.CancelFunc
	ticks  atomic.Uint64
	panics atomic.Uint64
	done   chan struct{}

	// removed is set by Remove; the name may then be reused even while the
	// old loop is finishing its last call
	removed bool
}

// Scheduler owns a set of jobs
type Scheduler struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	jobs    map[string]*jobState
	order   []string
	started bool
	stopped bool
}

// New creates an idle scheduler
func New() *Scheduler {
	return &Scheduler{jobs: make(map[string]*jobState)}
}

// Add registers a job. Jobs added after Start begin immediately.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a Run func")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("scheduler: job %q has non-positive interval %s", job.Name, job.Interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if js, exists := s.jobs[job.Name]; exists {
		if !js.removed {
			return fmt.Errorf("scheduler: job %q already exists", job.Name)
		}
	} else {
		s.order = append(s.order, job.Name)
	}

	js := &jobState{job: job, done: make(chan struct{})}
	s.jobs[job.Name] = js
	if s.started {
		s.launch(js)
	}
	return nil
}

// Remove stops a job without waiting for an in-flight call to return
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	js, ok := s.jobs[name]
	if !ok || js.removed {
		return false
	}
	js.removed = true
	if js.cancel != nil {
		js.cancel()
	}
	return true
}

// Start launches every registered job under ctx
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.group = &errgroup.Group{}
	s.started = true

	for _, name := range s.order {
		if js := s.jobs[name]; !js.removed {
			s.launch(js)
		}
	}
	return nil
}

// launch starts js; s.mu must be held
func (s *Scheduler) launch(js *jobState) {
	ctx, cancel := context.WithCancel(s.ctx)
	js.cancel = cancel
	s.group.Go(func() error {
		defer close(js.done)
		s.loop(ctx, js)
		return nil
	})
	logger.WithComponent("scheduler").Debug().
		Str("job", js.job.Name).
		Dur("interval", js.job.Interval).
		Msg("Job started")
}

func (s *Scheduler) loop(ctx context.Context, js *jobState) {
	ticker := time.NewTicker(js.job.Interval)
	defer ticker.Stop()

	if js.job.Immediate {
		s.runOnce(ctx, js)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.runOnce(ctx, js)
		}
	}
}

// runOnce calls the job once; a panic is logged and counted, not propagated
func (s *Scheduler) runOnce(ctx context.Context, js *jobState) {
	defer func() {
		if r := recover(); r != nil {
			js.panics.Add(1)
			logger.WithComponent("scheduler").Error().
				Str("job", js.job.Name).
				Interface("panic", r).
				Msg("Job panicked")
		}
	}()
	js.ticks.Add(1)
	js.job.Run(ctx)
}

// Stop cancels all jobs and waits up to timeout for them to return. The
// scheduler cannot be restarted.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	if started {
		s.cancel()
	}
	group := s.group
	s.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		var running []string
		for name, st := range s.Stats() {
			if st.Running {
				running = append(running, name)
			}
		}
		logger.WithComponent("scheduler").Warn().Strs("jobs", running).Dur("timeout", timeout).Msg("Jobs did not stop in time")
		return fmt.Errorf("%w: %v", ErrStopTimeout, running)
	}
}

// Ticks returns how many times job name has run
func (s *Scheduler) Ticks(name string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if js, ok := s.jobs[name]; ok {
		return js.ticks.Load()
	}
	return 0
}

// Stats returns per-job counters
func (s *Scheduler) Stats() map[string]JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]JobStats, len(s.jobs))
	for name, js := range s.jobs {
		running := js.cancel != nil && !js.removed
		select {
		case <-js.done:
			running = false
		default:
		}
		out[name] = JobStats{
			Interval: js.job.Interval,
			Ticks:    js.ticks.Load(),
			Panics:   js.panics.Load(),
			Running:  running,
		}
	}
	return out
}

// IntervalForFPS converts a rate to a tick interval. Non-positive rates
// yield one second.
func IntervalForFPS(fps int) time.Duration {
	if fps <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(fps)
}
