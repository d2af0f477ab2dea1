package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tracker-backend/internal/domain"
)

// PassRunner is the batch side of TrackingService the scheduler drives.
type PassRunner interface {
	EvaluateAll(ctx context.Context, interval string) ([]Outcome, error)
	EvaluateRealtime(ctx context.Context) ([]Outcome, error)
}

// SchedulerConfig lists the cadences to run. Each entry of Intervals is a
// duration label such as "30m" and doubles as the snapshot label.
type SchedulerConfig struct {
	Intervals     []string
	Realtime      bool
	RealtimeEvery time.Duration
}

// JobStatus describes one periodic driver.
type JobStatus struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Interval  string     `json:"interval"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	Evaluated int        `json:"lastEvaluated"`
	Failed    int        `json:"lastFailed"`
	Triggered int        `json:"lastTriggered"`
}

// SchedulerStatus is the snapshot returned by Status.
type SchedulerStatus struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

type intervalDriver struct {
	id    string
	name  string
	label string
	every time.Duration
	run   func(ctx context.Context) ([]Outcome, error)
}

// Scheduler runs periodic evaluation passes, one independent driver per
// cadence. Passes are aligned to the wall clock the way a cron schedule is.
type Scheduler struct {
	runner  PassRunner
	logger  *slog.Logger
	metrics Recorder
	drivers []*intervalDriver

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.Mutex
	running bool
	jobs    map[string]*JobStatus
}

func NewScheduler(runner PassRunner, cfg SchedulerConfig, logger *slog.Logger, metrics Recorder) (*Scheduler, error) {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	s := &Scheduler{
		runner:  runner,
		logger:  logger.With("component", "scheduler"),
		metrics: metrics,
		jobs:    make(map[string]*JobStatus),
	}

	for _, label := range cfg.Intervals {
		every, err := time.ParseDuration(label)
		if err != nil || every <= 0 {
			return nil, fmt.Errorf("scheduler: bad interval %q", label)
		}
		s.addDriver(&intervalDriver{
			id:    "profit_tracker_" + label,
			name:  "Profit tracker (" + label + ")",
			label: label,
			every: every,
			run: func(ctx context.Context) ([]Outcome, error) {
				return runner.EvaluateAll(ctx, label)
			},
		})
	}
	if cfg.Realtime {
		every := cfg.RealtimeEvery
		if every <= 0 {
			every = time.Minute
		}
		s.addDriver(&intervalDriver{
			id:    "profit_tracker_realtime",
			name:  "Realtime tracker",
			label: domain.IntervalRealtime,
			every: every,
			run:   runner.EvaluateRealtime,
		})
	}
	return s, nil
}

func (s *Scheduler) addDriver(d *intervalDriver) {
	s.drivers = append(s.drivers, d)
	s.jobs[d.id] = &JobStatus{ID: d.id, Name: d.name, Interval: d.label}
}

// Start launches every driver. It returns false if already running.
func (s *Scheduler) Start() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.isRunning() {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.setRunning(true)

	for _, d := range s.drivers {
		s.wg.Add(1)
		go s.drive(ctx, d)
	}
	s.logger.Info("scheduler started", "jobs", len(s.drivers))
	return true
}

// Stop prevents further passes and waits for in-flight ones to finish. It
// returns false if the scheduler was not running.
func (s *Scheduler) Stop() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.isRunning() {
		return false
	}
	s.cancel()
	s.wg.Wait()
	s.setRunning(false)

	s.mu.Lock()
	for _, j := range s.jobs {
		j.NextRun = nil
	}
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
	return true
}

func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SchedulerStatus{Running: s.running, Jobs: make([]JobStatus, 0, len(s.drivers))}
	for _, d := range s.drivers {
		st.Jobs = append(st.Jobs, *s.jobs[d.id])
	}
	return st
}

func (s *Scheduler) drive(ctx context.Context, d *intervalDriver) {
	defer s.wg.Done()

	for {
		now := time.Now()
		next := now.Truncate(d.every).Add(d.every)
		s.mu.Lock()
		s.jobs[d.id].NextRun = &next
		s.mu.Unlock()

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// A pass that has started runs to completion even if Stop is called.
		s.runPass(context.WithoutCancel(ctx), d)
	}
}

func (s *Scheduler) runPass(ctx context.Context, d *intervalDriver) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tracking pass panicked", "job", d.id, "panic", r)
		}
	}()

	outcomes, err := d.run(ctx)
	elapsed := time.Since(start)
	s.metrics.ObservePass(d.label, elapsed)

	status := JobStatus{}
	for _, o := range outcomes {
		switch {
		case !o.OK():
			status.Failed++
		case o.Evaluation.Applied:
			status.Triggered++
			status.Evaluated++
		default:
			status.Evaluated++
		}
	}

	s.mu.Lock()
	j := s.jobs[d.id]
	j.LastRun = &start
	j.Evaluated, j.Failed, j.Triggered = status.Evaluated, status.Failed, status.Triggered
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("tracking pass failed", "job", d.id, "error", err)
		return
	}
	s.logger.Info("tracking pass finished", "job", d.id, "interval", d.label,
		"evaluated", status.Evaluated, "failed", status.Failed, "triggered", status.Triggered,
		"duration", elapsed)
}

func (s *Scheduler) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}
