package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/logging"
)

// SchedulerStatus is reported by /status and the daemon health endpoint.
type SchedulerStatus struct {
	Healthy      bool       `json:"healthy"`
	Running      bool       `json:"running"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	LastTick     *time.Time `json:"last_tick,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	SkippedTicks int64      `json:"skipped_ticks"`
}

// Scheduler triggers full scans at a fixed interval. A tick that finds the
// coordinator busy is skipped, not queued.
type Scheduler struct {
	coord    *Coordinator
	interval time.Duration
	logger   *logging.Logger
	cron     *cron.Cron
	entry    cron.EntryID

	mu           sync.Mutex
	started      bool
	lastTick     time.Time
	lastSuccess  time.Time
	lastError    error
	skippedTicks int64
	healthy      bool
}

// StartScheduler starts periodic scans at the configured interval. The
// scheduler runs even while disabled so that toggling it on takes effect at
// the next tick.
func (c *Coordinator) StartScheduler() (*Scheduler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheduler != nil {
		return c.scheduler, nil
	}

	s := newScheduler(c, c.cfg.ScanInterval(), c.logger)
	if err := s.start(); err != nil {
		return nil, err
	}
	c.scheduler = s
	return s, nil
}

// StopScheduler stops the scheduler and waits for a running tick to return
// or ctx to expire.
func (c *Coordinator) StopScheduler(ctx context.Context) {
	c.mu.Lock()
	s := c.scheduler
	c.scheduler = nil
	c.mu.Unlock()
	if s != nil {
		s.stop(ctx)
	}
}

func newScheduler(c *Coordinator, interval time.Duration, logger *logging.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		coord:    c,
		interval: interval,
		logger:   logger,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		healthy:  true,
	}
}

func (s *Scheduler) start() error {
	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.tick)
	if err != nil {
		return fmt.Errorf("scheduling scans every %s: %w", s.interval, err)
	}
	s.entry = id
	s.cron.Start()

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	s.logger.Info("scheduler", "Scheduler started",
		logging.F("interval", s.interval.String()),
		logging.F("enabled", s.coord.SchedulerEnabled()))
	return nil
}

func (s *Scheduler) stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler", "Scheduler stop timed out with a scan still running")
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	s.logger.Info("scheduler", "Scheduler stopped")
}

func (s *Scheduler) tick() {
	if !s.coord.SchedulerEnabled() {
		s.logger.Debug("scheduler", "Scheduled scan skipped, scheduler disabled")
		return
	}

	s.mu.Lock()
	s.lastTick = time.Now()
	s.mu.Unlock()

	err := s.runScan()
	if errors.Is(err, ErrBusy) {
		s.mu.Lock()
		s.skippedTicks++
		skipped := s.skippedTicks
		s.mu.Unlock()
		s.coord.metrics.SkippedScheduled()
		s.logger.Warn("scheduler", "Scheduled scan skipped, coordinator busy",
			logging.F("skipped_ticks", skipped))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastError = err
		s.healthy = false
		s.logger.Error("scheduler", "Scheduled scan failed", err)
		return
	}
	s.lastSuccess = time.Now()
	s.lastError = nil
	s.healthy = true
}

func (s *Scheduler) runScan() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panic: %v", r)
		}
	}()

	_, err = s.coord.Scan(context.Background(), ScanRequest{Trigger: database.TriggerScheduled})
	return err
}

// IsHealthy reports whether the last scheduled scan succeeded.
func (s *Scheduler) IsHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}

// Status returns the scheduler's state.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SchedulerStatus{
		Healthy:      s.healthy,
		Running:      s.started,
		SkippedTicks: s.skippedTicks,
	}
	if s.started {
		if next := s.cron.Entry(s.entry).Next; !next.IsZero() {
			st.NextRun = &next
		}
	}
	if !s.lastTick.IsZero() {
		t := s.lastTick
		st.LastTick = &t
	}
	if !s.lastSuccess.IsZero() {
		t := s.lastSuccess
		st.LastSuccess = &t
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	return st
}

// cronLogger routes cron's key/value logging through the component logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("scheduler", msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("scheduler", msg, err, kvFields(keysAndValues)...)
}

func kvFields(kv []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logging.F(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
