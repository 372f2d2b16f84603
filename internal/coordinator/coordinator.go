// Package coordinator owns the run token. Scans, sub-path scans, scheduled
// scans and rollbacks all go through it, and only one of them may run at a
// time. A request made while another run holds the token is rejected with
// ErrBusy rather than queued.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Nomadcxx/embress/internal/activity"
	"github.com/Nomadcxx/embress/internal/config"
	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/executor"
	"github.com/Nomadcxx/embress/internal/logging"
	"github.com/Nomadcxx/embress/internal/media"
	"github.com/Nomadcxx/embress/internal/metrics"
	"github.com/Nomadcxx/embress/internal/notify"
	"github.com/Nomadcxx/embress/internal/rollback"
	"github.com/Nomadcxx/embress/internal/rules"
	"github.com/Nomadcxx/embress/internal/scanner"
	"github.com/Nomadcxx/embress/internal/transfer"
	"github.com/Nomadcxx/embress/internal/whitelist"
)

// ErrBusy is returned when another run holds the token.
var ErrBusy = errors.New("another scan or rollback is running")

// Outcome is the caller-facing result of a mutating request.
type Outcome string

const (
	OutcomeCompleted       Outcome = "completed"
	OutcomePartiallyFailed Outcome = "partially_failed"
	OutcomeCancelled       Outcome = "cancelled"
	OutcomeBusy            Outcome = "busy"
)

// State of the coordinator
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// RunKind says what holds the token.
type RunKind string

const (
	KindScan     RunKind = "scan"
	KindRollback RunKind = "rollback"
)

// ScanRequest describes a scan trigger. An empty Path scans the whole library.
type ScanRequest struct {
	Trigger database.Trigger
	Path    string
}

// ScanResult is returned by Scan.
type ScanResult struct {
	Outcome   Outcome                 `json:"outcome"`
	Run       *database.ScanRun       `json:"run"`
	Applied   []database.ChangeRecord `json:"applied"`
	Failures  []executor.Failure      `json:"failures,omitempty"`
	Unrenamed []media.ClassifiedFile  `json:"unrenamed,omitempty"`
	Warnings  []scanner.Warning       `json:"warnings,omitempty"`
	// NotAttempted counts operations skipped after cancellation.
	NotAttempted int `json:"not_attempted,omitempty"`
}

// RollbackResult is returned by RollbackSeason and RollbackRun.
type RollbackResult struct {
	Outcome Outcome `json:"outcome"`
	*rollback.Result
}

// Options wires a Coordinator. Config and Store are required.
type Options struct {
	Config   *config.Config
	Store    *database.MediaDB
	Activity *activity.Logger
	Notify   *notify.Manager
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
}

type token struct {
	id      string
	kind    RunKind
	scope   string
	started time.Time
	cancel  context.CancelFunc
}

// Coordinator serializes mutating runs and answers status queries without
// waiting on them.
type Coordinator struct {
	cfg      *config.Config
	store    *database.MediaDB
	layout   media.Layout
	template *media.Template
	ext      media.Extensions
	filter   *whitelist.Filter
	rules    atomic.Pointer[rules.RuleSet]
	scanner  *scanner.Scanner
	exec     *executor.Executor
	rollback *rollback.Engine
	notify   *notify.Manager
	metrics  *metrics.Metrics
	logger   *logging.Logger

	mu      sync.Mutex
	current *token

	schedulerEnabled atomic.Bool
	scheduler        *Scheduler
	onWrite          func(paths []string)
}

// New loads persisted state (rules, whitelist, scheduler switch) and closes
// runs a previous process left in the running state.
func New(ctx context.Context, opts Options) (*Coordinator, error) {
	if opts.Config == nil || opts.Store == nil {
		return nil, fmt.Errorf("coordinator needs a config and a store")
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	tmpl, err := media.ParseTemplate(cfg.Library.Template)
	if err != nil {
		return nil, fmt.Errorf("library.template: %w", err)
	}

	fsys := transfer.New(cfg.FSTimeout())
	exec := executor.New(executor.Config{
		FS:       fsys,
		Store:    opts.Store,
		Activity: opts.Activity,
		Metrics:  opts.Metrics,
		Logger:   logger,
		Workers:  cfg.Scan.Workers,
	})

	c := &Coordinator{
		cfg:      cfg,
		store:    opts.Store,
		layout:   media.NewLayout(cfg.Library.Root, cfg.Library.MediaTypes),
		template: tmpl,
		ext: media.NewExtensions(cfg.Library.VideoExtensions, cfg.Library.SubtitleExtensions,
			cfg.Library.AudioExtensions, cfg.Library.PictureExtensions),
		filter:   whitelist.New(opts.Store),
		scanner:  scanner.New(scanner.Config{FS: fsys, Workers: cfg.Scan.Workers, Logger: logger}),
		exec:     exec,
		rollback: rollback.New(exec, opts.Store, logger),
		notify:   opts.Notify,
		metrics:  opts.Metrics,
		logger:   logger,
	}

	if err := c.filter.Load(ctx); err != nil {
		return nil, err
	}

	set, found, err := opts.Store.LoadRules(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		set = rules.DefaultSet()
		if err := opts.Store.SaveRules(ctx, set); err != nil {
			return nil, err
		}
	}
	compiled, err := rules.Compile(set)
	if err != nil {
		return nil, fmt.Errorf("stored rules: %w", err)
	}
	c.rules.Store(compiled)

	enabled, err := opts.Store.SchedulerEnabled(ctx, cfg.Scan.Enabled)
	if err != nil {
		return nil, err
	}
	c.schedulerEnabled.Store(enabled)

	if n, err := opts.Store.MarkInterruptedRuns(ctx); err != nil {
		return nil, err
	} else if n > 0 {
		logger.Warn("coordinator", "Marked interrupted runs as failed", logging.F("runs", n))
	}

	return c, nil
}

// Root returns the library root.
func (c *Coordinator) Root() string {
	return c.layout.Root
}

// Store returns the change record store.
func (c *Coordinator) Store() *database.MediaDB {
	return c.store
}

func (c *Coordinator) acquire(kind RunKind, scope string) (*token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.metrics.Rejected(string(kind))
		c.logger.Warn("coordinator", "Rejected request, coordinator busy",
			logging.F("requested", string(kind)),
			logging.F("running", string(c.current.kind)),
			logging.F("run_id", c.current.id))
		return nil, ErrBusy
	}
	c.current = &token{id: uuid.NewString(), kind: kind, scope: scope, started: time.Now()}
	c.metrics.SetBusy(true)
	return c.current, nil
}

func (c *Coordinator) release(t *token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == t {
		c.current = nil
		c.metrics.SetBusy(false)
	}
	if t.cancel != nil {
		t.cancel()
	}
}

// runContext detaches the run from the caller so a dropped HTTP request
// does not stop a scan halfway. Cancel stops it instead.
func (c *Coordinator) runContext(ctx context.Context, t *token) context.Context {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	t.cancel = cancel
	c.mu.Unlock()
	return runCtx
}

// Cancel asks the running scan or rollback to stop between operations.
// It reports false when nothing is running.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.cancel == nil {
		return false
	}
	c.logger.Info("coordinator", "Cancelling run", logging.F("run_id", c.current.id))
	c.current.cancel()
	return true
}

// OnWrite registers fn to receive the paths a run is about to create,
// before any of them is touched.
func (c *Coordinator) OnWrite(fn func(paths []string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWrite = fn
}

func (c *Coordinator) announceWrites(paths []string) {
	c.mu.Lock()
	fn := c.onWrite
	c.mu.Unlock()
	if fn != nil && len(paths) > 0 {
		fn(paths)
	}
}

// Busy reports whether a run holds the token.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

func (c *Coordinator) classifier() *media.Classifier {
	return media.NewClassifier(media.Options{
		Layout:     c.layout,
		Rules:      c.rules.Load(),
		Whitelist:  c.filter.Snapshot(),
		Template:   c.template,
		Extensions: c.ext,
		FS:         c.exec.FS(),
	})
}

// Preview scans without applying anything. It does not take the token.
func (c *Coordinator) Preview(ctx context.Context, path string) (*scanner.Plan, error) {
	scope, err := scanner.ResolveScope(c.layout.Root, path)
	if err != nil {
		return nil, err
	}
	return c.scanner.Scan(ctx, c.classifier(), scope)
}

// Scan runs the scanner and applies the plan.
func (c *Coordinator) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	scope, err := scanner.ResolveScope(c.layout.Root, req.Path)
	if err != nil {
		return nil, err
	}
	if req.Trigger == "" {
		req.Trigger = database.TriggerManual
		if req.Path != "" {
			req.Trigger = database.TriggerSubPath
		}
	}

	t, err := c.acquire(KindScan, scope)
	if err != nil {
		return nil, err
	}
	defer c.release(t)
	runCtx := c.runContext(ctx, t)
	// Bookkeeping writes must land even after Cancel.
	storeCtx := context.WithoutCancel(runCtx)

	run := &database.ScanRun{ID: t.id, Trigger: req.Trigger, Scope: scope, StartedAt: t.started}
	if err := c.store.CreateRun(storeCtx, run); err != nil {
		return nil, err
	}

	c.logger.Info("coordinator", "Scan started",
		logging.F("run_id", run.ID),
		logging.F("trigger", string(req.Trigger)),
		logging.F("scope", scope))

	plan, err := c.scanner.Scan(runCtx, c.classifier(), scope)
	if err != nil {
		status := database.RunFailed
		if errors.Is(err, context.Canceled) {
			status = database.RunCancelled
		}
		if finErr := c.store.FinishRun(storeCtx, run.ID, status, database.RunCounts{}, err.Error()); finErr != nil {
			c.logger.Error("coordinator", "Failed to finish run", finErr, logging.F("run_id", run.ID))
		}
		c.metrics.ObserveScan(string(req.Trigger), string(status), time.Since(t.started), 0, 0)
		if status == database.RunCancelled {
			return c.finishScan(storeCtx, run, &ScanResult{Outcome: OutcomeCancelled}, status)
		}
		return nil, fmt.Errorf("scan %s: %w", scope, err)
	}

	var targets []string
	for _, op := range plan.Operations {
		if op.Target != "" {
			targets = append(targets, op.Target)
		}
	}
	c.announceWrites(targets)

	res := c.exec.Apply(runCtx, run.ID, plan.Operations)

	if err := c.store.ReplaceUnrenamed(storeCtx, scope, run.ID, unrenamedRows(plan.Unrenamed)); err != nil {
		c.logger.Error("coordinator", "Failed to update unrenamed files", err, logging.F("run_id", run.ID))
	}

	counts := res.Counts
	counts.Unrenamed = len(plan.Unrenamed)
	counts.Skipped = plan.Skipped
	counts.Warnings = len(plan.Warnings)

	status := database.RunCompleted
	outcome := OutcomeCompleted
	switch {
	case res.Cancelled:
		status, outcome = database.RunCancelled, OutcomeCancelled
	case res.PartiallyFailed():
		status, outcome = database.RunPartiallyFailed, OutcomePartiallyFailed
	}

	var runErr string
	if res.Cancelled {
		runErr = fmt.Sprintf("cancelled with %d operations not attempted", res.NotAttempted)
	}
	if err := c.store.FinishRun(storeCtx, run.ID, status, counts, runErr); err != nil {
		c.logger.Error("coordinator", "Failed to finish run", err, logging.F("run_id", run.ID))
	}

	c.metrics.ObserveScan(string(req.Trigger), string(status), time.Since(t.started), len(plan.Unrenamed), len(plan.Warnings))

	result := &ScanResult{
		Outcome:      outcome,
		Applied:      res.Applied,
		Failures:     res.Failures,
		Unrenamed:    plan.Unrenamed,
		Warnings:     plan.Warnings,
		NotAttempted: res.NotAttempted,
	}
	return c.finishScan(storeCtx, run, result, status)
}

func (c *Coordinator) finishScan(ctx context.Context, run *database.ScanRun, result *ScanResult, status database.RunStatus) (*ScanResult, error) {
	if stored, err := c.store.GetRun(ctx, run.ID); err == nil {
		run = stored
	} else {
		run.Status = status
	}
	result.Run = run

	if c.cfg.Scan.KeepRuns > 0 || c.cfg.Scan.PruneEmptyRuns {
		if n, err := c.store.PruneRuns(ctx, c.cfg.Scan.KeepRuns, c.cfg.Scan.PruneEmptyRuns); err != nil {
			c.logger.Warn("coordinator", "Failed to prune run history", logging.F("error", err.Error()))
		} else if n > 0 {
			c.logger.Debug("coordinator", "Pruned run history", logging.F("runs", n))
		}
	}

	c.logger.Info("coordinator", "Scan finished",
		logging.F("run_id", run.ID),
		logging.F("status", string(run.Status)),
		logging.F("applied", len(result.Applied)),
		logging.F("failed", len(result.Failures)),
		logging.F("unrenamed", len(result.Unrenamed)),
		logging.F("warnings", len(result.Warnings)))

	event := notify.RunEvent{
		Kind:      notify.EventScan,
		RunID:     run.ID,
		Trigger:   string(run.Trigger),
		Scope:     run.Scope,
		Outcome:   string(result.Outcome),
		Applied:   len(result.Applied),
		Failed:    len(result.Failures),
		Unrenamed: len(result.Unrenamed),
		Warnings:  len(result.Warnings),
		Duration:  time.Since(run.StartedAt),
	}
	for _, f := range result.Failures {
		event.Failures = append(event.Failures, fmt.Sprintf("%s: %s", f.Path, f.Reason))
	}
	c.notify.Notify(ctx, event)

	return result, nil
}

func unrenamedRows(files []media.ClassifiedFile) []database.UnrenamedFile {
	rows := make([]database.UnrenamedFile, 0, len(files))
	for _, cf := range files {
		mediaType := cf.Library
		if mediaType == "" {
			mediaType = string(cf.MediaType)
		}
		rows = append(rows, database.UnrenamedFile{
			Path:      cf.Path,
			Reason:    cf.Reason,
			Show:      cf.Show,
			MediaType: mediaType,
		})
	}
	return rows
}

// RollbackSeason reverses the active records of one season.
func (c *Coordinator) RollbackSeason(ctx context.Context, q database.SeasonQuery) (*RollbackResult, error) {
	if q.Show == "" {
		return nil, fmt.Errorf("show is required")
	}
	return c.runRollback(ctx, q.Show, func(runCtx context.Context) (*rollback.Result, error) {
		records, err := c.store.ActiveRecordsForSeason(runCtx, q)
		if err != nil {
			return nil, err
		}
		c.announceWrites(restoredPaths(records))
		return c.rollback.RollbackSeason(runCtx, q)
	})
}

// RollbackRun reverses the active records of one scan run.
func (c *Coordinator) RollbackRun(ctx context.Context, runID string) (*RollbackResult, error) {
	if _, err := c.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return c.runRollback(ctx, "run "+runID, func(runCtx context.Context) (*rollback.Result, error) {
		records, err := c.store.ActiveRecordsForRun(runCtx, runID)
		if err != nil {
			return nil, err
		}
		c.announceWrites(restoredPaths(records))
		return c.rollback.RollbackRun(runCtx, runID)
	})
}

func restoredPaths(records []database.ChangeRecord) []string {
	var paths []string
	for _, rec := range records {
		if rec.Destination != "" {
			paths = append(paths, rec.Source)
		}
	}
	return paths
}

func (c *Coordinator) runRollback(ctx context.Context, scope string, fn func(context.Context) (*rollback.Result, error)) (*RollbackResult, error) {
	t, err := c.acquire(KindRollback, scope)
	if err != nil {
		return nil, err
	}
	defer c.release(t)
	runCtx := c.runContext(ctx, t)

	res, err := fn(runCtx)
	if err != nil {
		return nil, err
	}

	outcome := OutcomeCompleted
	switch {
	case res.Cancelled:
		outcome = OutcomeCancelled
	case res.PartiallyFailed():
		outcome = OutcomePartiallyFailed
	}

	event := notify.RunEvent{
		Kind:     notify.EventRollback,
		RunID:    t.id,
		Scope:    res.Scope,
		Outcome:  string(outcome),
		Applied:  len(res.RolledBack),
		Failed:   len(res.Failures),
		Duration: res.Duration,
	}
	for _, f := range res.Failures {
		event.Failures = append(event.Failures, fmt.Sprintf("%s: %s", f.Destination, f.Reason))
	}
	c.notify.Notify(context.WithoutCancel(runCtx), event)

	return &RollbackResult{Outcome: outcome, Result: res}, nil
}

// Rules returns the rule set new scans will use.
func (c *Coordinator) Rules() rules.Set {
	return c.rules.Load().Source()
}

// UpdateRules validates, persists and then publishes set. A scan already
// running keeps the rules it started with.
func (c *Coordinator) UpdateRules(ctx context.Context, set rules.Set) error {
	compiled, err := rules.Compile(set)
	if err != nil {
		return err
	}
	if err := c.store.SaveRules(ctx, compiled.Source()); err != nil {
		return err
	}
	c.rules.Store(compiled)
	c.logger.Info("coordinator", "Rules updated",
		logging.F("season_episode", len(set.SeasonEpisode)),
		logging.F("episode_only", len(set.EpisodeOnly)))
	return nil
}

// Whitelist returns the whitelist filter. Changes apply to the next scan.
func (c *Coordinator) Whitelist() *whitelist.Filter {
	return c.filter
}

// SchedulerEnabled reports the scheduler switch.
func (c *Coordinator) SchedulerEnabled() bool {
	return c.schedulerEnabled.Load()
}

// SetSchedulerEnabled persists and applies the scheduler switch. Manual
// and sub-path scans are unaffected.
func (c *Coordinator) SetSchedulerEnabled(ctx context.Context, enabled bool) error {
	if err := c.store.SetSchedulerEnabled(ctx, enabled); err != nil {
		return err
	}
	c.schedulerEnabled.Store(enabled)
	c.logger.Info("coordinator", "Scheduler toggled", logging.F("enabled", enabled))
	return nil
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	State            State             `json:"state"`
	Kind             RunKind           `json:"kind,omitempty"`
	RunID            string            `json:"run_id,omitempty"`
	Scope            string            `json:"scope,omitempty"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	SchedulerEnabled bool              `json:"scheduler_enabled"`
	Interval         string            `json:"interval"`
	Scheduler        *SchedulerStatus  `json:"scheduler,omitempty"`
	LastRun          *database.ScanRun `json:"last_run,omitempty"`
}

// Status never waits for a running scan.
func (c *Coordinator) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		State:            StateIdle,
		SchedulerEnabled: c.SchedulerEnabled(),
		Interval:         c.cfg.ScanInterval().String(),
	}

	c.mu.Lock()
	if t := c.current; t != nil {
		started := t.started
		st.State = StateRunning
		st.Kind = t.kind
		st.RunID = t.id
		st.Scope = t.scope
		st.StartedAt = &started
	}
	sched := c.scheduler
	c.mu.Unlock()

	if sched != nil {
		ss := sched.Status()
		st.Scheduler = &ss
	}

	last, err := c.store.LastRun(ctx)
	if err != nil {
		return nil, err
	}
	st.LastRun = last
	return st, nil
}

// Stats returns store-wide counters.
func (c *Coordinator) Stats(ctx context.Context) (*database.Stats, error) {
	return c.store.GetStats(ctx)
}
