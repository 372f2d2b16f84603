// Package executor applies scan plans to the filesystem and records every
// successful operation as a change record.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Nomadcxx/embress/internal/activity"
	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/logging"
	"github.com/Nomadcxx/embress/internal/media"
	"github.com/Nomadcxx/embress/internal/metrics"
	"github.com/Nomadcxx/embress/internal/transfer"
	"golang.org/x/sync/errgroup"
)

// ErrCollision is returned when the destination of a move is occupied.
var ErrCollision = transfer.ErrDestinationExists

// RecordStore receives change records for applied operations.
type RecordStore interface {
	AppendRecord(ctx context.Context, rec *database.ChangeRecord) error
}

// Failure describes one operation that did not apply.
type Failure struct {
	Path      string          `json:"path"`
	Target    string          `json:"target,omitempty"`
	Operation media.Operation `json:"operation"`
	Reason    string          `json:"reason"`
	Error     string          `json:"error"`

	index int
}

// Result is the outcome of applying a plan.
type Result struct {
	RunID    string                  `json:"run_id"`
	Applied  []database.ChangeRecord `json:"applied"`
	Failures []Failure               `json:"failures,omitempty"`
	Counts   database.RunCounts      `json:"counts"`
	// NotAttempted counts operations left untouched after cancellation.
	NotAttempted int           `json:"not_attempted,omitempty"`
	Cancelled    bool          `json:"cancelled,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// PartiallyFailed reports whether any operation failed.
func (r *Result) PartiallyFailed() bool {
	return len(r.Failures) > 0
}

// Config holds executor dependencies. Only FS and Store are required.
type Config struct {
	FS       *transfer.FS
	Store    RecordStore
	Activity *activity.Logger
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
	Workers  int
}

// Executor applies operations. Moves into the same directory are
// serialized so collision checks cannot race.
type Executor struct {
	fs       *transfer.FS
	store    RecordStore
	activity *activity.Logger
	metrics  *metrics.Metrics
	logger   *logging.Logger
	workers  int
	locks    *dirLocks
}

// New creates an Executor.
func New(cfg Config) *Executor {
	e := &Executor{
		fs:       cfg.FS,
		store:    cfg.Store,
		activity: cfg.Activity,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		workers:  cfg.Workers,
		locks:    newDirLocks(),
	}
	if e.fs == nil {
		e.fs = transfer.New(transfer.DefaultTimeout)
	}
	if e.logger == nil {
		e.logger = logging.Nop()
	}
	if e.workers <= 0 {
		e.workers = 4
	}
	return e
}

// FS returns the filesystem wrapper the executor uses.
func (e *Executor) FS() *transfer.FS {
	return e.fs
}

type indexedOp struct {
	index int
	file  media.ClassifiedFile
}

// Apply runs ops phase by phase: video renames, then sidecar renames, then
// nfo deletions. Within a phase, directories are processed in parallel
// and operations sharing a destination directory run one at a time. A
// failed operation never stops the others. Cancellation is checked
// between operations; an in-flight call is allowed to finish.
func (e *Executor) Apply(ctx context.Context, runID string, ops []media.ClassifiedFile) *Result {
	start := time.Now()
	res := &Result{RunID: runID}

	phases := make(map[int]map[string][]indexedOp)
	var order []int
	for i, cf := range ops {
		p := cf.Operation.Phase()
		if phases[p] == nil {
			phases[p] = make(map[string][]indexedOp)
			order = append(order, p)
		}
		dir := destinationDir(cf)
		phases[p][dir] = append(phases[p][dir], indexedOp{index: i, file: cf})
	}
	sort.Ints(order)

	var (
		mu      sync.Mutex
		applied []struct {
			index int
			rec   database.ChangeRecord
		}
	)

	for _, p := range order {
		var g errgroup.Group
		g.SetLimit(e.workers)

		for dir, group := range phases[p] {
			dir, group := dir, group
			g.Go(func() error {
				unlock := e.locks.Lock(dir)
				defer unlock()

				for _, op := range group {
					if ctx.Err() != nil {
						mu.Lock()
						res.NotAttempted++
						res.Cancelled = true
						mu.Unlock()
						continue
					}

					rec, err := e.applyOne(ctx, runID, op.file)

					mu.Lock()
					if err != nil {
						res.Failures = append(res.Failures, Failure{
							Path:      op.file.Path,
							Target:    op.file.Target,
							Operation: op.file.Operation,
							Reason:    transfer.ErrorReason(err),
							Error:     err.Error(),
							index:     op.index,
						})
						res.Counts.Failed++
					} else {
						applied = append(applied, struct {
							index int
							rec   database.ChangeRecord
						}{op.index, rec})
						res.Counts.Add(op.file.Operation)
					}
					mu.Unlock()
				}
				return nil
			})
		}
		g.Wait()
	}

	sort.Slice(applied, func(i, j int) bool { return applied[i].index < applied[j].index })
	for _, a := range applied {
		res.Applied = append(res.Applied, a.rec)
	}
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].index < res.Failures[j].index })
	res.Duration = time.Since(start)

	e.logger.Info("executor", "Plan applied",
		logging.F("run_id", runID),
		logging.F("applied", len(res.Applied)),
		logging.F("failed", len(res.Failures)),
		logging.F("not_attempted", res.NotAttempted),
		logging.F("duration_ms", res.Duration.Milliseconds()))
	return res
}

func destinationDir(cf media.ClassifiedFile) string {
	if cf.Operation == media.OpNFODelete || cf.Target == "" {
		return filepath.Dir(cf.Path)
	}
	return filepath.Dir(cf.Target)
}

// applyOne performs a single operation and stores its change record.
func (e *Executor) applyOne(ctx context.Context, runID string, cf media.ClassifiedFile) (database.ChangeRecord, error) {
	start := time.Now()
	// Filesystem calls run to completion (bounded by the FS timeout) once started.
	fsCtx := context.WithoutCancel(ctx)

	rec := database.ChangeRecord{
		RunID:       runID,
		Show:        cf.Show,
		MediaType:   recordMediaType(cf),
		SeasonLabel: cf.SeasonLabel,
		Operation:   cf.Operation,
		Source:      cf.Path,
	}

	var err error
	switch cf.Operation {
	case media.OpRename, media.OpSubtitleRename, media.OpAudioRename, media.OpPictureRename:
		rec.Destination = cf.Target
		err = e.move(fsCtx, cf.Path, cf.Target)
		if err == nil {
			rec.Fingerprint = e.fingerprint(fsCtx, cf.Target)
		}
	case media.OpNFODelete:
		err = e.remove(fsCtx, cf.Path)
	default:
		err = fmt.Errorf("unsupported operation %s", cf.Operation)
	}

	if err == nil {
		if storeErr := e.store.AppendRecord(fsCtx, &rec); storeErr != nil {
			err = e.unrecorded(fsCtx, rec, storeErr)
		}
	}

	e.report(runID, activity.PhaseApply, cf.Operation.String(), rec, err, "", time.Since(start))
	return rec, err
}

// unrecorded undoes a move whose change record could not be stored, so the
// library never holds a rename that history does not know about.
func (e *Executor) unrecorded(ctx context.Context, rec database.ChangeRecord, storeErr error) error {
	err := fmt.Errorf("record change: %w", storeErr)
	if rec.Destination == "" {
		e.logger.Error("executor", "Deleted file without change record", err, logging.F("path", rec.Source))
		return err
	}
	if undoErr := e.fs.Move(ctx, rec.Destination, rec.Source); undoErr != nil {
		e.logger.Error("executor", "Failed to undo unrecorded rename", undoErr,
			logging.F("source", rec.Source),
			logging.F("destination", rec.Destination))
		return errors.Join(err, undoErr)
	}
	return err
}

func (e *Executor) move(ctx context.Context, src, dst string) error {
	if dst == "" {
		return fmt.Errorf("no target for %s", src)
	}
	dstInfo, err := e.fs.Lstat(ctx, dst)
	switch {
	case err == nil:
		srcInfo, srcErr := e.fs.Lstat(ctx, src)
		if srcErr != nil || !os.SameFile(srcInfo, dstInfo) {
			return fmt.Errorf("%w: %s", ErrCollision, dst)
		}
	case !errors.Is(err, os.ErrNotExist):
		return err
	}
	return e.fs.Move(ctx, src, dst)
}

func (e *Executor) remove(ctx context.Context, path string) error {
	exists, err := e.fs.Exists(ctx, path)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", transfer.ErrSourceNotFound, path)
	}
	return e.fs.Remove(ctx, path)
}

func (e *Executor) fingerprint(ctx context.Context, path string) string {
	fp, err := e.fs.Fingerprint(ctx, path)
	if err != nil {
		e.logger.Warn("executor", "Could not fingerprint renamed file",
			logging.F("path", path),
			logging.F("error", err.Error()))
		return ""
	}
	return fp.String()
}

// MoveBack moves a file from dst back to src under the destination
// directory lock of src. It never overwrites src.
func (e *Executor) MoveBack(ctx context.Context, dst, src string) error {
	unlock := e.locks.Lock(filepath.Dir(src))
	defer unlock()
	return e.move(context.WithoutCancel(ctx), dst, src)
}

// Report logs, audits and counts one attempted operation. Rollback uses it
// for reverse operations. An empty reason is derived from err.
func (e *Executor) Report(runID string, phase activity.Phase, action string, rec database.ChangeRecord, err error, reason string, d time.Duration) {
	e.report(runID, phase, action, rec, err, reason, d)
}

func (e *Executor) report(runID string, phase activity.Phase, action string, rec database.ChangeRecord, err error, reason string, d time.Duration) {
	entry := activity.Entry{
		RunID:      runID,
		Phase:      phase,
		Action:     action,
		Source:     rec.Source,
		Target:     rec.Destination,
		Show:       rec.Show,
		MediaType:  rec.MediaType,
		Season:     rec.SeasonLabel,
		RecordID:   rec.ID,
		Success:    err == nil,
		DurationMs: d.Milliseconds(),
	}
	result := "ok"
	if err != nil {
		result = reason
		if result == "" {
			result = transfer.ErrorReason(err)
		}
		entry.Reason = result
		entry.Error = err.Error()
		e.logger.Warn("executor", "Operation failed",
			logging.F("phase", string(phase)),
			logging.F("action", action),
			logging.F("source", rec.Source),
			logging.F("target", rec.Destination),
			logging.F("reason", result),
			logging.F("error", err.Error()))
	} else {
		e.logger.Debug("executor", "Operation applied",
			logging.F("phase", string(phase)),
			logging.F("action", action),
			logging.F("source", rec.Source),
			logging.F("target", rec.Destination))
	}

	if phase == activity.PhaseApply {
		e.metrics.ObserveOperation(action, result)
	} else {
		e.metrics.ObserveRollback(result)
	}
	if logErr := e.activity.Log(entry); logErr != nil {
		e.logger.Warn("executor", "Failed to write activity entry", logging.F("error", logErr.Error()))
	}
}

func recordMediaType(cf media.ClassifiedFile) string {
	if cf.Library != "" {
		return cf.Library
	}
	return string(cf.MediaType)
}
