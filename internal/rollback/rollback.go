// Package rollback reverses applied change records, newest first.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Nomadcxx/embress/internal/activity"
	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/executor"
	"github.com/Nomadcxx/embress/internal/logging"
	"github.com/Nomadcxx/embress/internal/media"
	"github.com/Nomadcxx/embress/internal/transfer"
)

var (
	// ErrNotReversible is returned for records whose operation cannot be undone.
	ErrNotReversible = errors.New("operation is not reversible")

	// ErrDrift is returned when the renamed file is gone or no longer
	// matches what was recorded.
	ErrDrift = errors.New("file changed since it was renamed")
)

// Store is the part of the change record store rollback needs.
type Store interface {
	ActiveRecordsForSeason(ctx context.Context, q database.SeasonQuery) ([]database.ChangeRecord, error)
	ActiveRecordsForRun(ctx context.Context, runID string) ([]database.ChangeRecord, error)
	MarkRolledBack(ctx context.Context, id int64, at time.Time) error
}

// Failure is one record that could not be rolled back.
type Failure struct {
	RecordID    int64           `json:"record_id"`
	Operation   media.Operation `json:"operation"`
	Source      string          `json:"source"`
	Destination string          `json:"destination,omitempty"`
	Reason      string          `json:"reason"`
	Error       string          `json:"error"`
}

// Result summarizes a rollback.
type Result struct {
	Scope        string                  `json:"scope"`
	Attempted    int                     `json:"attempted"`
	RolledBack   []database.ChangeRecord `json:"rolled_back"`
	Failures     []Failure               `json:"failures,omitempty"`
	NotAttempted int                     `json:"not_attempted,omitempty"`
	Cancelled    bool                    `json:"cancelled,omitempty"`
	Duration     time.Duration           `json:"duration"`
}

// PartiallyFailed reports whether any record failed to roll back.
func (r *Result) PartiallyFailed() bool {
	return len(r.Failures) > 0
}

// Engine reverses change records through the executor.
type Engine struct {
	exec   *executor.Executor
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

// New creates an Engine.
func New(exec *executor.Executor, store Store, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{exec: exec, store: store, logger: logger, now: time.Now}
}

// RollbackSeason reverses the active records of one season of a show.
func (e *Engine) RollbackSeason(ctx context.Context, q database.SeasonQuery) (*Result, error) {
	records, err := e.store.ActiveRecordsForSeason(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load season records: %w", err)
	}
	season := q.Season
	if season == "" {
		season = media.UnknownSeason
	}
	scope := fmt.Sprintf("%s / %s", q.Show, season)
	if q.MediaType != "" {
		scope = q.MediaType + " / " + scope
	}
	return e.rollback(ctx, scope, records), nil
}

// RollbackRun reverses the active records produced by one run.
func (e *Engine) RollbackRun(ctx context.Context, runID string) (*Result, error) {
	records, err := e.store.ActiveRecordsForRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run records: %w", err)
	}
	return e.rollback(ctx, "run "+runID, records), nil
}

func (e *Engine) rollback(ctx context.Context, scope string, records []database.ChangeRecord) *Result {
	start := time.Now()
	res := &Result{Scope: scope}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})

	for _, rec := range records {
		if ctx.Err() != nil {
			res.NotAttempted++
			res.Cancelled = true
			continue
		}
		res.Attempted++

		opStart := time.Now()
		reason, err := e.revert(ctx, rec)
		e.exec.Report(rec.RunID, activity.PhaseRollback, rec.Operation.String(), rec, err, reason, time.Since(opStart))

		if err != nil {
			res.Failures = append(res.Failures, Failure{
				RecordID:    rec.ID,
				Operation:   rec.Operation,
				Source:      rec.Source,
				Destination: rec.Destination,
				Reason:      reason,
				Error:       err.Error(),
			})
			continue
		}
		res.RolledBack = append(res.RolledBack, rec)
	}

	res.Duration = time.Since(start)
	e.logger.Info("rollback", "Rollback complete",
		logging.F("scope", scope),
		logging.F("rolled_back", len(res.RolledBack)),
		logging.F("failed", len(res.Failures)),
		logging.F("not_attempted", res.NotAttempted))
	return res
}

// revert undoes one record and marks it rolled back. The returned reason
// is empty on success.
func (e *Engine) revert(ctx context.Context, rec database.ChangeRecord) (string, error) {
	switch rec.Operation {
	case media.OpRename, media.OpSubtitleRename, media.OpAudioRename, media.OpPictureRename:
	case media.OpNFODelete:
		return "not_reversible", fmt.Errorf("%s of %s: %w", rec.Operation, rec.Source, ErrNotReversible)
	default:
		return "not_reversible", fmt.Errorf("unknown operation %s: %w", rec.Operation, ErrNotReversible)
	}
	if rec.Destination == "" {
		return "not_reversible", fmt.Errorf("record %d has no destination: %w", rec.ID, ErrNotReversible)
	}

	fsys := e.exec.FS()
	fsCtx := context.WithoutCancel(ctx)

	if _, err := fsys.Lstat(fsCtx, rec.Destination); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "drift", fmt.Errorf("%s is missing: %w", rec.Destination, ErrDrift)
		}
		return transfer.ErrorReason(err), err
	}

	if rec.Fingerprint != "" {
		want, err := transfer.ParseFingerprint(rec.Fingerprint)
		if err != nil {
			return "drift", fmt.Errorf("record %d: %v: %w", rec.ID, err, ErrDrift)
		}
		got, err := fsys.Fingerprint(fsCtx, rec.Destination)
		if err != nil {
			return transfer.ErrorReason(err), err
		}
		if got != want {
			return "drift", fmt.Errorf("%s content differs: %w", rec.Destination, ErrDrift)
		}
	}

	if err := e.exec.MoveBack(ctx, rec.Destination, rec.Source); err != nil {
		if errors.Is(err, executor.ErrCollision) {
			return "source_occupied", err
		}
		return transfer.ErrorReason(err), err
	}

	if err := e.store.MarkRolledBack(fsCtx, rec.ID, e.now()); err != nil {
		// Put the file back so history and disk agree.
		if redoErr := fsys.Move(fsCtx, rec.Source, rec.Destination); redoErr != nil {
			e.logger.Error("rollback", "Failed to restore file after store error", redoErr,
				logging.F("record_id", rec.ID))
			err = errors.Join(err, redoErr)
		}
		return "record_failed", fmt.Errorf("mark record %d rolled back: %w", rec.ID, err)
	}

	if dir := filepath.Dir(rec.Destination); dir != filepath.Dir(rec.Source) {
		if err := fsys.RemoveEmptyDir(fsCtx, dir); err != nil {
			e.logger.Debug("rollback", "Could not remove empty directory",
				logging.F("path", dir), logging.F("error", err.Error()))
		}
	}
	return "", nil
}
