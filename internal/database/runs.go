package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Nomadcxx/embress/internal/media"
)

// Trigger identifies what started a scan run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerSubPath   Trigger = "sub_path"
	TriggerWatch     Trigger = "watch"
)

// RunStatus is the lifecycle state of a scan run.
type RunStatus string

const (
	RunRunning         RunStatus = "running"
	RunCompleted       RunStatus = "completed"
	RunPartiallyFailed RunStatus = "partially_failed"
	RunFailed          RunStatus = "failed"
	RunCancelled       RunStatus = "cancelled"
)

// RunCounts summarizes what a run did.
type RunCounts struct {
	RenamedVideo    int `json:"renamed_video"`
	RenamedSubtitle int `json:"renamed_subtitle"`
	RenamedAudio    int `json:"renamed_audio"`
	RenamedPicture  int `json:"renamed_picture"`
	DeletedNFO      int `json:"deleted_nfo"`
	Failed          int `json:"failed"`
	Unrenamed       int `json:"unrenamed"`
	Skipped         int `json:"skipped"`
	Warnings        int `json:"warnings"`
}

// Add counts one applied operation.
func (c *RunCounts) Add(op media.Operation) {
	switch op {
	case media.OpRename:
		c.RenamedVideo++
	case media.OpSubtitleRename:
		c.RenamedSubtitle++
	case media.OpAudioRename:
		c.RenamedAudio++
	case media.OpPictureRename:
		c.RenamedPicture++
	case media.OpNFODelete:
		c.DeletedNFO++
	}
}

// Changes returns the number of applied operations.
func (c RunCounts) Changes() int {
	return c.RenamedVideo + c.RenamedSubtitle + c.RenamedAudio + c.RenamedPicture + c.DeletedNFO
}

// ScanRun is one invocation of the scan coordinator.
type ScanRun struct {
	ID         string     `json:"id"`
	Trigger    Trigger    `json:"trigger"`
	Scope      string     `json:"scope,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     RunStatus  `json:"status"`
	Counts     RunCounts  `json:"counts"`
	Success    bool       `json:"success"`
	Error      string     `json:"error,omitempty"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	ChangesOnly bool
	Limit       int
}

const runColumns = `id, run_trigger, scope, started_at, finished_at, status,
	renamed_video, renamed_subtitle, renamed_audio, renamed_picture, deleted_nfo,
	failed_count, unrenamed_count, skipped_count, warning_count, success, error`

const changesExpr = `(renamed_video + renamed_subtitle + renamed_audio + renamed_picture + deleted_nfo)`

// CreateRun inserts a run in the running state.
func (m *MediaDB) CreateRun(ctx context.Context, run *ScanRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.StartedAt = run.StartedAt.UTC()
	if run.Status == "" {
		run.Status = RunRunning
	}

	_, err := m.db.ExecContext(ctx,
		`INSERT INTO scan_runs (id, run_trigger, scope, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Trigger), run.Scope, run.StartedAt, string(run.Status))
	if err != nil {
		return fmt.Errorf("failed to create scan run: %w", err)
	}
	return nil
}

// FinishRun stores the final status and counts of a run.
func (m *MediaDB) FinishRun(ctx context.Context, id string, status RunStatus, counts RunCounts, runErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	success := status == RunCompleted
	result, err := m.db.ExecContext(ctx, `
		UPDATE scan_runs SET
			finished_at = ?, status = ?,
			renamed_video = ?, renamed_subtitle = ?, renamed_audio = ?, renamed_picture = ?, deleted_nfo = ?,
			failed_count = ?, unrenamed_count = ?, skipped_count = ?, warning_count = ?,
			success = ?, error = ?
		WHERE id = ?`,
		time.Now().UTC(), string(status),
		counts.RenamedVideo, counts.RenamedSubtitle, counts.RenamedAudio, counts.RenamedPicture, counts.DeletedNFO,
		counts.Failed, counts.Unrenamed, counts.Skipped, counts.Warnings,
		success, nullString(runErr), id)
	if err != nil {
		return fmt.Errorf("failed to finish scan run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("scan run %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetRun returns one run by id.
func (m *MediaDB) GetRun(ctx context.Context, id string) (*ScanRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row := m.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM scan_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// LastRun returns the most recently started run, or nil when there is none.
func (m *MediaDB) LastRun(ctx context.Context) (*ScanRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row := m.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM scan_runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRuns returns runs newest first.
func (m *MediaDB) ListRuns(ctx context.Context, filter RunFilter) ([]ScanRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	query := `SELECT ` + runColumns + ` FROM scan_runs`
	if filter.ChangesOnly {
		query += ` WHERE ` + changesExpr + ` > 0`
	}
	query += ` ORDER BY started_at DESC, rowid DESC`

	var args []interface{}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan runs: %w", err)
	}
	defer rows.Close()

	var runs []ScanRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// PruneRuns deletes finished runs that applied no changes and fall outside
// the newest keep runs. With emptyAll set, every finished run without
// changes is deleted. Runs with change records are always kept.
func (m *MediaDB) PruneRuns(ctx context.Context, keep int, emptyAll bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := `DELETE FROM scan_runs
		WHERE status != 'running'
		AND ` + changesExpr + ` = 0
		AND NOT EXISTS (SELECT 1 FROM change_records c WHERE c.run_id = scan_runs.id)`
	var args []interface{}
	if !emptyAll {
		if keep <= 0 {
			return 0, nil
		}
		query += ` AND id NOT IN (SELECT id FROM scan_runs ORDER BY started_at DESC, rowid DESC LIMIT ?)`
		args = append(args, keep)
	}

	result, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune scan runs: %w", err)
	}
	return result.RowsAffected()
}

// MarkInterruptedRuns closes runs left running by a previous process.
func (m *MediaDB) MarkInterruptedRuns(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, err := m.db.ExecContext(ctx,
		`UPDATE scan_runs SET status = ?, finished_at = ?, error = 'interrupted' WHERE status = ?`,
		string(RunFailed), time.Now().UTC(), string(RunRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted runs: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*ScanRun, error) {
	var (
		run        ScanRun
		trigger    string
		status     string
		finishedAt sql.NullTime
		runErr     sql.NullString
	)
	err := row.Scan(
		&run.ID, &trigger, &run.Scope, &run.StartedAt, &finishedAt, &status,
		&run.Counts.RenamedVideo, &run.Counts.RenamedSubtitle, &run.Counts.RenamedAudio,
		&run.Counts.RenamedPicture, &run.Counts.DeletedNFO,
		&run.Counts.Failed, &run.Counts.Unrenamed, &run.Counts.Skipped, &run.Counts.Warnings,
		&run.Success, &runErr,
	)
	if err != nil {
		return nil, err
	}
	run.Trigger = Trigger(trigger)
	run.Status = RunStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	run.Error = runErr.String
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
