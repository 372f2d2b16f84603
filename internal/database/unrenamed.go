package database

import (
	"context"
	"fmt"
	"time"
)

// UnrenamedFile is a file the last scan of its directory could not name.
type UnrenamedFile struct {
	Path      string    `json:"path"`
	Reason    string    `json:"reason"`
	Show      string    `json:"show,omitempty"`
	MediaType string    `json:"media_type,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	LastRunID string    `json:"last_run_id"`
}

// ReplaceUnrenamed swaps the triage queue entries under scope for files.
// An empty scope replaces the whole queue. Files already queued keep
// their first_seen time.
func (m *MediaDB) ReplaceUnrenamed(ctx context.Context, scope, runID string, files []UnrenamedFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	keep := make(map[string]bool, len(files))
	for _, f := range files {
		keep[f.Path] = true
	}

	var existing []string
	query := `SELECT path FROM unrenamed_files`
	var args []interface{}
	if scope != "" {
		query += ` WHERE path = ? OR path LIKE ? ESCAPE '\'`
		args = append(args, scope, likePrefix(scope))
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to read unrenamed files: %w", err)
	}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return err
		}
		existing = append(existing, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range existing {
		if keep[p] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM unrenamed_files WHERE path = ?`, p); err != nil {
			return fmt.Errorf("failed to clear unrenamed file: %w", err)
		}
	}

	now := time.Now().UTC()
	for _, f := range files {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO unrenamed_files (path, reason, show_name, media_type, first_seen, last_seen, last_run_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				reason = excluded.reason,
				show_name = excluded.show_name,
				media_type = excluded.media_type,
				last_seen = excluded.last_seen,
				last_run_id = excluded.last_run_id`,
			f.Path, f.Reason, f.Show, f.MediaType, now, now, runID)
		if err != nil {
			return fmt.Errorf("failed to queue unrenamed file %s: %w", f.Path, err)
		}
	}

	return tx.Commit()
}

// ListUnrenamed returns the triage queue ordered by path.
func (m *MediaDB) ListUnrenamed(ctx context.Context) ([]UnrenamedFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.db.QueryContext(ctx, `
		SELECT path, reason, show_name, media_type, first_seen, last_seen, last_run_id
		FROM unrenamed_files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unrenamed files: %w", err)
	}
	defer rows.Close()

	var files []UnrenamedFile
	for rows.Next() {
		var f UnrenamedFile
		if err := rows.Scan(&f.Path, &f.Reason, &f.Show, &f.MediaType, &f.FirstSeen, &f.LastSeen, &f.LastRunID); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteUnrenamed drops one file from the triage queue.
func (m *MediaDB) DeleteUnrenamed(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.db.ExecContext(ctx, `DELETE FROM unrenamed_files WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("failed to delete unrenamed file: %w", err)
	}
	return nil
}
