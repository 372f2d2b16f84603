package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Nomadcxx/embress/internal/pathcmp"
	"github.com/Nomadcxx/embress/internal/whitelist"
)

// ListWhitelist returns all whitelist entries ordered by path.
func (m *MediaDB) ListWhitelist(ctx context.Context) ([]whitelist.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.db.QueryContext(ctx, `SELECT path, item_type, added_at FROM whitelist ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list whitelist: %w", err)
	}
	defer rows.Close()

	var entries []whitelist.Entry
	for rows.Next() {
		var e whitelist.Entry
		var itemType string
		if err := rows.Scan(&e.Path, &itemType, &e.AddedAt); err != nil {
			return nil, err
		}
		e.Type = whitelist.EntryType(itemType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertWhitelist stores entries in a single transaction. An existing
// entry keeps its original added_at.
func (m *MediaDB) UpsertWhitelist(ctx context.Context, entries []whitelist.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO whitelist (path, item_type, added_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET item_type = excluded.item_type`)
	if err != nil {
		return fmt.Errorf("failed to prepare whitelist insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if !e.Type.Valid() {
			return fmt.Errorf("whitelist entry %s: invalid type %q", e.Path, e.Type)
		}
		added := e.AddedAt
		if added.IsZero() {
			added = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, pathcmp.Clean(e.Path), string(e.Type), added.UTC()); err != nil {
			return fmt.Errorf("failed to store whitelist entry %s: %w", e.Path, err)
		}
	}

	return tx.Commit()
}

// DeleteWhitelist removes an entry. Reports whether a row was deleted.
func (m *MediaDB) DeleteWhitelist(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, err := m.db.ExecContext(ctx, `DELETE FROM whitelist WHERE path = ?`, pathcmp.Clean(path))
	if err != nil {
		return false, fmt.Errorf("failed to delete whitelist entry: %w", err)
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

var _ whitelist.Store = (*MediaDB)(nil)
