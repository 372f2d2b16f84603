package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

const schedulerEnabledKey = "scheduler.enabled"

// GetSetting returns a runtime setting. found is false if it was never set.
func (m *MediaDB) GetSetting(ctx context.Context, key string) (value string, found bool, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	err = m.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting stores a runtime setting.
func (m *MediaDB) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return setSettingTx(ctx, m.db, key, value)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func setSettingTx(ctx context.Context, db execer, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to store setting %s: %w", key, err)
	}
	return nil
}

// SchedulerEnabled returns the persisted scheduler switch, or def when it
// was never toggled.
func (m *MediaDB) SchedulerEnabled(ctx context.Context, def bool) (bool, error) {
	v, found, err := m.GetSetting(ctx, schedulerEnabledKey)
	if err != nil || !found {
		return def, err
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return def, nil
	}
	return enabled, nil
}

// SetSchedulerEnabled persists the scheduler switch.
func (m *MediaDB) SetSchedulerEnabled(ctx context.Context, enabled bool) error {
	return m.SetSetting(ctx, schedulerEnabledKey, strconv.FormatBool(enabled))
}
