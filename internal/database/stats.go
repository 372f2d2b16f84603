package database

import (
	"context"
	"fmt"
)

// Stats aggregates the store for status displays.
type Stats struct {
	Runs            int            `json:"runs"`
	RunsWithChanges int            `json:"runs_with_changes"`
	Shows           int            `json:"shows"`
	Records         int            `json:"records"`
	ActiveRecords   int            `json:"active_records"`
	RolledBack      int            `json:"rolled_back"`
	ByOperation     map[string]int `json:"by_operation"`
	Whitelisted     int            `json:"whitelisted"`
	Unrenamed       int            `json:"unrenamed"`
}

// GetStats returns counts across all tables.
func (m *MediaDB) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &Stats{ByOperation: make(map[string]int)}

	counts := []struct {
		dest  *int
		query string
	}{
		{&s.Runs, `SELECT COUNT(*) FROM scan_runs`},
		{&s.RunsWithChanges, `SELECT COUNT(*) FROM scan_runs WHERE ` + changesExpr + ` > 0`},
		{&s.Shows, `SELECT COUNT(*) FROM (SELECT DISTINCT media_type, show_key FROM change_records)`},
		{&s.Records, `SELECT COUNT(*) FROM change_records`},
		{&s.ActiveRecords, `SELECT COUNT(*) FROM change_records WHERE rolled_back_at IS NULL`},
		{&s.Whitelisted, `SELECT COUNT(*) FROM whitelist`},
		{&s.Unrenamed, `SELECT COUNT(*) FROM unrenamed_files`},
	}
	for _, c := range counts {
		if err := m.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to compute stats: %w", err)
		}
	}
	s.RolledBack = s.Records - s.ActiveRecords

	rows, err := m.db.QueryContext(ctx,
		`SELECT operation, COUNT(*) FROM change_records WHERE rolled_back_at IS NULL GROUP BY operation`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute operation stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var op string
		var n int
		if err := rows.Scan(&op, &n); err != nil {
			return nil, err
		}
		s.ByOperation[op] = n
	}
	return s, rows.Err()
}
