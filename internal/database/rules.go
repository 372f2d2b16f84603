package database

import (
	"context"
	"fmt"

	"github.com/Nomadcxx/embress/internal/rules"
)

const rulesSavedKey = "rules.saved"

// LoadRules returns the persisted rule set. found is false when rules were
// never saved and the caller should fall back to the defaults.
func (m *MediaDB) LoadRules(ctx context.Context) (set rules.Set, found bool, err error) {
	if _, found, err = m.GetSetting(ctx, rulesSavedKey); err != nil || !found {
		return rules.Set{}, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.db.QueryContext(ctx, `SELECT list, pattern FROM regex_rules ORDER BY list, position`)
	if err != nil {
		return rules.Set{}, false, fmt.Errorf("failed to load rules: %w", err)
	}
	defer rows.Close()

	set = rules.Set{SeasonEpisode: []string{}, EpisodeOnly: []string{}}
	for rows.Next() {
		var list, pattern string
		if err := rows.Scan(&list, &pattern); err != nil {
			return rules.Set{}, false, err
		}
		switch list {
		case rules.ListSeasonEpisode:
			set.SeasonEpisode = append(set.SeasonEpisode, pattern)
		case rules.ListEpisodeOnly:
			set.EpisodeOnly = append(set.EpisodeOnly, pattern)
		}
	}
	return set, true, rows.Err()
}

// SaveRules replaces the persisted rule set in one transaction. Callers
// validate the set first.
func (m *MediaDB) SaveRules(ctx context.Context, set rules.Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM regex_rules`); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	lists := []struct {
		name     string
		patterns []string
	}{
		{rules.ListSeasonEpisode, set.SeasonEpisode},
		{rules.ListEpisodeOnly, set.EpisodeOnly},
	}
	for _, l := range lists {
		for i, p := range l.patterns {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO regex_rules (list, position, pattern) VALUES (?, ?, ?)`,
				l.name, i, p); err != nil {
				return fmt.Errorf("failed to store rule %s[%d]: %w", l.name, i, err)
			}
		}
	}

	if err := setSettingTx(ctx, tx, rulesSavedKey, "1"); err != nil {
		return err
	}
	return tx.Commit()
}
