package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Nomadcxx/embress/internal/media"
)

// ChangeRecord is one applied filesystem operation. An empty SeasonLabel
// means the season was not known when the change was applied.
type ChangeRecord struct {
	ID           int64           `json:"id"`
	RunID        string          `json:"run_id"`
	Show         string          `json:"show"`
	MediaType    string          `json:"media_type"`
	SeasonLabel  string          `json:"season_label,omitempty"`
	Operation    media.Operation `json:"operation"`
	Source       string          `json:"source"`
	Destination  string          `json:"destination,omitempty"`
	Fingerprint  string          `json:"fingerprint,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	RolledBackAt *time.Time      `json:"rolled_back_at,omitempty"`
}

// Active reports whether the record has not been rolled back.
func (r ChangeRecord) Active() bool {
	return r.RolledBackAt == nil
}

// Season returns the season label for display.
func (r ChangeRecord) Season() string {
	if r.SeasonLabel == "" {
		return media.UnknownSeason
	}
	return r.SeasonLabel
}

const recordColumns = `id, run_id, show_name, media_type, season_label, operation,
	source_path, destination_path, fingerprint, created_at, rolled_back_at`

// AppendRecord inserts a change record and sets its ID.
func (m *MediaDB) AppendRecord(ctx context.Context, rec *ChangeRecord) error {
	if !rec.Operation.Valid() {
		return fmt.Errorf("invalid operation %d", int(rec.Operation))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	result, err := m.db.ExecContext(ctx, `
		INSERT INTO change_records (
			run_id, show_name, show_key, media_type, season_label, operation,
			source_path, destination_path, fingerprint, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Show, NormalizeTitle(rec.Show), rec.MediaType, nullString(rec.SeasonLabel),
		rec.Operation.String(), rec.Source, nullString(rec.Destination), nullString(rec.Fingerprint),
		rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append change record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get change record id: %w", err)
	}
	rec.ID = id
	return nil
}

// MarkRolledBack stamps a record as undone. Returns ErrNotFound if the
// record does not exist or is already rolled back.
func (m *MediaDB) MarkRolledBack(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, err := m.db.ExecContext(ctx,
		`UPDATE change_records SET rolled_back_at = ? WHERE id = ? AND rolled_back_at IS NULL`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark record rolled back: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("active change record %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetRecord returns one record by id.
func (m *MediaDB) GetRecord(ctx context.Context, id int64) (*ChangeRecord, error) {
	records, err := m.queryRecords(ctx, `SELECT `+recordColumns+` FROM change_records WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("change record %d: %w", id, ErrNotFound)
	}
	return &records[0], nil
}

// RecordsForRun returns every record a run produced, oldest first.
func (m *MediaDB) RecordsForRun(ctx context.Context, runID string) ([]ChangeRecord, error) {
	return m.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM change_records WHERE run_id = ? ORDER BY created_at, id`, runID)
}

// RecordsForShow returns every record of a show, oldest first. An empty
// mediaType matches all media types.
func (m *MediaDB) RecordsForShow(ctx context.Context, mediaType, show string) ([]ChangeRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM change_records WHERE show_key = ?`
	args := []interface{}{NormalizeTitle(show)}
	if mediaType != "" {
		query += ` AND media_type = ?`
		args = append(args, mediaType)
	}
	query += ` ORDER BY created_at, id`
	return m.queryRecords(ctx, query, args...)
}

// SeasonQuery selects the records of one season of one show.
type SeasonQuery struct {
	MediaType string // empty matches all media types
	Show      string
	Season    string // empty or media.UnknownSeason selects the unknown season
}

// ActiveRecordsForSeason returns active records of a season, newest first.
func (m *MediaDB) ActiveRecordsForSeason(ctx context.Context, q SeasonQuery) ([]ChangeRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM change_records
		WHERE rolled_back_at IS NULL AND show_key = ?`
	args := []interface{}{NormalizeTitle(q.Show)}

	if q.MediaType != "" {
		query += ` AND media_type = ?`
		args = append(args, q.MediaType)
	}

	season := strings.TrimSpace(q.Season)
	if season == "" || strings.EqualFold(season, media.UnknownSeason) {
		query += ` AND season_label IS NULL`
	} else {
		query += ` AND season_label = ? COLLATE NOCASE`
		args = append(args, season)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	return m.queryRecords(ctx, query, args...)
}

// ActiveRecordsForRun returns active records of a run, newest first.
func (m *MediaDB) ActiveRecordsForRun(ctx context.Context, runID string) ([]ChangeRecord, error) {
	return m.queryRecords(ctx, `SELECT `+recordColumns+` FROM change_records
		WHERE rolled_back_at IS NULL AND run_id = ?
		ORDER BY created_at DESC, id DESC`, runID)
}

func (m *MediaDB) queryRecords(ctx context.Context, query string, args ...interface{}) ([]ChangeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query change records: %w", err)
	}
	defer rows.Close()

	var records []ChangeRecord
	for rows.Next() {
		var (
			rec         ChangeRecord
			season      sql.NullString
			op          string
			dest        sql.NullString
			fingerprint sql.NullString
			rolledBack  sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Show, &rec.MediaType, &season, &op,
			&rec.Source, &dest, &fingerprint, &rec.CreatedAt, &rolledBack); err != nil {
			return nil, err
		}
		rec.Operation, err = media.ParseOperation(op)
		if err != nil {
			return nil, fmt.Errorf("change record %d: %w", rec.ID, err)
		}
		rec.SeasonLabel = season.String
		rec.Destination = dest.String
		rec.Fingerprint = fingerprint.String
		if rolledBack.Valid {
			t := rolledBack.Time
			rec.RolledBackAt = &t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ShowSummary describes one show that has change records.
type ShowSummary struct {
	MediaType  string    `json:"media_type"`
	Show       string    `json:"show"`
	Records    int       `json:"records"`
	Active     int       `json:"active"`
	LastChange time.Time `json:"last_change"`
}

// ListShows returns every show with at least one change record, ordered by
// media type and name.
func (m *MediaDB) ListShows(ctx context.Context) ([]ShowSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.db.QueryContext(ctx, `
		SELECT media_type, show_key,
			(SELECT c2.show_name FROM change_records c2
				WHERE c2.media_type = c.media_type AND c2.show_key = c.show_key
				ORDER BY c2.id DESC LIMIT 1),
			COUNT(*),
			SUM(CASE WHEN rolled_back_at IS NULL THEN 1 ELSE 0 END),
			MAX(id)
		FROM change_records c
		GROUP BY media_type, show_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list shows: %w", err)
	}
	defer rows.Close()

	type row struct {
		summary ShowSummary
		lastID  int64
	}
	var found []row
	for rows.Next() {
		var r row
		var key string
		if err := rows.Scan(&r.summary.MediaType, &key, &r.summary.Show,
			&r.summary.Records, &r.summary.Active, &r.lastID); err != nil {
			return nil, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	shows := make([]ShowSummary, 0, len(found))
	for _, r := range found {
		var last time.Time
		if err := m.db.QueryRowContext(ctx,
			`SELECT created_at FROM change_records WHERE id = ?`, r.lastID).Scan(&last); err != nil {
			return nil, fmt.Errorf("failed to read last change: %w", err)
		}
		r.summary.LastChange = last
		shows = append(shows, r.summary)
	}

	sort.Slice(shows, func(i, j int) bool {
		if shows[i].MediaType != shows[j].MediaType {
			return shows[i].MediaType < shows[j].MediaType
		}
		return strings.ToLower(shows[i].Show) < strings.ToLower(shows[j].Show)
	})
	return shows, nil
}

// GroupBy selects how RecordGroups are formed.
type GroupBy string

const (
	GroupByType   GroupBy = "type"
	GroupBySeason GroupBy = "season"
)

// ParseGroupBy accepts "type" or "season"; empty means season.
func ParseGroupBy(s string) (GroupBy, error) {
	switch GroupBy(strings.ToLower(s)) {
	case "", GroupBySeason:
		return GroupBySeason, nil
	case GroupByType:
		return GroupByType, nil
	default:
		return "", fmt.Errorf("unknown grouping %q (want type or season)", s)
	}
}

// RecordGroup is a labelled slice of records in timestamp order.
type RecordGroup struct {
	Label   string         `json:"label"`
	Records []ChangeRecord `json:"records"`
}

// GroupRecords partitions records by operation type or by season. Records
// keep their relative order inside a group.
func GroupRecords(records []ChangeRecord, by GroupBy) []RecordGroup {
	index := make(map[string]int)
	var groups []RecordGroup
	for _, rec := range records {
		label := rec.Season()
		if by == GroupByType {
			label = rec.Operation.String()
		}
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, RecordGroup{Label: label})
		}
		groups[i].Records = append(groups[i].Records, rec)
	}

	if by == GroupByType {
		order := make(map[string]int)
		for i, op := range media.Operations() {
			order[op.String()] = i
		}
		sort.SliceStable(groups, func(i, j int) bool {
			return order[groups[i].Label] < order[groups[j].Label]
		})
	} else {
		sort.SliceStable(groups, func(i, j int) bool {
			return media.SeasonLess(groups[i].Label, groups[j].Label)
		})
	}
	return groups
}
