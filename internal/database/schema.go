package database

import "database/sql"

// Schema version for migrations
const currentSchemaVersion = 2

type migration struct {
	version int
	up      []string
}

// SQL migration scripts
var migrations = []migration{
	{
		version: 1,
		up: []string{
			`CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY,
				applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,

			// One row per scan invocation
			`CREATE TABLE scan_runs (
				id TEXT PRIMARY KEY,
				run_trigger TEXT NOT NULL,
				scope TEXT NOT NULL DEFAULT '',
				started_at DATETIME NOT NULL,
				finished_at DATETIME,
				status TEXT NOT NULL DEFAULT 'running',

				-- Outcome counts
				renamed_video INTEGER NOT NULL DEFAULT 0,
				renamed_subtitle INTEGER NOT NULL DEFAULT 0,
				renamed_audio INTEGER NOT NULL DEFAULT 0,
				renamed_picture INTEGER NOT NULL DEFAULT 0,
				deleted_nfo INTEGER NOT NULL DEFAULT 0,
				failed_count INTEGER NOT NULL DEFAULT 0,
				unrenamed_count INTEGER NOT NULL DEFAULT 0,
				skipped_count INTEGER NOT NULL DEFAULT 0,
				warning_count INTEGER NOT NULL DEFAULT 0,

				success INTEGER NOT NULL DEFAULT 0,
				error TEXT
			)`,
			`CREATE INDEX idx_scan_runs_started ON scan_runs(started_at)`,

			// Applied operations. Rows are never deleted; rollback sets rolled_back_at.
			`CREATE TABLE change_records (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				show_name TEXT NOT NULL,
				show_key TEXT NOT NULL,
				media_type TEXT NOT NULL,
				season_label TEXT,
				operation TEXT NOT NULL,
				source_path TEXT NOT NULL,
				destination_path TEXT,
				fingerprint TEXT,
				created_at DATETIME NOT NULL,
				rolled_back_at DATETIME
			)`,
			`CREATE INDEX idx_change_records_show ON change_records(media_type, show_key)`,
			`CREATE INDEX idx_change_records_run ON change_records(run_id)`,
			`CREATE INDEX idx_change_records_created ON change_records(created_at)`,

			`CREATE TABLE whitelist (
				path TEXT PRIMARY KEY,
				item_type TEXT NOT NULL DEFAULT 'file',
				added_at DATETIME NOT NULL
			)`,

			`CREATE TABLE regex_rules (
				list TEXT NOT NULL,
				position INTEGER NOT NULL,
				pattern TEXT NOT NULL,
				PRIMARY KEY (list, position)
			)`,

			`CREATE TABLE settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,

			`INSERT INTO schema_version (version) VALUES (1)`,
		},
	},
	{
		version: 2,
		up: []string{
			// Files the classifier could not map, kept for triage between scans
			`CREATE TABLE unrenamed_files (
				path TEXT PRIMARY KEY,
				reason TEXT NOT NULL DEFAULT '',
				show_name TEXT NOT NULL DEFAULT '',
				media_type TEXT NOT NULL DEFAULT '',
				first_seen DATETIME NOT NULL,
				last_seen DATETIME NOT NULL,
				last_run_id TEXT NOT NULL DEFAULT ''
			)`,
			`INSERT INTO schema_version (version) VALUES (2)`,
		},
	},
}

func applyMigrations(db *sql.DB) error {
	var currentVersion int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&currentVersion)
	if err != nil {
		// schema_version doesn't exist yet - this is a fresh database
		currentVersion = 0
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}

		for _, stmt := range m.up {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return err
			}
		}

		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

// SchemaVersion returns the applied schema version.
func (m *MediaDB) SchemaVersion() (int, error) {
	var v int
	err := m.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&v)
	return v, err
}
