// Package storage persists tracked applications, the processed-message set,
// run leases, and settings in SQLite.
package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for applications, the
// idempotence set, and run coordination.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "apptrack.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying database handle (used by tests).
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	applied, err := s.AppliedMigrations()
	if err != nil {
		return err
	}
	appliedSet := make(map[int]bool, len(applied))
	for _, v := range applied {
		appliedSet[v] = true
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("migration %s has no numeric prefix: %w", entry.Name(), err)
		}
		if appliedSet[version] {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration transaction: %w", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %s: %w", entry.Name(), err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", entry.Name(), err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// AppliedMigrations returns the sorted list of applied migration versions.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query(`SELECT version FROM schema_version ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("querying schema_version: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

const applicationColumns = `id, rowid, processed_at, email_date, platform, company, job_title,
	status, peak_status, last_update_date, email_subject, email_link, email_id, notes`

func scanApplication(scan func(dest ...any) error) (Application, error) {
	var a Application
	var processedAt, emailDate, lastUpdate string
	err := scan(
		&a.ID, &a.RowID, &processedAt, &emailDate, &a.Platform, &a.Company, &a.JobTitle,
		&a.Status, &a.PeakStatus, &lastUpdate, &a.EmailSubject, &a.EmailLink, &a.EmailID, &a.Notes,
	)
	if err != nil {
		return Application{}, err
	}
	if a.ProcessedAt, err = time.Parse(time.RFC3339, processedAt); err != nil {
		return Application{}, fmt.Errorf("parsing processed_at for %s: %w", a.ID, err)
	}
	if a.EmailDate, err = time.Parse(time.RFC3339, emailDate); err != nil {
		return Application{}, fmt.Errorf("parsing email_date for %s: %w", a.ID, err)
	}
	if a.LastUpdate, err = time.Parse(time.RFC3339, lastUpdate); err != nil {
		return Application{}, fmt.Errorf("parsing last_update_date for %s: %w", a.ID, err)
	}
	return a, nil
}

// ListApplications returns all tracked applications in rowid order.
func (s *Store) ListApplications() ([]Application, error) {
	rows, err := s.db.Query(`SELECT ` + applicationColumns + ` FROM applications ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying applications: %w", err)
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		a, err := scanApplication(rows.Scan)
		if err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// GetApplication returns the application with the given ID.
func (s *Store) GetApplication(id string) (Application, error) {
	row := s.db.QueryRow(`SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	a, err := scanApplication(row.Scan)
	if err == sql.ErrNoRows {
		return Application{}, ErrNotFound
	}
	if err != nil {
		return Application{}, err
	}
	return a, nil
}

// InsertApplication appends a new application row and returns it with its
// assigned rowid.
func (s *Store) InsertApplication(a Application) (Application, error) {
	res, err := s.db.Exec(`
		INSERT INTO applications (id, processed_at, email_date, platform, company, job_title,
			status, peak_status, last_update_date, email_subject, email_link, email_id, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProcessedAt.UTC().Format(time.RFC3339), a.EmailDate.UTC().Format(time.RFC3339),
		a.Platform, a.Company, a.JobTitle, a.Status, a.PeakStatus,
		a.LastUpdate.UTC().Format(time.RFC3339), a.EmailSubject, a.EmailLink, a.EmailID, a.Notes,
	)
	if err != nil {
		return Application{}, fmt.Errorf("inserting application: %w", err)
	}
	if a.RowID, err = res.LastInsertId(); err != nil {
		return Application{}, fmt.Errorf("reading inserted rowid: %w", err)
	}
	return a, nil
}

// UpdateApplication overwrites the row identified by a.ID.
func (s *Store) UpdateApplication(a Application) error {
	res, err := s.db.Exec(`
		UPDATE applications SET processed_at = ?, email_date = ?, platform = ?, company = ?,
			job_title = ?, status = ?, peak_status = ?, last_update_date = ?,
			email_subject = ?, email_link = ?, email_id = ?, notes = ?
		WHERE id = ?`,
		a.ProcessedAt.UTC().Format(time.RFC3339), a.EmailDate.UTC().Format(time.RFC3339),
		a.Platform, a.Company, a.JobTitle, a.Status, a.PeakStatus,
		a.LastUpdate.UTC().Format(time.RFC3339), a.EmailSubject, a.EmailLink, a.EmailID, a.Notes,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating application %s: %w", a.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteApplication removes a row. Only the manual merge operation uses
// this; the pipeline never deletes.
func (s *Store) DeleteApplication(id string) error {
	res, err := s.db.Exec(`DELETE FROM applications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting application %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ProcessedMessageIDs returns the idempotence set: every message ID in the
// processed_messages table, plus the email_id column of existing rows.
// The column scan keeps deployments that predate the dedicated table safe.
func (s *Store) ProcessedMessageIDs() (map[string]bool, error) {
	set := make(map[string]bool)

	rows, err := s.db.Query(`SELECT message_id FROM processed_messages`)
	if err != nil {
		return nil, fmt.Errorf("querying processed messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	appRows, err := s.db.Query(`SELECT email_id FROM applications WHERE email_id != ''`)
	if err != nil {
		return nil, fmt.Errorf("querying application email ids: %w", err)
	}
	defer appRows.Close()
	for appRows.Next() {
		var id string
		if err := appRows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = true
	}
	return set, appRows.Err()
}

// MarkProcessed records a message ID in the idempotence set. Re-marking an
// already-processed ID is a no-op.
func (s *Store) MarkProcessed(messageID string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO processed_messages (message_id, processed_at) VALUES (?, ?)
		ON CONFLICT(message_id) DO NOTHING`,
		messageID, at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("marking message processed: %w", err)
	}
	return nil
}

const runLeaseName = "pipeline"

// AcquireRunLease claims the single pipeline run lease for ttl. It returns
// ErrRunInProgress when an unexpired lease is held by someone else. An
// expired lease is taken over.
func (s *Store) AcquireRunLease(holder string, ttl time.Duration) error {
	now := time.Now().UTC()
	expires := now.Add(ttl).Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning lease transaction: %w", err)
	}
	defer tx.Rollback()

	var curHolder, curExpires string
	err = tx.QueryRow(`SELECT holder, expires_at FROM run_leases WHERE name = ?`, runLeaseName).
		Scan(&curHolder, &curExpires)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(`INSERT INTO run_leases (name, holder, expires_at) VALUES (?, ?, ?)`,
			runLeaseName, holder, expires); err != nil {
			return fmt.Errorf("inserting lease: %w", err)
		}
	case err != nil:
		return fmt.Errorf("reading lease: %w", err)
	default:
		exp, parseErr := time.Parse(time.RFC3339, curExpires)
		if parseErr == nil && exp.After(now) && curHolder != holder {
			return ErrRunInProgress
		}
		if _, err := tx.Exec(`UPDATE run_leases SET holder = ?, expires_at = ? WHERE name = ?`,
			holder, expires, runLeaseName); err != nil {
			return fmt.Errorf("updating lease: %w", err)
		}
	}

	return tx.Commit()
}

// ReleaseRunLease releases the pipeline lease if holder still owns it.
func (s *Store) ReleaseRunLease(holder string) error {
	_, err := s.db.Exec(`DELETE FROM run_leases WHERE name = ? AND holder = ?`, runLeaseName, holder)
	if err != nil {
		return fmt.Errorf("releasing lease: %w", err)
	}
	return nil
}

// SetSetting writes a key-value setting.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetSetting reads a setting; missing keys return "".
func (s *Store) GetSetting(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}
