package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
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

// DBFileName is the name of the SQLite file created inside the data directory.
const DBFileName = "voice_crm.db"

// timeLayout is fixed-width so that lexical order of the stored text equals
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const interactionColumns = `id, transcript, customer_name, phone, address, city, locality, summary, raw_json, created_at`

// Store wraps a SQLite database holding interaction records.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, DBFileName)
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

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
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

// migrate applies embedded SQL migrations that haven't been run yet.
func (s *Store) migrate() error {
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
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
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

// --- Interactions ---

// CreateInteraction inserts i in its own transaction and sets i.ID. A zero
// CreatedAt is replaced with the current time before the insert.
func (s *Store) CreateInteraction(ctx context.Context, i *Interaction) error {
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning create transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO interactions (transcript, customer_name, phone, address, city, locality, summary, raw_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(i.Transcript), nullString(i.CustomerName), nullString(i.Phone), nullString(i.Address),
		nullString(i.City), nullString(i.Locality), nullString(i.Summary), nullString(i.RawJSON),
		formatTime(i.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting interaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing interaction: %w", err)
	}

	i.ID = id
	return nil
}

// ListInteractions returns every interaction, most recent first.
func (s *Store) ListInteractions(ctx context.Context) ([]Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+interactionColumns+`
		FROM interactions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, i)
	}
	return results, rows.Err()
}

// UpdateInteraction loads the interaction, lets apply mutate it and writes all
// mutable columns back, all within one transaction. ID and CreatedAt are never
// written. Returns ErrNotFound when no such record exists; an error from apply
// aborts the transaction and is returned unchanged.
func (s *Store) UpdateInteraction(ctx context.Context, id int64, apply func(*Interaction) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning update transaction: %w", err)
	}
	defer tx.Rollback()

	i, err := getInteraction(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := apply(&i); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE interactions
		SET transcript = ?, customer_name = ?, phone = ?, address = ?, city = ?, locality = ?, summary = ?, raw_json = ?
		WHERE id = ?`,
		nullString(i.Transcript), nullString(i.CustomerName), nullString(i.Phone), nullString(i.Address),
		nullString(i.City), nullString(i.Locality), nullString(i.Summary), nullString(i.RawJSON),
		id,
	); err != nil {
		return fmt.Errorf("updating interaction %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing interaction %d: %w", id, err)
	}
	return nil
}

// DeleteInteraction removes the interaction or returns ErrNotFound.
func (s *Store) DeleteInteraction(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM interactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting interaction %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// CountInteractions returns the number of stored interactions.
func (s *Store) CountInteractions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&n)
	return n, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getInteraction(ctx context.Context, q queryRower, id int64) (Interaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+interactionColumns+` FROM interactions WHERE id = ?`, id)
	i, err := scanInteraction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Interaction{}, ErrNotFound
	}
	if err != nil {
		return Interaction{}, err
	}
	return i, nil
}

func scanInteraction(row rowScanner) (Interaction, error) {
	var i Interaction
	var transcript, name, phone, address, city, locality, summary, rawJSON sql.NullString
	var createdAt any
	if err := row.Scan(&i.ID, &transcript, &name, &phone, &address, &city, &locality, &summary, &rawJSON, &createdAt); err != nil {
		return Interaction{}, err
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return Interaction{}, fmt.Errorf("parsing created_at of interaction %d: %w", i.ID, err)
	}
	i.CreatedAt = t
	i.Transcript = stringPtr(transcript)
	i.CustomerName = stringPtr(name)
	i.Phone = stringPtr(phone)
	i.Address = stringPtr(address)
	i.City = stringPtr(city)
	i.Locality = stringPtr(locality)
	i.Summary = stringPtr(summary)
	i.RawJSON = stringPtr(rawJSON)
	return i, nil
}

// formatTime writes a fixed-width timestamp so that text order in the
// created_at index matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime reads created_at back. The driver hands DATETIME columns over as
// time.Time when it recognises the text, otherwise as the stored string.
func parseTime(v any) (time.Time, error) {
	var text string
	switch v := v.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return time.Time{}, fmt.Errorf("unexpected created_at type %T", v)
	}
	t, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
