package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/terrane-io/terrane/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLiteStore implements engine.StateStore on a single SQLite database.
// Writes to the same identity are serialized with a per-identity lock;
// writes to different identities proceed concurrently and SQLite's WAL
// journal keeps readers unblocked.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ engine.StateStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store for the given configuration. Call Init to
// open the database and Migrate to bring the schema up to date.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &SQLiteStore{
		path:  cfg.Path,
		cfg:   cfg,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Open creates, initializes and migrates a store in one call.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Migrate runs embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// identityLock returns the write lock for one identity.
func (s *SQLiteStore) identityLock(identity string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[identity]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[identity] = lock
	}
	return lock
}

const stateColumns = "identity, resource_type, provider_id, attributes, outputs, dependencies, last_run_id, applied_at"

// Load returns every state record, keyed by identity.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]*engine.StateRecord, error) {
	query := `SELECT ` + stateColumns + ` FROM resource_state`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load resource state: %w", err)
	}
	defer rows.Close()

	records := make(map[string]*engine.StateRecord)
	for rows.Next() {
		rec, err := scanStateRecord(rows)
		if err != nil {
			return nil, err
		}
		records[rec.Identity] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resource state: %w", err)
	}
	return records, nil
}

// Get returns the record for one identity, or nil if absent.
func (s *SQLiteStore) Get(ctx context.Context, identity string) (*engine.StateRecord, error) {
	query := `SELECT ` + stateColumns + ` FROM resource_state WHERE identity = ?`

	rec, err := scanStateRecord(s.db.QueryRowContext(ctx, query, identity))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Save upserts the record for record.Identity.
func (s *SQLiteStore) Save(ctx context.Context, record *engine.StateRecord) error {
	lock := s.identityLock(record.Identity)
	lock.Lock()
	defer lock.Unlock()

	attrs, err := json.Marshal(record.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	outputs, err := json.Marshal(record.Outputs)
	if err != nil {
		return fmt.Errorf("failed to encode outputs: %w", err)
	}
	deps, err := json.Marshal(record.Dependencies)
	if err != nil {
		return fmt.Errorf("failed to encode dependencies: %w", err)
	}

	query := `
		INSERT INTO resource_state (` + stateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			resource_type = excluded.resource_type,
			provider_id = excluded.provider_id,
			attributes = excluded.attributes,
			outputs = excluded.outputs,
			dependencies = excluded.dependencies,
			last_run_id = excluded.last_run_id,
			applied_at = excluded.applied_at,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = s.db.ExecContext(ctx, query,
		record.Identity,
		record.Type,
		record.ProviderID,
		string(attrs),
		string(outputs),
		string(deps),
		record.LastRunID,
		record.AppliedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert resource state: %w", err)
	}
	return nil
}

// Remove deletes the record for the identity. Removing an absent record is
// not an error.
func (s *SQLiteStore) Remove(ctx context.Context, identity string) error {
	lock := s.identityLock(identity)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM resource_state WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("failed to delete resource state: %w", err)
	}
	return nil
}

// SaveRun upserts the run header and its results.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *engine.Run) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	results, err := json.Marshal(run.Results)
	if err != nil {
		return fmt.Errorf("failed to encode run results: %w", err)
	}

	var completedAt any
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	query := `
		INSERT INTO runs (id, plan_id, status, started_at, completed_at, summary, results)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			summary = excluded.summary,
			results = excluded.results,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		run.PlanID,
		string(run.Status),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		completedAt,
		string(summary),
		string(results),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*engine.Run, error) {
	query := `
		SELECT id, plan_id, status, started_at, completed_at, summary, results
		FROM runs WHERE id = ?
	`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return run, err
}

// ListRuns returns run headers, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*engine.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, plan_id, status, started_at, completed_at, summary, results
		FROM runs ORDER BY started_at DESC LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*engine.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// AppendEvent persists one timeline event.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *engine.Event) error {
	query := `
		INSERT INTO events (run_id, identity, type, message, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.RunID,
		event.Identity,
		string(event.Type),
		event.Message,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListEvents returns the timeline for one run, oldest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, limit int) ([]*engine.Event, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `
		SELECT run_id, identity, type, message, timestamp
		FROM events WHERE run_id = ? ORDER BY id ASC LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*engine.Event
	for rows.Next() {
		var event engine.Event
		var eventType, ts string
		if err := rows.Scan(&event.RunID, &event.Identity, &eventType, &event.Message, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Type = engine.EventType(eventType)
		event.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStateRecord(row scanner) (*engine.StateRecord, error) {
	var rec engine.StateRecord
	var attrs, outputs, deps, appliedAt string
	if err := row.Scan(
		&rec.Identity,
		&rec.Type,
		&rec.ProviderID,
		&attrs,
		&outputs,
		&deps,
		&rec.LastRunID,
		&appliedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan resource state: %w", err)
	}
	if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
		return nil, fmt.Errorf("failed to decode attributes for %s: %w", rec.Identity, err)
	}
	if err := json.Unmarshal([]byte(outputs), &rec.Outputs); err != nil {
		return nil, fmt.Errorf("failed to decode outputs for %s: %w", rec.Identity, err)
	}
	if err := json.Unmarshal([]byte(deps), &rec.Dependencies); err != nil {
		return nil, fmt.Errorf("failed to decode dependencies for %s: %w", rec.Identity, err)
	}
	rec.AppliedAt, _ = time.Parse(time.RFC3339Nano, appliedAt)
	return &rec, nil
}

func scanRun(row scanner) (*engine.Run, error) {
	var run engine.Run
	var status, startedAt, summary, results string
	var completedAt sql.NullString
	if err := row.Scan(
		&run.ID,
		&run.PlanID,
		&status,
		&startedAt,
		&completedAt,
		&summary,
		&results,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Status = engine.RunStatus(status)
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err == nil {
			run.CompletedAt = &t
		}
	}
	if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode run summary: %w", err)
	}
	if err := json.Unmarshal([]byte(results), &run.Results); err != nil {
		return nil, fmt.Errorf("failed to decode run results: %w", err)
	}
	return &run, nil
}
