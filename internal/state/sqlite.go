package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/leapstack-labs/querymap/pkg/generation"
)

// ErrNotFound is returned when a generation id does not exist.
var ErrNotFound = errors.New("generation not found")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (creating if needed) the database at path and runs pending
// migrations. Use ":memory:" for an in-memory database.
func Open(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection: every :memory: connection is a separate database and
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := MigrateWithDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewWithDB(db, logger), nil
}

// NewWithDB wraps an already migrated connection.
func NewWithDB(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{db: db, logger: logger}
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StartGeneration inserts a running generation for key.
func (s *SQLiteStore) StartGeneration(ctx context.Context, scope string, key generation.Key) (*Generation, error) {
	g := &Generation{
		ID:        uuid.New().String(),
		Scope:     scope,
		Key:       key,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}

	s.logger.Debug("starting generation", slog.String("id", g.ID), slog.String("key", key.String()))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations (id, scope, interface, base, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.Scope, key.Interface, key.Base, string(g.Status), g.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start generation: %w", err)
	}
	return g, nil
}

// CompleteGeneration finishes a running generation.
func (s *SQLiteStore) CompleteGeneration(ctx context.Context, id string, status Status, methods int, errMsg string) error {
	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE generations SET status = ?, methods = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), methods, errorPtr, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete generation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// RecordBuild stores a finished build in one step. It satisfies the
// planner's recorder hook.
func (s *SQLiteStore) RecordBuild(ctx context.Context, scope string, key generation.Key, methods int, buildErr error) error {
	g, err := s.StartGeneration(ctx, scope, key)
	if err != nil {
		return err
	}
	status, msg := StatusSucceeded, ""
	if buildErr != nil {
		status, msg = StatusFailed, buildErr.Error()
	}
	return s.CompleteGeneration(ctx, g.ID, status, methods, msg)
}

const generationColumns = `id, scope, interface, base, status, methods, error, started_at, completed_at`

// LatestGeneration returns the most recent generation of key, or nil if
// it was never built.
func (s *SQLiteStore) LatestGeneration(ctx context.Context, key generation.Key) (*Generation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+generationColumns+` FROM generations
		 WHERE interface = ? AND base = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		key.Interface, key.Base,
	)
	g, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest generation: %w", err)
	}
	return g, nil
}

// ListGenerations returns the most recent generations, newest first.
func (s *SQLiteStore) ListGenerations(ctx context.Context, limit int) ([]*Generation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+generationColumns+` FROM generations ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row scanner) (*Generation, error) {
	g := &Generation{}
	var status string
	var errMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&g.ID, &g.Scope, &g.Key.Interface, &g.Key.Base, &status, &g.Methods,
		&errMsg, &g.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	g.Status = Status(status)
	if errMsg.Valid {
		g.Error = errMsg.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		g.CompletedAt = &t
	}
	return g, nil
}
