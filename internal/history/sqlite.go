package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS dashboard_state (
	state_key   TEXT PRIMARY KEY,
	payload     BLOB NOT NULL,
	updated_at  TEXT NOT NULL
);
`

// #endregion schema

// #region sqlite-struct
// SQLiteBackend keeps the dashboard payload in one row of a SQLite table.
type SQLiteBackend struct {
	db  *sql.DB
	key string
}

// #endregion sqlite-struct

// #region constructor
// NewSQLiteBackend opens a SQLite database and runs migrations.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteBackend{db: db, key: StateKey}, nil
}

// NewSQLiteBackendWithDB uses an already opened database. The schema must exist.
func NewSQLiteBackendWithDB(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db, key: StateKey}
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. runlog).
func (b *SQLiteBackend) DB() *sql.DB {
	return b.db
}

// #endregion close

// #region load
// Load returns the stored payload or ErrNotFound.
func (b *SQLiteBackend) Load(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT payload FROM dashboard_state WHERE state_key = ?`, b.key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	return payload, nil
}

// #endregion load

// #region save
// Save upserts the payload inside a transaction so the row is replaced whole.
func (b *SQLiteBackend) Save(ctx context.Context, payload []byte) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO dashboard_state (state_key, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(state_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		b.key, payload, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// #endregion save

// #region clear
// Clear deletes the stored row.
func (b *SQLiteBackend) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM dashboard_state WHERE state_key = ?`, b.key); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// #endregion clear
