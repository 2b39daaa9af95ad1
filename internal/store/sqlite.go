package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists session records in a single-file SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	conversation_id TEXT PRIMARY KEY,
	state           TEXT NOT NULL,
	tool            TEXT NOT NULL,
	workspace_path  TEXT NOT NULL,
	last_session_at INTEGER NOT NULL,
	suspend_reason  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
`

// OpenSQLite opens (creating if needed) the session database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, conversationID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT state, tool, workspace_path, last_session_at, suspend_reason
FROM sessions WHERE conversation_id = ?`, conversationID)

	var rec Record
	var at int64
	err := row.Scan(&rec.State, &rec.Tool, &rec.WorkspacePath, &at, &rec.SuspendReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", conversationID, err)
	}
	rec.LastSessionAt = time.UnixMilli(at).UTC()
	return &rec, nil
}

func (s *SQLiteStore) Save(ctx context.Context, conversationID string, rec Record) error {
	if rec.LastSessionAt.IsZero() {
		rec.LastSessionAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions(conversation_id, state, tool, workspace_path, last_session_at, suspend_reason)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(conversation_id) DO UPDATE SET
	state=excluded.state,
	tool=excluded.tool,
	workspace_path=excluded.workspace_path,
	last_session_at=excluded.last_session_at,
	suspend_reason=excluded.suspend_reason
`, conversationID, rec.State, rec.Tool, rec.WorkspacePath, rec.LastSessionAt.UnixMilli(), rec.SuspendReason)
	if err != nil {
		return fmt.Errorf("save session %s: %w", conversationID, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) (map[string]Record, error) {
	query := `
SELECT conversation_id, state, tool, workspace_path, last_session_at, suspend_reason
FROM sessions WHERE 1=1`
	var args []any
	if f.State != "" {
		query += " AND state = ?"
		args = append(args, f.State)
	}
	if f.Tool != "" {
		query += " AND tool = ?"
		args = append(args, f.Tool)
	}
	query += " ORDER BY last_session_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		var id string
		var rec Record
		var at int64
		if err := rows.Scan(&id, &rec.State, &rec.Tool, &rec.WorkspacePath, &at, &rec.SuspendReason); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		rec.LastSessionAt = time.UnixMilli(at).UTC()
		out[id] = rec
	}
	return out, rows.Err()
}
