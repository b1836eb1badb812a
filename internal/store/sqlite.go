package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cosmiccafe/internal/game"

	_ "modernc.org/sqlite"
)

type SQLiteArchive struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	a := &SQLiteArchive{db: db}
	if err := a.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLiteArchive) migrate(ctx context.Context) error {
	schema := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS exports (
			session_id TEXT PRIMARY KEY,
			session_start REAL NOT NULL,
			action_count INTEGER NOT NULL,
			body TEXT NOT NULL,
			saved_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS exports_saved_at ON exports(saved_at);`,
	}
	for _, stmt := range schema {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite archive: %w", err)
		}
	}
	return nil
}

func (a *SQLiteArchive) SaveExport(ctx context.Context, doc game.Export) (string, error) {
	id := sessionIDFor(&doc)
	body, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO exports (session_id, session_start, action_count, body, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			action_count = excluded.action_count,
			body = excluded.body,
			saved_at = excluded.saved_at
	`, id, doc.SessionStart, len(doc.Actions), string(body), time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("save export: %w", err)
	}
	return id, nil
}

func (a *SQLiteArchive) LoadExport(ctx context.Context, sessionID string) (game.Export, error) {
	var body string
	err := a.db.QueryRowContext(ctx, `SELECT body FROM exports WHERE session_id = ?`, sessionID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Export{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return game.Export{}, err
	}
	var doc game.Export
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return game.Export{}, fmt.Errorf("decode export %s: %w", sessionID, err)
	}
	return doc, nil
}

func (a *SQLiteArchive) List(ctx context.Context) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT session_id, saved_at, action_count FROM exports ORDER BY saved_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		var e Entry
		var savedAt int64
		if err := rows.Scan(&e.SessionID, &savedAt, &e.Actions); err != nil {
			return nil, err
		}
		e.SavedAt = time.Unix(0, savedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
