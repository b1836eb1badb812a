package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cosmiccafe/internal/db"
	"cosmiccafe/internal/game"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresArchive struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresArchive, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres archive")
	}
	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	a := &PostgresArchive{pool: pool}
	if err := a.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func (a *PostgresArchive) migrate(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS cafe;
		CREATE TABLE IF NOT EXISTS cafe.exports (
			session_id TEXT PRIMARY KEY,
			session_start DOUBLE PRECISION NOT NULL,
			action_count INTEGER NOT NULL,
			body JSONB NOT NULL,
			saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate postgres archive: %w", err)
	}
	return nil
}

func (a *PostgresArchive) SaveExport(ctx context.Context, doc game.Export) (string, error) {
	id := sessionIDFor(&doc)
	body, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	_, err = a.pool.Exec(ctx, `
		INSERT INTO cafe.exports (session_id, session_start, action_count, body, saved_at)
		VALUES ($1, $2, $3, $4::jsonb, now())
		ON CONFLICT (session_id) DO UPDATE SET
			action_count = EXCLUDED.action_count,
			body = EXCLUDED.body,
			saved_at = now()
	`, id, doc.SessionStart, len(doc.Actions), string(body))
	if err != nil {
		return "", fmt.Errorf("save export: %w", err)
	}
	return id, nil
}

func (a *PostgresArchive) LoadExport(ctx context.Context, sessionID string) (game.Export, error) {
	var body []byte
	err := a.pool.QueryRow(ctx, `SELECT body::text FROM cafe.exports WHERE session_id = $1`, sessionID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Export{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return game.Export{}, err
	}
	var doc game.Export
	if err := json.Unmarshal(body, &doc); err != nil {
		return game.Export{}, fmt.Errorf("decode export %s: %w", sessionID, err)
	}
	return doc, nil
}

func (a *PostgresArchive) List(ctx context.Context) ([]Entry, error) {
	rows, err := a.pool.Query(ctx, `SELECT session_id, saved_at, action_count FROM cafe.exports ORDER BY saved_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SessionID, &e.SavedAt, &e.Actions); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (a *PostgresArchive) Close() error {
	a.pool.Close()
	return nil
}
