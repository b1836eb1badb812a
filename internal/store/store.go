package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cosmiccafe/internal/config"
	"cosmiccafe/internal/game"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("export not found")

// Archive keeps dumps of session action logs.
type Archive interface {
	SaveExport(ctx context.Context, doc game.Export) (string, error)
	LoadExport(ctx context.Context, sessionID string) (game.Export, error)
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

type Entry struct {
	SessionID string    `json:"session_id"`
	SavedAt   time.Time `json:"saved_at"`
	Actions   int       `json:"actions"`
}

// Open picks the archive backend named by cfg.Kind.
func Open(ctx context.Context, cfg config.ArchiveConfig) (Archive, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", "file":
		return NewFileArchive(cfg.Path)
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path)
	case "postgres":
		return OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown archive kind %q", cfg.Kind)
	}
}

func sessionIDFor(doc *game.Export) string {
	id := strings.TrimSpace(doc.SessionID)
	if id == "" {
		id = uuid.NewString()
	}
	doc.SessionID = id
	return id
}
