package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"cosmiccafe/internal/game"

	"github.com/google/uuid"
)

// FileArchive writes one indented JSON export per session into a directory.
type FileArchive struct {
	dir string
	mu  sync.Mutex
}

func NewFileArchive(dir string) (*FileArchive, error) {
	if strings.TrimSpace(dir) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".cafe", "exports")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileArchive{dir: dir}, nil
}

func (a *FileArchive) Dir() string {
	return a.dir
}

func (a *FileArchive) path(sessionID string) (string, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(a.dir, sessionID+".json"), nil
}

func (a *FileArchive) SaveExport(_ context.Context, doc game.Export) (string, error) {
	id := sessionIDFor(&doc)
	path, err := a.path(id)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := game.WriteExport(&buf, doc); err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return id, nil
}

func (a *FileArchive) LoadExport(_ context.Context, sessionID string) (game.Export, error) {
	path, err := a.path(sessionID)
	if err != nil {
		return game.Export{}, err
	}
	return ReadExportFile(path)
}

func (a *FileArchive) List(_ context.Context) ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(a.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		doc, err := ReadExportFile(m)
		if err != nil {
			continue
		}
		out = append(out, Entry{
			SessionID: strings.TrimSuffix(filepath.Base(m), ".json"),
			SavedAt:   info.ModTime(),
			Actions:   len(doc.Actions),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.Before(out[j].SavedAt) })
	return out, nil
}

func (a *FileArchive) Close() error {
	return nil
}

// ReadExportFile loads an export from any path.
func ReadExportFile(path string) (game.Export, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return game.Export{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return game.Export{}, err
	}
	defer f.Close()
	return game.ReadExport(f)
}
