package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cosmiccafe/internal/config"
	"cosmiccafe/internal/game"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleExport(t *testing.T) game.Export {
	t.Helper()
	s, err := game.NewSession(game.Options{Provider: game.NewRuleProvider(), Seed: 3}, nil)
	require.NoError(t, err)
	s.Start()
	ctx := context.Background()
	_, err = s.RequestLoan(ctx, game.LoanRequestInput{Lender: game.LenderBanker})
	require.NoError(t, err)
	_, err = s.AcceptLoan("")
	require.NoError(t, err)
	_, err = s.GenerateSale("")
	require.NoError(t, err)
	_, err = s.Advance(time.Minute)
	require.NoError(t, err)
	_, err = s.Repay(game.RepayInput{Lender: game.LenderBanker, Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	return s.Export()
}

func exerciseArchive(t *testing.T, a Archive) {
	t.Helper()
	ctx := context.Background()
	doc := sampleExport(t)

	id, err := a.SaveExport(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, doc.SessionID, id)

	loaded, err := a.LoadExport(ctx, id)
	require.NoError(t, err)
	require.NoError(t, game.VerifyExport(loaded))
	assert.True(t, loaded.Summary.Equal(doc.Summary))
	assert.Len(t, loaded.Actions, len(doc.Actions))

	// Saving again replaces the earlier dump.
	doc.Actions = doc.Actions[:2]
	doc.Summary = game.Summarize(doc.Actions)
	_, err = a.SaveExport(ctx, doc)
	require.NoError(t, err)
	loaded, err = a.LoadExport(ctx, id)
	require.NoError(t, err)
	assert.Len(t, loaded.Actions, 2)

	entries, err := a.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].SessionID)
	assert.Equal(t, 2, entries[0].Actions)

	_, err = a.LoadExport(ctx, "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileArchive(t *testing.T) {
	a, err := NewFileArchive(filepath.Join(t.TempDir(), "exports"))
	require.NoError(t, err)
	defer a.Close()
	exerciseArchive(t, a)

	_, err = a.LoadExport(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
}

func TestSQLiteArchive(t *testing.T) {
	a, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cafe.db"))
	require.NoError(t, err)
	defer a.Close()
	exerciseArchive(t, a)
}

func TestPostgresArchive(t *testing.T) {
	url := os.Getenv("CAFE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CAFE_TEST_DATABASE_URL not set")
	}
	a, err := OpenPostgres(context.Background(), url)
	require.NoError(t, err)
	defer a.Close()
	_, err = a.pool.Exec(context.Background(), `TRUNCATE cafe.exports`)
	require.NoError(t, err)
	exerciseArchive(t, a)
}

func TestOpenPicksBackend(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(context.Background(), config.ArchiveConfig{Kind: "sqlite", Path: filepath.Join(dir, "x.db")})
	require.NoError(t, err)
	_, ok := a.(*SQLiteArchive)
	assert.True(t, ok)
	require.NoError(t, a.Close())

	a, err = Open(context.Background(), config.ArchiveConfig{Kind: "file", Path: dir})
	require.NoError(t, err)
	_, ok = a.(*FileArchive)
	assert.True(t, ok)

	_, err = Open(context.Background(), config.ArchiveConfig{Kind: "tape"})
	assert.Error(t, err)
}

func TestReadExportFile(t *testing.T) {
	a, err := NewFileArchive(t.TempDir())
	require.NoError(t, err)
	doc := sampleExport(t)
	id, err := a.SaveExport(context.Background(), doc)
	require.NoError(t, err)

	got, err := ReadExportFile(filepath.Join(a.Dir(), id+".json"))
	require.NoError(t, err)
	require.NoError(t, game.VerifyExport(got))
	assert.Equal(t, len(doc.Actions), len(got.Actions))

	_, err = ReadExportFile(filepath.Join(a.Dir(), "missing.json"))
	require.ErrorIs(t, err, ErrNotFound)
}
