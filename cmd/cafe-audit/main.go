package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cosmiccafe/internal/config"
	"cosmiccafe/internal/game"
	"cosmiccafe/internal/store"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:          "cafe-audit",
		Short:        "Check exported cafe session logs",
		SilenceUsage: true,
	}
	root.AddCommand(
		newVerifyFileCmd(logger),
		newArchiveCmd(logger),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("audit failed", "err", err)
		os.Exit(1)
	}
}

func newVerifyFileCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "verify FILE...",
		Short: "Verify that export files agree with their recorded summaries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				doc, err := store.ReadExportFile(path)
				if err == nil {
					err = game.VerifyExport(doc)
				}
				if err != nil {
					failed++
					logger.Error("export rejected", "file", path, "err", err)
					continue
				}
				logger.Info("export ok", "file", path, "session_id", doc.SessionID, "actions", len(doc.Actions))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d exports failed verification", failed, len(args))
			}
			return nil
		},
	}
}

func newArchiveCmd(logger *slog.Logger) *cobra.Command {
	archive := &cobra.Command{
		Use:   "archive",
		Short: "Inspect the configured export archive",
	}
	archive.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List archived sessions",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withArchive(cmd.Context(), func(ctx context.Context, a store.Archive) error {
					entries, err := a.List(ctx)
					if err != nil {
						return err
					}
					if len(entries) == 0 {
						fmt.Println("No archived sessions.")
						return nil
					}
					fmt.Printf("%-36s  %-20s  %7s\n", "SESSION", "SAVED", "ACTIONS")
					for _, e := range entries {
						fmt.Printf("%-36s  %-20s  %7d\n", e.SessionID, e.SavedAt.Local().Format(time.DateTime), e.Actions)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "verify [SESSION_ID]",
			Short: "Verify one archived session, or all of them",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withArchive(cmd.Context(), func(ctx context.Context, a store.Archive) error {
					ids := args
					if len(ids) == 0 {
						entries, err := a.List(ctx)
						if err != nil {
							return err
						}
						for _, e := range entries {
							ids = append(ids, e.SessionID)
						}
					}
					failed := 0
					for _, id := range ids {
						doc, err := a.LoadExport(ctx, id)
						if err == nil {
							err = game.VerifyExport(doc)
						}
						if err != nil {
							failed++
							logger.Error("archived export rejected", "session_id", id, "err", err)
							continue
						}
						logger.Info("archived export ok", "session_id", id, "actions", len(doc.Actions), "loans", doc.Summary.LoansTaken, "repaid", doc.Summary.TotalRepaid.String())
					}
					if failed > 0 {
						return fmt.Errorf("%d of %d archived exports failed verification", failed, len(ids))
					}
					return nil
				})
			},
		},
	)
	return archive
}

func withArchive(ctx context.Context, fn func(context.Context, store.Archive) error) error {
	cfg := config.LoadArchiveFromEnv()
	if err := config.Validate(cfg); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	a, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
