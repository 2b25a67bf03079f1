// Package main provides reelctl, the operator CLI for books and supply passes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"reelflow/internal/app"
	"reelflow/internal/config"
	"reelflow/internal/logger"
	"reelflow/internal/storage"
)

func main() {
	_ = godotenv.Load(".env")

	rootCmd := &cobra.Command{
		Use:   "reelctl",
		Short: "Manage books and fragment supply for reelflow",
		Long: `reelctl registers books, inspects generation state and triggers
supply passes outside the regular schedule.

Commands:
  books     List, add and deactivate books
  window    Show the next generation window of a book
  pass      Run one supply pass now`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(booksCmd())
	rootCmd.AddCommand(windowCmd())
	rootCmd.AddCommand(passCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command needs once configuration is loaded.
type env struct {
	cfg   config.Config
	log   *logger.Logger
	db    *storage.DB
	store *storage.Store
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, log, db, err := app.Boot(ctx)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: db, store: storage.NewStore(db)}, nil
}

func (e *env) Close() {
	e.db.Close()
	e.log.Sync()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
