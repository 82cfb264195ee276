package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/rowanlight/dramatis/internal/config"
	"github.com/rowanlight/dramatis/internal/intake"
)

var (
	submitBookID     string
	submitRunID      string
	submitClear      bool
	submitServerPath bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Enqueue a book for analysis",
	Long: `Enqueue a book on the Redis task queue for a running server to pick up.

By default the file is read locally and its text travels inline in the
submission, so the server does not need access to this filesystem. With
--server-path the path itself is enqueued instead and the server reads it.

Examples:
  dramatis submit novel.txt --book-id my-novel
  dramatis submit /shared/novel.txt --book-id my-novel --server-path`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		sub := intake.Submission{
			RunID:         submitRunID,
			BookID:        submitBookID,
			ClearExisting: submitClear,
		}
		if sub.RunID == "" {
			sub.RunID = uuid.NewString()
		}
		if sub.BookID == "" {
			return fmt.Errorf("--book-id is required")
		}
		if submitServerPath {
			sub.SourcePath = args[0]
		} else {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			sub.ChunkSource = string(raw)
		}

		payload, err := json.Marshal(sub)
		if err != nil {
			return err
		}

		rdb := goredis.NewClient(&goredis.Options{
			Addr:        cfg.Redis.Addr,
			DialTimeout: 5 * time.Second,
		})
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := rdb.RPush(ctx, cfg.Redis.Queue, payload).Err(); err != nil {
			return fmt.Errorf("enqueue on %s: %w", cfg.Redis.Queue, err)
		}

		fmt.Printf("queued run %s for book %s\n", sub.RunID, sub.BookID)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitBookID, "book-id", "", "Book identifier (required)")
	submitCmd.Flags().StringVar(&submitRunID, "run-id", "", "Run identifier (default: random UUID)")
	submitCmd.Flags().BoolVar(&submitClear, "clear", false, "Clear previously stored results for this book first")
	submitCmd.Flags().BoolVar(&submitServerPath, "server-path", false, "Enqueue the path instead of the file contents")

	rootCmd.AddCommand(submitCmd)
}
