package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rowanlight/dramatis/internal/characters"
	"github.com/rowanlight/dramatis/internal/config"
	"github.com/rowanlight/dramatis/internal/notify"
	"github.com/rowanlight/dramatis/internal/pipeline"
	"github.com/rowanlight/dramatis/internal/store"
)

var (
	runBookID string
	runClear  bool
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Analyze a single book synchronously",
	Long: `Analyze one book file without the server or the Redis queue.

The file flows through the full pipeline in the foreground and results go
to the configured relational store. Progress events print to stderr.

Examples:
  dramatis run novel.txt
  dramatis run novel.txt --book-id my-novel --clear`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		bookID := runBookID
		if bookID == "" {
			bookID = uuid.NewString()
		}

		norm := characters.NewNormalizer(cfg.Analysis.Honorifics)
		st, err := store.Open(store.Config{
			SQLitePath:  cfg.Storage.SQLitePath,
			PostgresDSN: cfg.Storage.PostgresDSN,
			Normalizer:  norm,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		if runClear {
			if err := st.ClearBook(ctx, bookID); err != nil {
				return fmt.Errorf("clear book %s: %w", bookID, err)
			}
		}

		analyzer, err := newAnalyzer(cfg, logger)
		if err != nil {
			return err
		}

		publisher := notify.NewMemoryPublisher()
		executor := newExecutor(cfg, analyzer, st, publisher, norm, logger)

		state := pipeline.NewState(uuid.NewString(), bookID, string(raw), path)
		err = executor.Execute(ctx, state)
		if errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "interrupted after chunk %d/%d\n", state.ChunkIndex, len(state.Chunks))
			return err
		}
		if err != nil {
			return err
		}
		if !state.ValidationPassed {
			fmt.Printf("book rejected: %s\n", state.ValidationReason)
			return nil
		}

		fmt.Printf("title:         %s\n", state.Title)
		if state.Author != "" {
			fmt.Printf("author:        %s\n", state.Author)
		}
		fmt.Printf("chunks:        %d\n", len(state.Chunks))
		fmt.Printf("characters:    %d\n", state.CharacterCount())
		fmt.Printf("relationships: %d\n", state.RelationshipCount)
		fmt.Printf("book id:       %s\n", bookID)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runBookID, "book-id", "", "Book identifier (default: random UUID)")
	runCmd.Flags().BoolVar(&runClear, "clear", false, "Clear previously stored results for this book first")

	rootCmd.AddCommand(runCmd)
}
