package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/rowanlight/dramatis/internal/notify"
	"github.com/rowanlight/dramatis/internal/pipeline"
	"github.com/rowanlight/dramatis/internal/runs"
	"github.com/rowanlight/dramatis/internal/store"
)

// Runner executes a pipeline against a run state. *pipeline.Executor
// satisfies it.
type Runner interface {
	Execute(ctx context.Context, st *pipeline.State) error
}

// Launcher registers a run and spawns its goroutine. One launcher serves all
// submissions; per-run state lives in pipeline.State.
type Launcher struct {
	registry  *runs.Registry
	runner    Runner
	st        store.Store
	publisher notify.Publisher
	logger    *slog.Logger
}

// NewLauncher creates a launcher. Store and publisher may be nil in one-shot
// CLI use.
func NewLauncher(registry *runs.Registry, runner Runner, st store.Store, publisher notify.Publisher, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		registry:  registry,
		runner:    runner,
		st:        st,
		publisher: publisher,
		logger:    logger.With("component", "launcher"),
	}
}

// Launch registers the run and starts it on its own goroutine. The run is in
// the registry, and cancellable, before any stage executes. Returns the run
// id once the goroutine is started.
func (l *Launcher) Launch(sub Submission) (string, error) {
	source := sub.ChunkSource
	if sub.SourcePath != "" {
		raw, err := os.ReadFile(sub.SourcePath)
		if err != nil {
			return "", fmt.Errorf("intake: read source: %w", err)
		}
		source = string(raw)
	}

	// The run's context derives from Background, not from the consumer:
	// shutdown reaches runs through the registry, not through intake.
	runCtx, err := l.registry.Register(context.Background(), sub.RunID, sub.BookID)
	if err != nil {
		return "", fmt.Errorf("intake: register run %s: %w", sub.RunID, err)
	}

	if l.st != nil {
		if err := l.st.CreateRun(runCtx, sub.RunID, sub.BookID); err != nil {
			l.logger.Warn("persist run record failed", "run_id", sub.RunID, "error", err)
		}
		if sub.ClearExisting {
			if err := l.st.ClearBook(runCtx, sub.BookID); err != nil {
				l.registry.Finish(sub.RunID, runs.StatusFailed)
				return "", fmt.Errorf("intake: clear book %s: %w", sub.BookID, err)
			}
		}
	}

	st := pipeline.NewState(sub.RunID, sub.BookID, source, sub.SourceName())
	go l.execute(runCtx, st)
	return sub.RunID, nil
}

// execute owns the run goroutine: start, pipeline, terminal bookkeeping.
func (l *Launcher) execute(ctx context.Context, st *pipeline.State) {
	l.registry.Start(st.RunID)
	l.publish(ctx, notify.NewEvent(st.RunID, notify.EventProcessingStarted, notify.StatusProgress, map[string]any{
		"book_id": st.BookID,
		"source":  st.SourceName,
	}))

	err := l.runner.Execute(ctx, st)

	var status runs.Status
	switch {
	case err == nil:
		status = runs.StatusCompleted
	case errors.Is(err, context.Canceled):
		status = runs.StatusCancelled
	default:
		status = runs.StatusFailed
	}

	l.finish(ctx, st, status, err)
}

func (l *Launcher) finish(ctx context.Context, st *pipeline.State, status runs.Status, runErr error) {
	// The run context is cancelled for cancelled runs; bookkeeping writes
	// and events still have to go out.
	ctx = context.WithoutCancel(ctx)

	var errMsg string
	switch status {
	case runs.StatusCompleted:
		if st.ValidationPassed {
			l.publish(ctx, notify.NewEvent(st.RunID, notify.EventProcessingCompleted, notify.StatusCompleted, map[string]any{
				"characters":    st.CharacterCount(),
				"relationships": st.RelationshipCount,
				"chunks":        len(st.Chunks),
				"title":         st.Title,
			}))
		}
		// A validation failure completed cleanly: validation_failed already
		// went out from the validator, and the run record says completed.
	case runs.StatusCancelled:
		l.logger.Info("run cancelled", "run_id", st.RunID, "chunk_index", st.ChunkIndex)
		l.publish(ctx, notify.NewEvent(st.RunID, notify.EventProcessingCancelled, notify.StatusCompleted, map[string]any{
			"chunk_index": st.ChunkIndex,
			"characters":  st.CharacterCount(),
		}))
	case runs.StatusFailed:
		errMsg = runErr.Error()
		l.logger.Error("run failed", "run_id", st.RunID, "error", runErr)
		l.publish(ctx, notify.NewEvent(st.RunID, notify.EventProcessingFailed, notify.StatusFailed, map[string]any{
			"message": "Processing failed before completion.",
		}))
	}

	if l.st != nil {
		if err := l.st.FinishRun(ctx, st.RunID, string(status), errMsg); err != nil {
			l.logger.Warn("persist run finish failed", "run_id", st.RunID, "error", err)
		}
	}
	l.registry.Finish(st.RunID, status)
}

func (l *Launcher) publish(ctx context.Context, e notify.Event) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(ctx, e); err != nil {
		l.logger.Warn("event publish failed", "event_type", e.EventType, "error", err)
	}
}
