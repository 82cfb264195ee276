package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Executor drives stages in fixed macro-order. Cancellation is cooperative:
// the executor checks the run context between stages, never inside them
// beyond the checkpoints each stage defines for itself.
type Executor struct {
	stages []Stage
	logger *slog.Logger
}

// NewExecutor creates an executor over an ordered stage list.
func NewExecutor(logger *slog.Logger, stages ...Stage) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		stages: stages,
		logger: logger.With("component", "executor"),
	}
}

// Execute runs the stages against st. It returns the context error when the
// run is cancelled, a wrapped stage error on fatal failure, and nil on both
// completion and clean termination (validation failure); callers distinguish
// the latter two through st.ValidationPassed.
//
// Already-merged character records are never rolled back on cancellation:
// they are valid partial knowledge.
func (e *Executor) Execute(ctx context.Context, st *State) error {
	defer func() { st.Done = true }()

	for _, stage := range e.stages {
		if err := ctx.Err(); err != nil {
			e.logger.Info("run cancelled before stage",
				"run_id", st.RunID, "stage", stage.Name())
			return err
		}

		start := time.Now()
		route, err := stage.Run(ctx, st)
		if err != nil {
			if ctx.Err() != nil {
				// A stage surfaced the cancellation itself.
				return ctx.Err()
			}
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}

		e.logger.Debug("stage finished",
			"run_id", st.RunID,
			"stage", stage.Name(),
			"route", routeName(route),
			"elapsed", time.Since(start))

		if route == RouteTerminate {
			return nil
		}
	}
	return nil
}

func routeName(r Route) string {
	switch r {
	case RouteContinue:
		return "continue"
	case RouteTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}
