// Package extractor infers the book's title and author from its opening
// text. The result is reporting metadata only and never gates the run.
package extractor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rowanlight/dramatis/internal/notify"
	"github.com/rowanlight/dramatis/internal/pipeline"
	"github.com/rowanlight/dramatis/internal/store"
)

// openingChars bounds how much of the source the title call sees.
const openingChars = 4000

// Extractor is the name/title stage.
type Extractor struct {
	analyzer  pipeline.Analyzer
	st        store.Store
	publisher notify.Publisher
	logger    *slog.Logger
}

// New creates the extractor stage. The store may be nil when run records are
// not being persisted.
func New(analyzer pipeline.Analyzer, st store.Store, publisher notify.Publisher, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		analyzer:  analyzer,
		st:        st,
		publisher: publisher,
		logger:    logger.With("stage", "extractor"),
	}
}

// Name implements pipeline.Stage.
func (e *Extractor) Name() string { return "extractor" }

// Run infers the book identity. When the model call fails, the submission's
// source name stands in as a low-confidence title; the run continues either
// way.
func (e *Extractor) Run(ctx context.Context, st *pipeline.State) (pipeline.Route, error) {
	opening := st.Source
	if r := []rune(opening); len(r) > openingChars {
		opening = string(r[:openingChars])
	}

	info, err := e.analyzer.ExtractTitle(ctx, opening)
	if err != nil || strings.TrimSpace(info.Title) == "" {
		if err != nil {
			e.logger.Warn("title extraction failed, using source name",
				"run_id", st.RunID, "error", err)
		}
		st.Title = st.SourceName
		st.TitleFallback = true
	} else {
		st.Title = info.Title
		st.Author = info.Author
	}

	if e.st != nil && st.Title != "" {
		if err := e.st.SetRunTitle(ctx, st.RunID, st.Title); err != nil {
			e.logger.Warn("persist run title failed", "run_id", st.RunID, "error", err)
		}
	}

	e.publish(ctx, notify.NewEvent(st.RunID, notify.EventBookIdentified, notify.StatusProgress, map[string]any{
		"title":    st.Title,
		"author":   st.Author,
		"fallback": st.TitleFallback,
	}))
	return pipeline.RouteContinue, nil
}

func (e *Extractor) publish(ctx context.Context, ev notify.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn("event publish failed", "event_type", ev.EventType, "error", err)
	}
}

var _ pipeline.Stage = (*Extractor)(nil)
