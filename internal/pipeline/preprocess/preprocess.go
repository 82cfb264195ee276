// Package preprocess turns raw source text into the ordered chunk sequence
// the analyst loop consumes: markup cleaning, front/back-matter removal, and
// sentence-aware chunking with position metadata.
package preprocess

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rowanlight/dramatis/internal/notify"
	"github.com/rowanlight/dramatis/internal/pipeline"
	"github.com/rowanlight/dramatis/internal/store"
)

// Config holds chunking parameters. Zero values take defaults.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// Preprocessor is the chunking stage.
type Preprocessor struct {
	st        store.Store
	publisher notify.Publisher
	cfg       Config
	logger    *slog.Logger
}

// New creates the preprocessor stage. The store may be nil when chunks are
// not being persisted.
func New(st store.Store, publisher notify.Publisher, cfg Config, logger *slog.Logger) *Preprocessor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{
		st:        st,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With("stage", "preprocess"),
	}
}

// Name implements pipeline.Stage.
func (p *Preprocessor) Name() string { return "preprocess" }

// Run cleans the source, strips boilerplate, and produces the chunk
// sequence. Chunks are immutable after this stage.
func (p *Preprocessor) Run(ctx context.Context, st *pipeline.State) (pipeline.Route, error) {
	cleaned := Clean(st.Source)
	cleaned = RemoveMetadata(cleaned)

	chunks := SplitChunks(cleaned, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return pipeline.RouteTerminate, fmt.Errorf("no chunks produced from %d bytes of source", len(st.Source))
	}
	st.Chunks = chunks
	st.ChunkIndex = 0

	if p.st != nil {
		if err := p.st.SaveChunks(ctx, st.BookID, chunks); err != nil {
			// Chunk persistence is for inspection; analysis proceeds on the
			// in-memory sequence.
			p.logger.Warn("persist chunks failed", "run_id", st.RunID, "error", err)
		}
	}

	p.logger.Info("preprocessing complete",
		"run_id", st.RunID, "chunks", len(chunks))
	if p.publisher != nil {
		e := notify.NewEvent(st.RunID, notify.EventPreprocessingComplete, notify.StatusProgress, map[string]any{
			"chunk_count": len(chunks),
		})
		if err := p.publisher.Publish(ctx, e); err != nil {
			p.logger.Warn("event publish failed", "event_type", e.EventType, "error", err)
		}
	}
	return pipeline.RouteContinue, nil
}

var _ pipeline.Stage = (*Preprocessor)(nil)
