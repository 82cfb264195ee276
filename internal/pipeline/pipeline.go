// Package pipeline defines the staged analysis workflow: the shared run
// state, the stage contract with explicit routing, and the executor that
// drives stages in fixed order with cooperative cancellation checks.
package pipeline

import (
	"context"

	"github.com/rowanlight/dramatis/internal/characters"
	"github.com/rowanlight/dramatis/internal/llm"
	"github.com/rowanlight/dramatis/internal/store"
)

// Route is a stage's routing decision.
type Route int

const (
	// RouteContinue proceeds to the next stage.
	RouteContinue Route = iota
	// RouteTerminate ends the run cleanly without visiting later stages.
	// Validation failures terminate; they are not errors.
	RouteTerminate
)

// State is the mutable pipeline state, owned by exactly one run and passed
// by reference through stages. Never shared across runs, so unguarded.
type State struct {
	RunID  string
	BookID string

	// Source is the raw input text. SourceName labels it for reporting
	// (file name or submission label).
	Source     string
	SourceName string

	// Book identity from the extractor stage. Metadata only.
	Title         string
	Author        string
	TitleFallback bool

	// Chunks are immutable once the preprocessor produces them.
	Chunks     []store.Chunk
	ChunkIndex int

	// ActiveProfiles maps character id to the evolving profile. Append and
	// merge only within a run: ids are never removed.
	ActiveProfiles map[string]*characters.Profile

	// PendingNames holds names extracted from the current chunk, not yet
	// resolved to a profile.
	PendingNames []string

	// RunningSummary is the bounded narrative summary carried across chunks.
	RunningSummary string

	ValidationPassed bool
	// ValidationReason explains a validation failure ("language", "quality",
	// "classification").
	ValidationReason string

	Done bool

	// RelationshipCount tracks persisted relationship edges for progress
	// reporting.
	RelationshipCount int
}

// NewState builds the initial state for a run.
func NewState(runID, bookID, source, sourceName string) *State {
	return &State{
		RunID:          runID,
		BookID:         bookID,
		Source:         source,
		SourceName:     sourceName,
		ActiveProfiles: make(map[string]*characters.Profile),
	}
}

// CharacterCount returns how many profiles the run has accumulated.
func (s *State) CharacterCount() int {
	return len(s.ActiveProfiles)
}

// CurrentChunk returns the chunk at ChunkIndex, or nil when exhausted.
func (s *State) CurrentChunk() *store.Chunk {
	if s.ChunkIndex < 0 || s.ChunkIndex >= len(s.Chunks) {
		return nil
	}
	return &s.Chunks[s.ChunkIndex]
}

// Stage is one step of the pipeline. A stage mutates the state it is given
// and returns where to go next. A returned error is fatal to the run.
type Stage interface {
	Name() string
	Run(ctx context.Context, st *State) (Route, error)
}

// Analyzer is the set of model-backed calls the stages consume.
// *llm.Analyzer satisfies it; tests substitute fakes.
type Analyzer interface {
	DetectLanguage(ctx context.Context, sample string) (llm.LanguageResult, error)
	AssessQuality(ctx context.Context, sample string) (float64, error)
	Classify(ctx context.Context, sample string) (llm.Classification, error)
	ExtractTitle(ctx context.Context, opening string) (llm.TitleInfo, error)
	ExtractNames(ctx context.Context, text, summary string) ([]string, error)
	Summarize(ctx context.Context, priorSummary, chunk string) (string, error)
	ProfileUpdates(ctx context.Context, chunk, summary string, names []string) ([]characters.Update, error)
}
