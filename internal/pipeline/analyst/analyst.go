// Package analyst runs the iterative chunk loop: two-pass name extraction,
// bounded running summary, profile resolution and merge, and sequential
// chunk advance with a cancellation check at the top of every iteration.
package analyst

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/rowanlight/dramatis/internal/characters"
	"github.com/rowanlight/dramatis/internal/llm"
	"github.com/rowanlight/dramatis/internal/notify"
	"github.com/rowanlight/dramatis/internal/pipeline"
	"github.com/rowanlight/dramatis/internal/store"
)

// Config holds analyst parameters. Zero values take defaults.
type Config struct {
	// SimilarityThreshold for fuzzy name resolution, default 0.8.
	SimilarityThreshold float64
	// SummaryMaxChars bounds the running summary; longer summaries are
	// re-compressed on the next update. Default 6000.
	SummaryMaxChars int
	// ProgressEvery publishes a characters_extracted event after this many
	// chunks. Default 1 (every chunk that produced work).
	ProgressEvery int
}

func (c *Config) applyDefaults() {
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = characters.DefaultSimilarityThreshold
	}
	if c.SummaryMaxChars <= 0 {
		c.SummaryMaxChars = 6000
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = 1
	}
}

// Analyst is the chunk-loop stage.
type Analyst struct {
	analyzer  pipeline.Analyzer
	st        store.Store
	publisher notify.Publisher
	norm      *characters.Normalizer
	resolver  *characters.Resolver
	cfg       Config
	logger    *slog.Logger
}

// New creates the analyst stage. The store may be nil for dry runs; profiles
// then live only in pipeline state.
func New(analyzer pipeline.Analyzer, st store.Store, publisher notify.Publisher, norm *characters.Normalizer, cfg Config, logger *slog.Logger) *Analyst {
	cfg.applyDefaults()
	if norm == nil {
		norm = characters.NewNormalizer(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyst{
		analyzer:  analyzer,
		st:        st,
		publisher: publisher,
		norm:      norm,
		resolver:  characters.NewResolver(norm, cfg.SimilarityThreshold),
		cfg:       cfg,
		logger:    logger.With("stage", "analyst"),
	}
}

// Name implements pipeline.Stage.
func (a *Analyst) Name() string { return "analyst" }

// Run iterates the chunk sequence strictly in order. Each iteration:
// first-pass name query against the chunk plus the tail of the previous
// chunk, summary update, second-pass name query against the new summary,
// profile resolution and merge, chunk advance. A chunk with no names skips
// straight to the advance.
func (a *Analyst) Run(ctx context.Context, st *pipeline.State) (pipeline.Route, error) {
	for st.ChunkIndex < len(st.Chunks) {
		if err := ctx.Err(); err != nil {
			return pipeline.RouteTerminate, err
		}

		chunk := st.Chunks[st.ChunkIndex]
		if err := a.processChunk(ctx, st, chunk); err != nil {
			return pipeline.RouteTerminate, err
		}

		st.ChunkIndex++
		if st.ChunkIndex%a.cfg.ProgressEvery == 0 || st.ChunkIndex == len(st.Chunks) {
			a.progress(ctx, st)
		}
	}
	st.Done = true
	return pipeline.RouteContinue, nil
}

func (a *Analyst) processChunk(ctx context.Context, st *pipeline.State, chunk store.Chunk) error {
	// First pass: the chunk prefixed with the tail of the previous chunk,
	// so names introduced just before a boundary are not lost.
	firstPassText := chunk.Text
	if st.ChunkIndex > 0 {
		prev := st.Chunks[st.ChunkIndex-1].Text
		firstPassText = tailRunes(prev, len([]rune(prev))/3) + "\n" + chunk.Text
	}

	names, err := a.analyzer.ExtractNames(ctx, firstPassText, "")
	if err != nil {
		return err
	}
	st.PendingNames = names
	if len(names) == 0 {
		// No character mentions: skip summarization and merging entirely.
		a.logger.Debug("chunk has no names", "run_id", st.RunID, "chunk", chunk.Number)
		return nil
	}

	// Summary update. The prompt context is the trailing two thirds of the
	// prior summary plus the chunk, which bounds growth; a refusal keeps the
	// prior summary and the loop continues.
	prior := tailRunes(st.RunningSummary, len([]rune(st.RunningSummary))*2/3)
	if len([]rune(st.RunningSummary)) > a.cfg.SummaryMaxChars {
		// Oversized summary: re-compress from the whole thing.
		prior = st.RunningSummary
	}
	summary, err := a.analyzer.Summarize(ctx, prior, chunk.Text)
	switch {
	case errors.Is(err, llm.ErrRefused):
		a.logger.Warn("summarizer refused chunk, keeping prior summary",
			"run_id", st.RunID, "chunk", chunk.Number)
	case err != nil:
		return err
	default:
		st.RunningSummary = summary
	}

	// Second pass: re-query against the updated summary context to catch
	// aliases and pronoun-resolved references the chunk alone misses.
	if st.RunningSummary != "" {
		more, err := a.analyzer.ExtractNames(ctx, chunk.Text, st.RunningSummary)
		if err != nil {
			a.logger.Warn("second-pass name query failed",
				"run_id", st.RunID, "chunk", chunk.Number, "error", err)
		} else {
			st.PendingNames = mergeNames(st.PendingNames, more)
		}
	}

	updates, err := a.analyzer.ProfileUpdates(ctx, chunk.Text, st.RunningSummary, st.PendingNames)
	if err != nil {
		return err
	}

	resolved := make(map[string]string, len(updates)) // name key -> profile id
	for i := range updates {
		u := &updates[i]
		if !u.Valid() {
			continue
		}
		id := a.resolveAndMerge(st, u, chunk.Number)
		resolved[a.norm.Key(u.Name)] = id
	}

	a.persistChunkResults(ctx, st, resolved)
	st.PendingNames = nil
	return nil
}

// resolveAndMerge resolves one update against active profiles, merging into
// the match or creating a fresh profile. Returns the profile id.
func (a *Analyst) resolveAndMerge(st *pipeline.State, u *characters.Update, chunkNum int) string {
	if match, ok := a.resolver.Resolve(u.Name, st.ActiveProfiles); ok {
		p := st.ActiveProfiles[match.ID]
		characters.Merge(a.norm, p, u, u.Name, chunkNum)
		return match.ID
	}

	id := uuid.NewString()
	st.ActiveProfiles[id] = characters.NewProfile(id, u, chunkNum)
	return id
}

// persistChunkResults writes merged profiles and resolved relationship edges
// to the store. Storage failures are logged and surfaced as unexpected
// errors; the in-memory run state stays authoritative.
func (a *Analyst) persistChunkResults(ctx context.Context, st *pipeline.State, resolved map[string]string) {
	if a.st == nil {
		a.countRelations(st)
		return
	}

	ids := make(map[string]struct{}, len(resolved))
	for _, id := range resolved {
		ids[id] = struct{}{}
	}

	for id := range ids {
		p, ok := st.ActiveProfiles[id]
		if !ok {
			continue
		}
		_, err := a.st.GetCharacter(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if _, cerr := a.st.CreateCharacter(ctx, st.BookID, p); cerr != nil {
				a.storeDegraded(ctx, st, "saving a character profile", cerr)
			}
		case err != nil:
			a.storeDegraded(ctx, st, "loading a character profile", err)
		default:
			if uerr := a.st.UpdateCharacter(ctx, id, p); uerr != nil {
				a.storeDegraded(ctx, st, "updating a character profile", uerr)
			}
		}
	}

	// Relationship edges become rows once both endpoints have profiles.
	for id := range ids {
		p, ok := st.ActiveProfiles[id]
		if !ok {
			continue
		}
		for i := range p.Relations {
			rel := &p.Relations[i]
			if rel.TargetID == "" {
				if match, ok := a.resolver.Resolve(rel.TargetName, st.ActiveProfiles); ok {
					rel.TargetID = match.ID
				}
			}
			if rel.TargetID == "" || rel.TargetID == id {
				continue
			}
			err := a.st.CreateRelationship(ctx, st.BookID, id, rel.TargetID, rel.Kind, rel.Strength, rel.Description)
			if err != nil {
				a.storeDegraded(ctx, st, "saving a relationship", err)
				continue
			}
		}
	}
	a.countRelations(st)
}

func (a *Analyst) countRelations(st *pipeline.State) {
	seen := make(map[[2]string]struct{})
	for id, p := range st.ActiveProfiles {
		for _, rel := range p.Relations {
			if rel.TargetID == "" {
				continue
			}
			pair := [2]string{id, rel.TargetID}
			if pair[0] > pair[1] {
				pair[0], pair[1] = pair[1], pair[0]
			}
			seen[pair] = struct{}{}
		}
	}
	st.RelationshipCount = len(seen)
}

func (a *Analyst) storeDegraded(ctx context.Context, st *pipeline.State, what string, err error) {
	a.logger.Error("store write failed", "run_id", st.RunID, "op", what, "error", err)
	a.publish(ctx, notify.UnexpectedError(st.RunID,
		"A storage write failed while "+what+"; analysis continues."))
}

func (a *Analyst) progress(ctx context.Context, st *pipeline.State) {
	a.publish(ctx, notify.NewEvent(st.RunID, notify.EventCharactersExtracted, notify.StatusProgress, map[string]any{
		"chunk":         st.ChunkIndex,
		"chunk_count":   len(st.Chunks),
		"characters":    st.CharacterCount(),
		"relationships": st.RelationshipCount,
	}))
}

func (a *Analyst) publish(ctx context.Context, e notify.Event) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(ctx, e); err != nil {
		a.logger.Warn("event publish failed", "event_type", e.EventType, "error", err)
	}
}

// tailRunes returns the last n runes of s.
func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func mergeNames(base, more []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, n := range base {
		seen[strings.ToLower(n)] = struct{}{}
	}
	out := base
	for _, n := range more {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[strings.ToLower(n)]; ok {
			continue
		}
		seen[strings.ToLower(n)] = struct{}{}
		out = append(out, n)
	}
	return out
}

var _ pipeline.Stage = (*Analyst)(nil)
