package analyst

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rowanlight/dramatis/internal/characters"
	"github.com/rowanlight/dramatis/internal/llm"
	"github.com/rowanlight/dramatis/internal/notify"
	"github.com/rowanlight/dramatis/internal/pipeline"
	"github.com/rowanlight/dramatis/internal/store"
)

// fakeAnalyzer drives the loop with scripted extraction behavior.
type fakeAnalyzer struct {
	names     func(text, summary string) ([]string, error)
	summarize func(prior, chunk string) (string, error)
	updates   func(names []string) ([]characters.Update, error)

	nameCalls      int
	summarizeCalls int
	profileCalls   int
}

func (f *fakeAnalyzer) ExtractNames(_ context.Context, text, summary string) ([]string, error) {
	f.nameCalls++
	if f.names == nil {
		return nil, nil
	}
	return f.names(text, summary)
}

func (f *fakeAnalyzer) Summarize(_ context.Context, prior, chunk string) (string, error) {
	f.summarizeCalls++
	if f.summarize == nil {
		return prior + " | " + chunk, nil
	}
	return f.summarize(prior, chunk)
}

func (f *fakeAnalyzer) ProfileUpdates(_ context.Context, _, _ string, names []string) ([]characters.Update, error) {
	f.profileCalls++
	if f.updates == nil {
		out := make([]characters.Update, 0, len(names))
		for _, n := range names {
			out = append(out, characters.Update{
				Name:   n,
				Events: []string{"seen " + n},
			})
		}
		return out, nil
	}
	return f.updates(names)
}

func (f *fakeAnalyzer) DetectLanguage(context.Context, string) (llm.LanguageResult, error) {
	return llm.LanguageResult{}, nil
}

func (f *fakeAnalyzer) AssessQuality(context.Context, string) (float64, error) { return 0, nil }

func (f *fakeAnalyzer) Classify(context.Context, string) (llm.Classification, error) {
	return llm.Classification{}, nil
}

func (f *fakeAnalyzer) ExtractTitle(context.Context, string) (llm.TitleInfo, error) {
	return llm.TitleInfo{}, nil
}

func stateWithChunks(n int) *pipeline.State {
	st := pipeline.NewState("run-1", "book-1", "", "book.txt")
	for i := 0; i < n; i++ {
		st.Chunks = append(st.Chunks, store.Chunk{
			Number:    i,
			Text:      fmt.Sprintf("chunk %d text", i),
			WordCount: 3,
		})
	}
	return st
}

func TestFuzzyVariantMergesIntoOneProfile(t *testing.T) {
	// Names per chunk: Ali alone in chunks 0..2, both spellings in chunk 3,
	// nothing in chunk 4.
	perChunk := [][]string{{"Ali"}, {"Ali"}, {"Ali"}, {"Ali", "Aly"}, nil}
	chunkNo := 0
	fa := &fakeAnalyzer{
		names: func(_, summary string) ([]string, error) {
			if summary != "" {
				return nil, nil // second pass adds nothing here
			}
			names := perChunk[chunkNo]
			chunkNo++
			return names, nil
		},
	}

	a := New(fa, nil, notify.NewMemoryPublisher(), nil, Config{}, nil)
	st := stateWithChunks(5)

	route, err := a.Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if route != pipeline.RouteContinue || !st.Done {
		t.Errorf("route = %v, done = %v", route, st.Done)
	}

	if st.CharacterCount() != 1 {
		t.Fatalf("profiles = %d, want 1 (variant spelling must merge)", st.CharacterCount())
	}
	for _, p := range st.ActiveProfiles {
		var fromAli, fromAly bool
		for _, e := range p.Events {
			switch e.Description {
			case "seen Ali":
				fromAli = true
			case "seen Aly":
				fromAly = true
			}
		}
		if !fromAli || !fromAly {
			t.Errorf("events from both spellings missing: %+v", p.Events)
		}
	}
}

func TestLoopTerminatesWithNoNames(t *testing.T) {
	fa := &fakeAnalyzer{} // names fn nil: every chunk extracts nothing
	a := New(fa, nil, notify.NewMemoryPublisher(), nil, Config{}, nil)
	st := stateWithChunks(10)

	if _, err := a.Run(context.Background(), st); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if st.ChunkIndex != 10 || !st.Done {
		t.Errorf("ChunkIndex = %d, done = %v", st.ChunkIndex, st.Done)
	}
	if fa.summarizeCalls != 0 || fa.profileCalls != 0 {
		t.Errorf("nameless chunks must skip summarize/profile calls: %d/%d",
			fa.summarizeCalls, fa.profileCalls)
	}
	if st.CharacterCount() != 0 {
		t.Errorf("profiles = %d, want 0", st.CharacterCount())
	}
}

func TestCancellationMidLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	chunkNo := 0
	fa := &fakeAnalyzer{
		names: func(_, summary string) ([]string, error) {
			if summary != "" {
				return nil, nil
			}
			name := fmt.Sprintf("Character%d", chunkNo)
			if chunkNo == 2 {
				// Signal arrives while chunk 2 is in flight; the iteration
				// finishes and the next top-of-loop check observes it.
				cancel()
			}
			chunkNo++
			return []string{name}, nil
		},
	}

	a := New(fa, nil, notify.NewMemoryPublisher(), nil, Config{}, nil)
	st := stateWithChunks(10)

	_, err := a.Run(ctx, st)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if st.ChunkIndex != 3 {
		t.Errorf("ChunkIndex = %d, want 3 (chunks 0..2 fully processed)", st.ChunkIndex)
	}
	if st.CharacterCount() != 3 {
		t.Errorf("profiles = %d, want 3 (only pre-cancellation chunks merged)", st.CharacterCount())
	}
}

func TestSummarizerRefusalKeepsPriorSummary(t *testing.T) {
	chunkNo := 0
	fa := &fakeAnalyzer{
		names: func(_, summary string) ([]string, error) {
			if summary != "" {
				return nil, nil
			}
			return []string{"Amina"}, nil
		},
		summarize: func(prior, chunk string) (string, error) {
			chunkNo++
			if chunkNo == 2 {
				return "", llm.ErrRefused
			}
			return fmt.Sprintf("summary after %d", chunkNo), nil
		},
	}

	a := New(fa, nil, notify.NewMemoryPublisher(), nil, Config{}, nil)
	st := stateWithChunks(3)

	if _, err := a.Run(context.Background(), st); err != nil {
		t.Fatalf("refusal must not fail the run: %v", err)
	}
	if st.RunningSummary != "summary after 3" {
		t.Errorf("RunningSummary = %q", st.RunningSummary)
	}
	if st.ChunkIndex != 3 {
		t.Errorf("ChunkIndex = %d, want 3", st.ChunkIndex)
	}
}

func TestSecondPassAddsNames(t *testing.T) {
	fa := &fakeAnalyzer{
		names: func(_, summary string) ([]string, error) {
			if summary == "" {
				return []string{"Amina"}, nil
			}
			return []string{"amina", "Kamal"}, nil // dupe differs only in case
		},
	}

	a := New(fa, nil, notify.NewMemoryPublisher(), nil, Config{}, nil)
	st := stateWithChunks(1)

	if _, err := a.Run(context.Background(), st); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if st.CharacterCount() != 2 {
		t.Errorf("profiles = %d, want 2 (second pass adds Kamal once)", st.CharacterCount())
	}
}

func TestProgressEventsCarryCounts(t *testing.T) {
	pub := notify.NewMemoryPublisher()
	fa := &fakeAnalyzer{
		names: func(_, summary string) ([]string, error) {
			if summary != "" {
				return nil, nil
			}
			return []string{"Amina"}, nil
		},
	}

	a := New(fa, nil, pub, nil, Config{}, nil)
	st := stateWithChunks(4)

	if _, err := a.Run(context.Background(), st); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	events := pub.ByType(notify.EventCharactersExtracted)
	if len(events) != 4 {
		t.Fatalf("characters_extracted events = %d, want 4", len(events))
	}
	last := events[len(events)-1]
	if last.Data["characters"] != 1 || last.Data["chunk_count"] != 4 {
		t.Errorf("event data = %v", last.Data)
	}
}

func TestResolveSameNameTwiceIsStable(t *testing.T) {
	fa := &fakeAnalyzer{}
	a := New(fa, nil, nil, nil, Config{}, nil)
	st := pipeline.NewState("run-1", "book-1", "", "book.txt")

	u := &characters.Update{Name: "Fahmy", Events: []string{"studies law"}}
	first := a.resolveAndMerge(st, u, 0)
	second := a.resolveAndMerge(st, u, 1)
	if first != second {
		t.Errorf("same name resolved to different ids: %s vs %s", first, second)
	}
	if st.CharacterCount() != 1 {
		t.Errorf("profiles = %d, want 1", st.CharacterCount())
	}
}
