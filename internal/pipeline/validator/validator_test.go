package validator

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rowanlight/dramatis/internal/characters"
	"github.com/rowanlight/dramatis/internal/llm"
	"github.com/rowanlight/dramatis/internal/notify"
	"github.com/rowanlight/dramatis/internal/pipeline"
)

// fakeAnalyzer satisfies pipeline.Analyzer with function fields; nil fields
// return zero values.
type fakeAnalyzer struct {
	detectLanguage func(string) (llm.LanguageResult, error)
	assessQuality  func(string) (float64, error)
	classify       func(string) (llm.Classification, error)
}

func (f *fakeAnalyzer) DetectLanguage(_ context.Context, sample string) (llm.LanguageResult, error) {
	if f.detectLanguage == nil {
		return llm.LanguageResult{Language: "ar", Confidence: 0.95}, nil
	}
	return f.detectLanguage(sample)
}

func (f *fakeAnalyzer) AssessQuality(_ context.Context, sample string) (float64, error) {
	if f.assessQuality == nil {
		return 0.9, nil
	}
	return f.assessQuality(sample)
}

func (f *fakeAnalyzer) Classify(_ context.Context, sample string) (llm.Classification, error) {
	if f.classify == nil {
		return llm.Classification{Category: "novel", Literary: true, Confidence: 0.9}, nil
	}
	return f.classify(sample)
}

func (f *fakeAnalyzer) ExtractTitle(context.Context, string) (llm.TitleInfo, error) {
	return llm.TitleInfo{}, nil
}

func (f *fakeAnalyzer) ExtractNames(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (f *fakeAnalyzer) Summarize(context.Context, string, string) (string, error) {
	return "", nil
}

func (f *fakeAnalyzer) ProfileUpdates(context.Context, string, string, []string) ([]characters.Update, error) {
	return nil, nil
}

func newState() *pipeline.State {
	return pipeline.NewState("run-1", "book-1",
		"كان البيت هادئا في ذلك الصباح وخرجت أمينة إلى الفناء تتأمل السماء.", "book.txt")
}

func TestValidatorPasses(t *testing.T) {
	pub := notify.NewMemoryPublisher()
	v := New(&fakeAnalyzer{}, pub, Config{ExpectedLanguage: "ar"}, nil)

	st := newState()
	route, err := v.Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if route != pipeline.RouteContinue {
		t.Errorf("route = %v, want continue", route)
	}
	if !st.ValidationPassed {
		t.Error("validation should pass")
	}
	if got := len(pub.ByType(notify.EventValidationProgress)); got != 3 {
		t.Errorf("progress events = %d, want 3", got)
	}
}

func TestValidatorFailsWrongLanguage(t *testing.T) {
	pub := notify.NewMemoryPublisher()
	fa := &fakeAnalyzer{
		detectLanguage: func(string) (llm.LanguageResult, error) {
			return llm.LanguageResult{Language: "en", Confidence: 0.99}, nil
		},
	}
	v := New(fa, pub, Config{ExpectedLanguage: "ar"}, nil)

	st := newState()
	route, err := v.Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if route != pipeline.RouteTerminate {
		t.Errorf("route = %v, want terminate", route)
	}
	if st.ValidationPassed || st.ValidationReason != ReasonLanguage {
		t.Errorf("reason = %q, passed = %v", st.ValidationReason, st.ValidationPassed)
	}
	if got := len(pub.ByType(notify.EventValidationFailed)); got != 1 {
		t.Errorf("validation_failed events = %d, want 1", got)
	}
}

func TestValidatorFailsLowConfidence(t *testing.T) {
	fa := &fakeAnalyzer{
		detectLanguage: func(string) (llm.LanguageResult, error) {
			return llm.LanguageResult{Language: "ar", Confidence: 0.4}, nil
		},
	}
	v := New(fa, notify.NewMemoryPublisher(), Config{ExpectedLanguage: "ar"}, nil)

	st := newState()
	if _, err := v.Run(context.Background(), st); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if st.ValidationPassed || st.ValidationReason != ReasonLanguage {
		t.Errorf("reason = %q", st.ValidationReason)
	}
}

func TestValidatorFailsLowQuality(t *testing.T) {
	fa := &fakeAnalyzer{
		assessQuality: func(string) (float64, error) { return 0.2, nil },
	}
	v := New(fa, notify.NewMemoryPublisher(), Config{}, nil)

	st := newState()
	if _, err := v.Run(context.Background(), st); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if st.ValidationPassed || st.ValidationReason != ReasonQuality {
		t.Errorf("reason = %q", st.ValidationReason)
	}
}

func TestValidatorFailsNonLiterary(t *testing.T) {
	pub := notify.NewMemoryPublisher()
	fa := &fakeAnalyzer{
		classify: func(string) (llm.Classification, error) {
			return llm.Classification{Category: "non-fiction", Literary: false, Confidence: 0.95}, nil
		},
	}
	v := New(fa, pub, Config{}, nil)

	st := newState()
	route, err := v.Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if route != pipeline.RouteTerminate {
		t.Errorf("route = %v, want terminate", route)
	}
	if st.ValidationPassed || st.ValidationReason != ReasonClassification {
		t.Errorf("reason = %q", st.ValidationReason)
	}
	if len(st.Chunks) != 0 {
		t.Errorf("chunks produced on failed validation")
	}
	failed := pub.ByType(notify.EventValidationFailed)
	if len(failed) != 1 {
		t.Fatalf("validation_failed events = %d, want 1", len(failed))
	}
	if failed[0].Data["category"] != "non-fiction" {
		t.Errorf("event data = %v", failed[0].Data)
	}
}

func TestValidatorDegradedCheckContinues(t *testing.T) {
	pub := notify.NewMemoryPublisher()
	fa := &fakeAnalyzer{
		assessQuality: func(string) (float64, error) {
			return 0, fmt.Errorf("model unavailable")
		},
	}
	v := New(fa, pub, Config{}, nil)

	st := newState()
	route, err := v.Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if route != pipeline.RouteContinue || !st.ValidationPassed {
		t.Errorf("degraded check should pass through: route=%v passed=%v", route, st.ValidationPassed)
	}
	if got := len(pub.ByType(notify.EventUnexpectedError)); got != 1 {
		t.Errorf("unexpected_error events = %d, want 1", got)
	}
}

func TestValidatorEmptyInputFails(t *testing.T) {
	v := New(&fakeAnalyzer{}, notify.NewMemoryPublisher(), Config{}, nil)
	st := pipeline.NewState("run-1", "book-1", "   \n ", "book.txt")

	route, err := v.Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if route != pipeline.RouteTerminate || st.ValidationPassed {
		t.Errorf("empty input should fail validation")
	}
}

func TestSampleText(t *testing.T) {
	t.Run("short input returned whole", func(t *testing.T) {
		got := SampleText("one two three", 5, 300)
		if got != "one two three" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("long input sampled", func(t *testing.T) {
		words := make([]string, 10000)
		for i := range words {
			words[i] = fmt.Sprintf("w%d", i)
		}
		sample := SampleText(strings.Join(words, " "), 5, 100)

		sampled := strings.Fields(sample)
		if len(sampled) != 500 {
			t.Errorf("sampled %d words, want 500", len(sampled))
		}
		if !strings.Contains(sample, "w0 ") {
			t.Error("sample misses the opening")
		}
		if !strings.Contains(sample, "w9999") {
			t.Error("sample misses the ending")
		}
	})
}
