// Package validator gates the pipeline on input language, text quality, and
// content class. Sub-stages run linearly with early exit; a failure here is
// an expected terminal outcome, not an error.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rowanlight/dramatis/internal/notify"
	"github.com/rowanlight/dramatis/internal/pipeline"
)

// Failure reasons recorded on pipeline.State.
const (
	ReasonLanguage       = "language"
	ReasonQuality        = "quality"
	ReasonClassification = "classification"
)

// Config holds validation thresholds. Zero values take defaults.
type Config struct {
	// ExpectedLanguage is an ISO 639-1 code. Empty accepts any language.
	ExpectedLanguage string
	// LanguageConfidence is the minimum detection confidence, default 0.8.
	LanguageConfidence float64
	// QualityCutoff fails runs scoring below it, default 0.5.
	QualityCutoff float64
	// SampleWindows and WindowWords bound how much text the sub-stages
	// score: evenly spaced word windows instead of the whole book.
	SampleWindows int
	WindowWords   int
}

func (c *Config) applyDefaults() {
	if c.LanguageConfidence == 0 {
		c.LanguageConfidence = 0.8
	}
	if c.QualityCutoff == 0 {
		c.QualityCutoff = 0.5
	}
	if c.SampleWindows <= 0 {
		c.SampleWindows = 5
	}
	if c.WindowWords <= 0 {
		c.WindowWords = 300
	}
}

// Validator is the first pipeline stage.
type Validator struct {
	analyzer  pipeline.Analyzer
	publisher notify.Publisher
	cfg       Config
	logger    *slog.Logger
}

// New creates the validator stage.
func New(analyzer pipeline.Analyzer, publisher notify.Publisher, cfg Config, logger *slog.Logger) *Validator {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		analyzer:  analyzer,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With("stage", "validator"),
	}
}

// Name implements pipeline.Stage.
func (v *Validator) Name() string { return "validator" }

// Run scores a bounded sample of the input. Sub-stage order: language,
// quality, classification. The first failing check terminates the run with
// ValidationPassed=false. A sub-stage whose model call fails outright
// degrades to a pass: the failure is logged and surfaced as an
// unexpected_error event, and validation continues.
func (v *Validator) Run(ctx context.Context, st *pipeline.State) (pipeline.Route, error) {
	sample := SampleText(st.Source, v.cfg.SampleWindows, v.cfg.WindowWords)
	if strings.TrimSpace(sample) == "" {
		return v.fail(ctx, st, ReasonQuality, map[string]any{"detail": "empty input"})
	}

	// Language check.
	lang, err := v.analyzer.DetectLanguage(ctx, sample)
	switch {
	case err != nil:
		v.degrade(ctx, st, "language detection", err)
	case lang.Confidence < v.cfg.LanguageConfidence,
		v.cfg.ExpectedLanguage != "" && !strings.EqualFold(lang.Language, v.cfg.ExpectedLanguage):
		return v.fail(ctx, st, ReasonLanguage, map[string]any{
			"language":   lang.Language,
			"confidence": lang.Confidence,
		})
	}
	v.progress(ctx, st, "language", map[string]any{"language": lang.Language})

	// Quality assessment.
	quality, err := v.analyzer.AssessQuality(ctx, sample)
	switch {
	case err != nil:
		v.degrade(ctx, st, "quality assessment", err)
	case quality < v.cfg.QualityCutoff:
		return v.fail(ctx, st, ReasonQuality, map[string]any{"quality": quality})
	}
	v.progress(ctx, st, "quality", map[string]any{"quality": quality})

	// Content classification.
	class, err := v.analyzer.Classify(ctx, sample)
	switch {
	case err != nil:
		v.degrade(ctx, st, "content classification", err)
	case !class.Literary:
		return v.fail(ctx, st, ReasonClassification, map[string]any{
			"category":   class.Category,
			"confidence": class.Confidence,
		})
	}
	v.progress(ctx, st, "classification", map[string]any{"category": class.Category})

	st.ValidationPassed = true
	return pipeline.RouteContinue, nil
}

func (v *Validator) fail(ctx context.Context, st *pipeline.State, reason string, data map[string]any) (pipeline.Route, error) {
	st.ValidationPassed = false
	st.ValidationReason = reason
	v.logger.Info("validation failed", "run_id", st.RunID, "reason", reason)

	if data == nil {
		data = map[string]any{}
	}
	data["reason"] = reason
	v.publish(ctx, notify.NewEvent(st.RunID, notify.EventValidationFailed, notify.StatusFailed, data))
	return pipeline.RouteTerminate, nil
}

// degrade handles a sub-stage whose model call failed after retries: the run
// continues with the check treated as passed.
func (v *Validator) degrade(ctx context.Context, st *pipeline.State, check string, err error) {
	v.logger.Error("validation check degraded", "run_id", st.RunID, "check", check, "error", err)
	v.publish(ctx, notify.UnexpectedError(st.RunID,
		fmt.Sprintf("The %s check could not complete and was skipped.", check)))
}

func (v *Validator) progress(ctx context.Context, st *pipeline.State, check string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["check"] = check
	v.publish(ctx, notify.NewEvent(st.RunID, notify.EventValidationProgress, notify.StatusProgress, data))
}

func (v *Validator) publish(ctx context.Context, e notify.Event) {
	if v.publisher == nil {
		return
	}
	if err := v.publisher.Publish(ctx, e); err != nil {
		v.logger.Warn("event publish failed", "event_type", e.EventType, "error", err)
	}
}

// SampleText returns up to windows evenly spaced word windows of windowWords
// words each, joined with blank lines. Short inputs come back whole.
func SampleText(text string, windows, windowWords int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	if windows < 2 {
		windows = 2
	}
	if len(words) <= windows*windowWords {
		return strings.Join(words, " ")
	}

	stride := (len(words) - windowWords) / (windows - 1)
	parts := make([]string, 0, windows)
	for i := 0; i < windows; i++ {
		start := i * stride
		end := start + windowWords
		if end > len(words) {
			end = len(words)
		}
		parts = append(parts, strings.Join(words[start:end], " "))
	}
	return strings.Join(parts, "\n\n")
}

var _ pipeline.Stage = (*Validator)(nil)
