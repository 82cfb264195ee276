// Package llm exposes the pipeline's typed analysis calls (language, quality,
// classification, title, names, summary, profile updates) over an LLM client,
// with bounded retry on transient failures.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/rowanlight/dramatis/internal/characters"
	"github.com/rowanlight/dramatis/internal/providers"
)

// ErrRefused is returned when the model declines to process a chunk
// (content policy refusal). Callers treat it as a skip, not a failure.
var ErrRefused = errors.New("llm: model refused content")

// Analyzer runs the pipeline's classification and extraction calls.
type Analyzer struct {
	client providers.LLMClient
	model  string
	logger *slog.Logger

	maxAttempts uint
	retryDelay  time.Duration
	callTimeout time.Duration
}

// Config configures an Analyzer.
type Config struct {
	Client      providers.LLMClient
	Model       string
	MaxAttempts uint          // retry attempts per call, default 3
	RetryDelay  time.Duration // base backoff delay, default 500ms
	CallTimeout time.Duration // per-call timeout, default 120s
	Logger      *slog.Logger
}

// New creates an Analyzer.
func New(cfg Config) (*Analyzer, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("llm: client is required")
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 120 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		client:      cfg.Client,
		model:       cfg.Model,
		logger:      logger.With("component", "llm"),
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		callTimeout: cfg.CallTimeout,
	}, nil
}

// LanguageResult is the outcome of language detection.
type LanguageResult struct {
	Language   string  `json:"language"` // ISO 639-1 code
	Confidence float64 `json:"confidence"`
}

// Classification is the outcome of content classification.
type Classification struct {
	Category   string  `json:"category"`
	Literary   bool    `json:"literary"`
	Confidence float64 `json:"confidence"`
}

// TitleInfo is the inferred book identity. Reporting metadata only.
type TitleInfo struct {
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	Confidence float64 `json:"confidence"`
}

// DetectLanguage classifies the dominant language of a text sample.
func (a *Analyzer) DetectLanguage(ctx context.Context, sample string) (LanguageResult, error) {
	var out LanguageResult
	err := a.structured(ctx, "language_detection", languageSchema, []providers.Message{
		{Role: "system", Content: languageSystemPrompt},
		{Role: "user", Content: sample},
	}, &out)
	return out, err
}

// AssessQuality scores text quality on a 0.0 to 1.0 scale.
func (a *Analyzer) AssessQuality(ctx context.Context, sample string) (float64, error) {
	var out struct {
		Quality float64 `json:"quality"`
	}
	err := a.structured(ctx, "quality_assessment", qualitySchema, []providers.Message{
		{Role: "system", Content: qualitySystemPrompt},
		{Role: "user", Content: sample},
	}, &out)
	return out.Quality, err
}

// Classify determines whether the text is literary narrative fiction.
func (a *Analyzer) Classify(ctx context.Context, sample string) (Classification, error) {
	var out Classification
	err := a.structured(ctx, "content_classification", classificationSchema, []providers.Message{
		{Role: "system", Content: classificationSystemPrompt},
		{Role: "user", Content: sample},
	}, &out)
	return out, err
}

// ExtractTitle infers a book title and author from the opening text.
func (a *Analyzer) ExtractTitle(ctx context.Context, opening string) (TitleInfo, error) {
	var out TitleInfo
	err := a.structured(ctx, "title_extraction", titleSchema, []providers.Message{
		{Role: "system", Content: titleSystemPrompt},
		{Role: "user", Content: opening},
	}, &out)
	return out, err
}

// ExtractNames extracts candidate character names from text. The optional
// summary provides broader narrative context for alias resolution.
func (a *Analyzer) ExtractNames(ctx context.Context, text, summary string) ([]string, error) {
	var out struct {
		Names []string `json:"names"`
	}
	err := a.structured(ctx, "name_extraction", namesSchema, []providers.Message{
		{Role: "system", Content: namesSystemPrompt},
		{Role: "user", Content: namesUserPrompt(text, summary)},
	}, &out)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(out.Names))
	names := make([]string, 0, len(out.Names))
	for _, n := range out.Names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	return names, nil
}

// Summarize updates the running summary from the prior summary and the current
// chunk. Returns ErrRefused when the model declines the content.
func (a *Analyzer) Summarize(ctx context.Context, priorSummary, chunk string) (string, error) {
	var out struct {
		Summary string `json:"summary"`
		Refused bool   `json:"refused"`
	}
	err := a.structured(ctx, "summary_update", summarySchema, []providers.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: summaryUserPrompt(priorSummary, chunk)},
	}, &out)
	if err != nil {
		if refusalError(err) {
			return "", ErrRefused
		}
		return "", err
	}
	if out.Refused || strings.TrimSpace(out.Summary) == "" {
		return "", ErrRefused
	}
	return out.Summary, nil
}

// ProfileUpdates extracts per-chunk character observations for the given
// names: traits, events, and relationships grounded in the chunk text.
func (a *Analyzer) ProfileUpdates(ctx context.Context, chunk, summary string, names []string) ([]characters.Update, error) {
	if len(names) == 0 {
		return nil, nil
	}

	var out struct {
		Characters []struct {
			Name        string   `json:"name"`
			Aliases     []string `json:"aliases"`
			Age         string   `json:"age"`
			Role        string   `json:"role"`
			Physical    []string `json:"physical"`
			Personality []string `json:"personality"`
			Events      []string `json:"events"`
			Relations   []struct {
				TargetName  string  `json:"target_name"`
				Kind        string  `json:"kind"`
				Strength    float64 `json:"strength"`
				Description string  `json:"description"`
			} `json:"relations"`
		} `json:"characters"`
	}

	err := a.structured(ctx, "profile_extraction", profilesSchema, []providers.Message{
		{Role: "system", Content: profilesSystemPrompt},
		{Role: "user", Content: profilesUserPrompt(chunk, summary, names)},
	}, &out)
	if err != nil {
		return nil, err
	}

	updates := make([]characters.Update, 0, len(out.Characters))
	for _, c := range out.Characters {
		u := characters.Update{
			Name:        strings.TrimSpace(c.Name),
			Aliases:     c.Aliases,
			Age:         c.Age,
			Role:        c.Role,
			Physical:    c.Physical,
			Personality: c.Personality,
			Events:      c.Events,
		}
		for _, r := range c.Relations {
			target := strings.TrimSpace(r.TargetName)
			if target == "" {
				continue
			}
			u.Relations = append(u.Relations, characters.Relation{
				TargetName:  target,
				Kind:        characters.NormalizeKind(r.Kind),
				Strength:    clamp01(r.Strength),
				Description: r.Description,
			})
		}
		if u.Valid() {
			updates = append(updates, u)
		}
	}
	return updates, nil
}

// structured runs one schema-bound call with retry on transient failures and
// decodes the validated JSON into out.
func (a *Analyzer) structured(ctx context.Context, name string, schema json.RawMessage, messages []providers.Message, out any) error {
	req := &providers.ChatRequest{
		Messages: messages,
		Model:    a.model,
		Timeout:  a.callTimeout,
		ResponseFormat: &providers.ResponseFormat{
			Name:       name,
			JSONSchema: schema,
		},
	}

	var result *providers.ChatResult
	err := retry.Do(
		func() error {
			var callErr error
			result, callErr = a.client.Chat(ctx, req)
			if callErr != nil {
				if result != nil && !providers.TransientError(result.ErrorType) {
					return retry.Unrecoverable(callErr)
				}
				return callErr
			}
			return nil
		},
		retry.Attempts(a.maxAttempts),
		retry.Delay(a.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			a.logger.Warn("llm call retrying", "call", name, "attempt", attempt+1, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if len(result.ParsedJSON) == 0 {
		return fmt.Errorf("%s: no structured output", name)
	}
	if err := json.Unmarshal(result.ParsedJSON, out); err != nil {
		return fmt.Errorf("%s: decode structured output: %w", name, err)
	}
	return nil
}

// refusalError detects provider-side content policy rejections.
func refusalError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "content_filter") ||
		strings.Contains(msg, "content policy") ||
		strings.Contains(msg, "content management policy")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
