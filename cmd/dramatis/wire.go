package main

import (
	"log/slog"

	"github.com/rowanlight/dramatis/internal/characters"
	"github.com/rowanlight/dramatis/internal/config"
	"github.com/rowanlight/dramatis/internal/llm"
	"github.com/rowanlight/dramatis/internal/notify"
	"github.com/rowanlight/dramatis/internal/pipeline"
	"github.com/rowanlight/dramatis/internal/pipeline/analyst"
	"github.com/rowanlight/dramatis/internal/pipeline/extractor"
	"github.com/rowanlight/dramatis/internal/pipeline/preprocess"
	"github.com/rowanlight/dramatis/internal/pipeline/validator"
	"github.com/rowanlight/dramatis/internal/providers"
	"github.com/rowanlight/dramatis/internal/store"
)

// newAnalyzer builds the LLM analyzer from config.
func newAnalyzer(cfg *config.Config, logger *slog.Logger) (*llm.Analyzer, error) {
	client, err := providers.NewOpenAIClient(providers.OpenAIConfig{
		APIKey:    cfg.APIKey(),
		Model:     cfg.LLM.Model,
		RateLimit: cfg.LLM.RateLimit,
		Timeout:   cfg.LLM.CallTimeout,
	})
	if err != nil {
		return nil, err
	}
	return llm.New(llm.Config{
		Client:      client,
		Model:       cfg.LLM.Model,
		MaxAttempts: cfg.LLM.MaxAttempts,
		RetryDelay:  cfg.LLM.RetryDelay,
		CallTimeout: cfg.LLM.CallTimeout,
		Logger:      logger,
	})
}

// newExecutor wires the four pipeline stages in their fixed order.
func newExecutor(cfg *config.Config, analyzer *llm.Analyzer, st store.Store, publisher notify.Publisher, norm *characters.Normalizer, logger *slog.Logger) *pipeline.Executor {
	return pipeline.NewExecutor(logger,
		validator.New(analyzer, publisher, validator.Config{
			ExpectedLanguage:   cfg.Analysis.ExpectedLanguage,
			LanguageConfidence: cfg.Analysis.LanguageConfidence,
			QualityCutoff:      cfg.Analysis.QualityCutoff,
			SampleWindows:      cfg.Analysis.SampleWindows,
			WindowWords:        cfg.Analysis.WindowWords,
		}, logger),
		extractor.New(analyzer, st, publisher, logger),
		preprocess.New(st, publisher, preprocess.Config{
			ChunkSize:    cfg.Chunking.Size,
			ChunkOverlap: cfg.Chunking.Overlap,
		}, logger),
		analyst.New(analyzer, st, publisher, norm, analyst.Config{
			SimilarityThreshold: cfg.Analysis.SimilarityThreshold,
			SummaryMaxChars:     cfg.Summary.MaxChars,
		}, logger),
	)
}
