package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/confidence"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/corpus"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/indexer/index"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/llm"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/pipeline"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/response"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/searcher/ranker"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/searcher/retriever"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/synth"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/config"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/logger"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/metrics"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/resilience"
)

// loadConfig reads the config file and environment, then applies flags.
func loadConfig(g globalFlags, topN int) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.corpusDir != "" {
		cfg.Corpus.Dir = g.corpusDir
	}
	if topN != 0 {
		cfg.Retrieval.TopN = topN
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config, stderr io.Writer) {
	logger.SetupWriter(stderr, cfg.Logging.Level, cfg.Logging.Format)
}

// buildIndex loads the corpus and indexes it.
func buildIndex(cfg *config.Config) (*index.Index, error) {
	docs, err := corpus.Load(cfg.Corpus.Dir)
	if err != nil {
		return nil, err
	}
	idx, err := index.Build(docs)
	if err != nil {
		return nil, fmt.Errorf("indexing corpus: %w", err)
	}
	slog.Info("corpus indexed",
		"dir", cfg.Corpus.Dir,
		"documents", idx.DocCount(),
		"terms", idx.TermCount(),
		"fingerprint", idx.Fingerprint(),
	)
	return idx, nil
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		Retrieval: retriever.Config{
			Params:             ranker.Params{K1: cfg.Retrieval.K1, B: cfg.Retrieval.B},
			WeakMatchThreshold: cfg.Retrieval.WeakMatchThreshold,
		},
		Confidence: confidence.Policy{
			WeakScore:     cfg.Retrieval.WeakMatchThreshold,
			ModerateScore: cfg.Confidence.ModerateScore,
			StrongScore:   cfg.Confidence.StrongScore,
			Corroboration: cfg.Confidence.Corroboration,
		},
		Synth: synth.Config{
			TopN:            cfg.Retrieval.TopN,
			MaxPassageChars: cfg.Retrieval.MaxPassageChars,
		},
		MaxLLMPassages: cfg.LLM.MaxPassages,
	}
}

// newRewriter builds the LLM post-processor. It is built even without an
// API key so that requests asking for it get the skip note. The breaker is
// nil when disabled.
func newRewriter(cfg *config.Config, m *metrics.Metrics) (*llm.PostProcessor, *resilience.CircuitBreaker) {
	client := llm.NewClient(llm.ClientConfig{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})
	if !client.HasCredentials() {
		slog.Debug("no LLM credentials configured")
	}

	opts := []llm.Option{llm.WithMetrics(m)}
	var breaker *resilience.CircuitBreaker
	if cb := cfg.LLM.CircuitBreaker; cb.Enabled {
		breaker = resilience.NewCircuitBreaker("llm", resilience.CircuitBreakerConfig{
			FailureThreshold:    cb.FailureThreshold,
			ResetTimeout:        cb.ResetTimeout,
			HalfOpenMaxRequests: cb.HalfOpenMaxRequests,
			IsFailure:           llm.IsProviderFailure,
			OnStateChange: func(name string, _, to resilience.State) {
				m.SetBreakerState(name, int(to))
			},
		})
		opts = append(opts, llm.WithBreaker(breaker))
	}

	validator := llm.DefaultValidator()
	if cfg.LLM.MinOverlap > 0 {
		validator.MinOverlap = cfg.LLM.MinOverlap
	}
	return llm.NewPostProcessor(client, llm.Config{
		Models:          cfg.LLM.Models(),
		Timeout:         cfg.LLM.Timeout,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		MaxPassages:     cfg.LLM.MaxPassages,
		Validator:       validator,
	}, opts...), breaker
}

// runAsk answers one question on stdout.
func runAsk(ctx context.Context, question string, g globalFlags, a askFlags, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(g, a.topN)
	if err != nil {
		return startupError(err, "loading config")
	}
	setupLogging(cfg, stderr)

	idx, err := buildIndex(cfg)
	if err != nil {
		return startupError(err, "loading corpus")
	}

	useLLM := a.useLLM
	if !a.useLLMSet {
		useLLM = cfg.LLM.Enabled
	}
	opts := []pipeline.Option{pipeline.WithTracing(cfg.Tracing.Enabled)}
	if useLLM {
		rewriter, _ := newRewriter(cfg, nil)
		opts = append(opts, pipeline.WithRewriter(rewriter))
	}
	nav := pipeline.New(idx, pipelineConfig(cfg), opts...)

	resp := nav.Run(ctx, question, pipeline.Options{UseLLM: useLLM})
	if err := response.Encode(stdout, resp); err != nil {
		return &exitErr{code: 1, msg: "writing response: " + err.Error()}
	}
	return nil
}
