// Package pipeline runs a question through the navigator state machine:
//
//	START → GUARDRAIL_CHECK → REFUSED                        → OUTPUT
//	                        → RETRIEVE → NO_MATCH             → OUTPUT
//	                                   → SYNTHESIZE           → OUTPUT
//	                                   → SYNTHESIZE → LLM_POSTPROCESS → OUTPUT
//
// Run always produces a Response; no outcome is reported as an error.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/audit"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/cache"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/confidence"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/guardrail"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/indexer/index"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/llm"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/response"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/searcher/parser"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/searcher/retriever"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/synth"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/logger"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/metrics"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/tracing"
)

type Stage string

const (
	StageStart      Stage = "start"
	StageGuardrail  Stage = "guardrail_check"
	StageRefused    Stage = "refused"
	StageRetrieve   Stage = "retrieve"
	StageNoMatch    Stage = "no_match"
	StageSynthesize Stage = "synthesize"
	StageLLM        Stage = "llm_postprocess"
	StageOutput     Stage = "output"
)

type Options struct {
	UseLLM bool
}

// Rewriter is the optional LLM stage. *llm.PostProcessor implements it.
type Rewriter interface {
	Rewrite(ctx context.Context, in llm.Input) llm.Outcome
}

// Deterministic is everything decided before the LLM stage. It depends only
// on the corpus and the question, which makes it safe to cache.
type Deterministic struct {
	Parts    response.Parts
	Category string
	Passages []llm.Passage
}

type Config struct {
	Retrieval  retriever.Config
	Confidence confidence.Policy
	Synth      synth.Config
	// MaxLLMPassages bounds the passages offered to the rewriter.
	MaxLLMPassages int
}

func DefaultConfig() Config {
	return Config{
		Retrieval:      retriever.DefaultConfig(),
		Confidence:     confidence.DefaultPolicy(),
		Synth:          synth.DefaultConfig(),
		MaxLLMPassages: llm.DefaultMaxPassages,
	}
}

type Navigator struct {
	idx       *index.Index
	retriever *retriever.Retriever
	policy    confidence.Policy
	synth     *synth.Synthesizer
	maxLLM    int

	rewriter Rewriter
	cache    *cache.Cache[Deterministic]
	audit    *audit.Collector
	metrics  *metrics.Metrics
	tracing  bool
	logger   *slog.Logger
}

type Option func(*Navigator)

func WithRewriter(r Rewriter) Option { return func(n *Navigator) { n.rewriter = r } }

func WithCache(c *cache.Cache[Deterministic]) Option { return func(n *Navigator) { n.cache = c } }

func WithAudit(c *audit.Collector) Option { return func(n *Navigator) { n.audit = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(n *Navigator) { n.metrics = m } }

func WithTracing(enabled bool) Option { return func(n *Navigator) { n.tracing = enabled } }

func WithLogger(l *slog.Logger) Option { return func(n *Navigator) { n.logger = l } }

func New(idx *index.Index, cfg Config, opts ...Option) *Navigator {
	if cfg.MaxLLMPassages <= 0 {
		cfg.MaxLLMPassages = llm.DefaultMaxPassages
	}
	r := retriever.New(idx, cfg.Retrieval)
	// Confidence counts exactly the documents the retriever lets through.
	cfg.Confidence.WeakScore = r.Threshold()
	n := &Navigator{
		idx:       idx,
		retriever: r,
		policy:    cfg.Confidence,
		synth:     synth.New(cfg.Synth),
		maxLLM:    cfg.MaxLLMPassages,
	}
	for _, o := range opts {
		o(n)
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	n.metrics.SetCorpusDocuments(idx.DocCount())
	return n
}

// Run answers question. The LLM stage runs only when opts.UseLLM is set, a
// rewriter is configured and the question reached SYNTHESIZE.
func (n *Navigator) Run(ctx context.Context, question string, opts Options) response.Response {
	start := time.Now()
	event := audit.NewDecisionEvent(question)
	event.RequestID = logger.RequestID(ctx)
	event.CorpusFingerprint = n.idx.Fingerprint()

	log := n.logger.With("component", "pipeline", "decision_id", event.ID)
	if event.RequestID != "" {
		log = log.With("request_id", event.RequestID)
	}

	var root *tracing.Span
	if n.tracing {
		ctx, root = tracing.StartSpan(ctx, "navigator.run", event.ID)
	}
	log.Debug("stage", "stage", StageStart)

	det, cacheHit := n.decide(ctx, question, log)
	parts := det.Parts

	if opts.UseLLM && n.rewriter != nil && parts.Kind == response.Answered && parts.Summary != "" {
		sctx, done := n.enter(ctx, log, StageLLM)
		out := n.rewriter.Rewrite(sctx, llm.Input{Question: question, Summary: parts.Summary, Passages: det.Passages})
		parts = parts.WithRewrite(out.Summary, out.Note)
		event.LLMStatus = llm.StatusOf(out.Result)
		if s, ok := out.Result.(llm.Success); ok {
			event.LLMModel = s.Model
		}
		done("llm_status", event.LLMStatus)
	}

	_, done := n.enter(ctx, log, StageOutput)
	resp := response.Assemble(parts)
	done("sections", len(resp.RelevantSections))

	event.Outcome = parts.Kind.String()
	event.Category = det.Category
	event.Confidence = string(resp.Confidence)
	event.Sections = len(resp.RelevantSections)
	event.CacheHit = cacheHit
	event.LatencyMs = time.Since(start).Milliseconds()
	n.audit.Track(event)

	n.metrics.Query(event.Outcome, event.Confidence, event.Sections)
	if det.Category != "" {
		n.metrics.Refusal(det.Category)
	}
	if root != nil {
		root.SetAttr("outcome", event.Outcome)
		root.SetAttr("confidence", event.Confidence)
		root.End()
		root.Log(log)
	}
	log.Info("question processed",
		"outcome", event.Outcome,
		"category", event.Category,
		"confidence", event.Confidence,
		"sections", event.Sections,
		"llm_status", event.LLMStatus,
		"cache_hit", cacheHit,
		"query_hash", event.QueryHash,
		"latency_ms", event.LatencyMs,
	)
	return resp
}

// decide runs the deterministic stages, through the cache when one is set.
func (n *Navigator) decide(ctx context.Context, question string, log *slog.Logger) (Deterministic, bool) {
	if n.cache == nil {
		return n.deterministic(ctx, question, log), false
	}
	det, hit, err := n.cache.GetOrCompute(ctx, question, func() (Deterministic, error) {
		return n.deterministic(ctx, question, log), nil
	})
	if err != nil {
		log.Warn("cache unavailable, computing directly", "error", err)
		return n.deterministic(ctx, question, log), false
	}
	if hit {
		log.Debug("deterministic stages served from cache")
	}
	return det, hit
}

func (n *Navigator) deterministic(ctx context.Context, question string, log *slog.Logger) Deterministic {
	_, done := n.enter(ctx, log, StageGuardrail)
	decision := guardrail.Evaluate(question)
	done("allowed", decision.Allowed, "matches", decision.Matches)

	if !decision.Allowed {
		_, done := n.enter(ctx, log, StageRefused)
		defer done("category", decision.Category, "rules", decision.Rules)
		return Deterministic{
			Parts: response.Parts{
				Kind:        response.Refused,
				Summary:     decision.Summary(),
				Sections:    []response.Section{},
				Limitations: decision.Limitations(),
				Confidence:  confidence.VeryLow,
			},
			Category: string(decision.Category),
		}
	}

	_, done = n.enter(ctx, log, StageRetrieve)
	q := parser.Parse(question)
	result := n.retriever.Retrieve(q)
	weak := result.Weak()
	done("terms", q.Stems(), "ranked", len(result.Ranked), "qualifying", len(result.Qualifying), "weak", len(weak))

	if result.NoMatch() {
		_, done := n.enter(ctx, log, StageNoMatch)
		defer done("empty_query", q.Empty())
		parts := synth.NoMatch(q.Empty())
		parts.Confidence = confidence.VeryLow
		return Deterministic{Parts: parts}
	}

	_, done = n.enter(ctx, log, StageSynthesize)
	level := n.policy.Derive(result.Ranked)
	syn := n.synth.Synthesize(n.idx, q, result.Qualifying)
	passages := n.synth.Passages(n.idx, q, result.Qualifying, n.maxLLM)
	done("confidence", level, "sections", len(syn.Sections))

	llmPassages := make([]llm.Passage, 0, len(passages))
	for _, p := range passages {
		llmPassages = append(llmPassages, llm.Passage{Title: p.Title, Text: p.Text})
	}
	return Deterministic{
		Parts: response.Parts{
			Kind:        response.Answered,
			Summary:     syn.Summary,
			Sections:    syn.Sections,
			Limitations: n.synth.Limitations(syn, level, weak),
			Confidence:  level,
		},
		Passages: llmPassages,
	}
}

// enter logs the transition into s and returns a child context plus a
// function that closes the stage with the given attributes.
func (n *Navigator) enter(ctx context.Context, log *slog.Logger, s Stage) (context.Context, func(attrs ...any)) {
	start := time.Now()
	ctx, span := tracing.StartChildSpan(ctx, string(s))
	log.Debug("stage", "stage", s)
	return ctx, func(attrs ...any) {
		for i := 0; i+1 < len(attrs); i += 2 {
			if k, ok := attrs[i].(string); ok {
				span.SetAttr(k, attrs[i+1])
			}
		}
		span.End()
		n.metrics.Stage(string(s), time.Since(start))
	}
}

// Index exposes the index the navigator answers from.
func (n *Navigator) Index() *index.Index { return n.idx }
