// Package llm implements the optional post-processor that paraphrases the
// extractive summary with a hosted model. Every failure is absorbed: the
// caller always gets a summary and exactly one explanatory note.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/logger"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/metrics"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/resilience"
)

const (
	DefaultTimeout         = 10 * time.Second
	DefaultMaxOutputTokens = 200
	DefaultMaxPassages     = 5
	MaxModelAttempts       = 3
)

type Config struct {
	// Models are tried in order; the list is cut to MaxModelAttempts.
	Models          []string
	Timeout         time.Duration
	MaxOutputTokens int
	MaxPassages     int
	// RetriesPerModel is the number of calls made to one model before moving
	// on, spent only on rate limiting, 5xx and transport errors.
	RetriesPerModel int
	Validator       Validator
}

type PostProcessor struct {
	completer Completer
	cfg       Config
	breaker   *resilience.CircuitBreaker
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*PostProcessor)

func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(p *PostProcessor) { p.breaker = cb }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *PostProcessor) { p.metrics = m }
}

func NewPostProcessor(c Completer, cfg Config, opts ...Option) *PostProcessor {
	if len(cfg.Models) > MaxModelAttempts {
		cfg.Models = cfg.Models[:MaxModelAttempts]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if cfg.MaxPassages <= 0 {
		cfg.MaxPassages = DefaultMaxPassages
	}
	if cfg.RetriesPerModel <= 0 {
		cfg.RetriesPerModel = 1
	}
	p := &PostProcessor{
		completer: c,
		cfg:       cfg,
		logger:    logger.WithComponent("llm-postprocessor"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Outcome is a resolved post-processing run.
type Outcome struct {
	Summary string
	Note    string
	Result  Result
}

// Postprocess returns the summary to publish and the note explaining it.
// An empty input summary is returned as is with no note.
func (p *PostProcessor) Postprocess(ctx context.Context, in Input) (string, string) {
	out := p.Rewrite(ctx, in)
	return out.Summary, out.Note
}

// Rewrite is Postprocess keeping the Result for callers that report on it.
// Result is nil only when the summary was empty.
func (p *PostProcessor) Rewrite(ctx context.Context, in Input) Outcome {
	if in.Summary == "" {
		return Outcome{}
	}
	result := p.Attempt(ctx, in)
	summary, note := Resolve(in.Summary, result)

	log := logger.FromContext(ctx).With("component", "llm-postprocessor")
	switch r := result.(type) {
	case Success:
		dmp := diffmatchpatch.New()
		distance := dmp.DiffLevenshtein(dmp.DiffMain(in.Summary, r.Text, false))
		p.metrics.RewriteDistance(distance)
		log.Debug("summary rewritten", "model", r.Model, "edit_distance", distance, "fallback_from", r.FallbackFrom)
	case Failure:
		p.metrics.LLMFallback()
		log.Warn("deterministic summary kept", "reason", string(r.Reason), "model", r.Model, "error", r.Err)
	}
	return Outcome{Summary: summary, Note: note, Result: result}
}

// Attempt runs the bounded model sequence. It never returns nil.
func (p *PostProcessor) Attempt(ctx context.Context, in Input) Result {
	if len(p.cfg.Models) == 0 {
		return Failure{Reason: ReasonNoModels}
	}
	req := Request{
		Prompt:          buildPrompt(in, p.cfg.MaxPassages),
		MaxOutputTokens: p.cfg.MaxOutputTokens,
	}

	var last Failure
	var abandoned []string
	for _, model := range p.cfg.Models {
		if ctx.Err() != nil {
			return Failure{Reason: ReasonCanceled, Model: model, Err: ctx.Err()}
		}
		req.Model = model
		completion, err := p.call(ctx, req)
		if err != nil {
			reason := classify(ctx, err)
			p.metrics.LLMAttempt(model, string(reason))
			last = Failure{Reason: reason, Model: model, Err: err}
			if terminal(reason) {
				return last
			}
			p.logger.Warn("model attempt failed, trying next", "model", model, "reason", string(reason), "error", err)
			abandoned = append(abandoned, model)
			continue
		}
		if completion.Payload.Kind == PayloadMalformed {
			p.metrics.LLMAttempt(model, string(ReasonMalformed))
			last = Failure{Reason: ReasonMalformed, Model: model, Err: errors.New(completion.Payload.Detail)}
			abandoned = append(abandoned, model)
			continue
		}
		if reason := p.cfg.Validator.Check(completion.Payload.Text, in); reason != "" {
			p.metrics.LLMAttempt(model, string(reason))
			return Failure{Reason: reason, Model: model}
		}
		p.metrics.LLMAttempt(model, "success")
		return Success{Text: completion.Payload.Text, Model: model, FallbackFrom: abandoned}
	}
	return last
}

// call makes up to RetriesPerModel requests to one model, each bounded by
// the per-attempt timeout and guarded by the breaker when one is set.
func (p *PostProcessor) call(ctx context.Context, req Request) (Completion, error) {
	var out Completion
	retryCfg := resilience.RetryConfig{
		MaxAttempts:  p.cfg.RetriesPerModel,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
	err := resilience.Retry(ctx, "llm."+req.Model, retryCfg, func() error {
		var completion Completion
		attempt := func() error {
			return resilience.WithTimeout(ctx, p.cfg.Timeout, "llm."+req.Model, func(c context.Context) error {
				var err error
				completion, err = p.completer.Complete(c, req)
				return err
			})
		}
		var err error
		if p.breaker != nil {
			err = p.breaker.Execute(attempt)
		} else {
			err = attempt()
		}
		if err != nil {
			if !retryable(err) {
				return resilience.Permanent(err)
			}
			return err
		}
		out = completion
		return nil
	})
	return out, err
}

// IsProviderFailure reports whether err says something about the provider's
// health. Circuit breakers count only these.
func IsProviderFailure(err error) bool {
	if err == nil || errors.Is(err, ErrMissingCredentials) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

func classify(ctx context.Context, err error) Reason {
	var se *StatusError
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return ReasonMissingCredentials
	case errors.Is(err, resilience.ErrCircuitOpen):
		return ReasonCircuitOpen
	case ctx.Err() != nil:
		return ReasonCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.As(err, &se):
		if se.Auth() {
			return ReasonAuth
		}
		return ReasonStatus
	default:
		return ReasonTransport
	}
}

// terminal reasons end the model sequence; the rest move to the next model.
func terminal(r Reason) bool {
	switch r {
	case ReasonMissingCredentials, ReasonAuth, ReasonCircuitOpen, ReasonCanceled:
		return true
	}
	return false
}

func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	return IsProviderFailure(err)
}
