package llm

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/resilience"
)

type reply struct {
	text string
	err  error
	body Payload
}

// fakeCompleter answers per model and records the order of calls.
type fakeCompleter struct {
	mu      sync.Mutex
	replies map[string]reply
	block   bool
	calls   []string
}

func (f *fakeCompleter) Complete(ctx context.Context, req Request) (Completion, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Model)
	r, ok := f.replies[req.Model]
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return Completion{}, ctx.Err()
	}
	if !ok {
		return Completion{}, &StatusError{StatusCode: http.StatusNotFound, Message: "model not found"}
	}
	if r.err != nil {
		return Completion{}, r.err
	}
	if r.body.Kind == PayloadMalformed && r.text == "" {
		return Completion{Model: req.Model, Payload: r.body}, nil
	}
	return Completion{Model: req.Model, Payload: Payload{Kind: PayloadPlainText, Text: r.text}}, nil
}

func (f *fakeCompleter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

const grounded = "Organisations must document the lawful basis for processing personal data before it begins."

func TestPostprocessSuccess(t *testing.T) {
	fc := &fakeCompleter{replies: map[string]reply{"primary": {text: grounded}}}
	pp := NewPostProcessor(fc, Config{Models: []string{"primary", "backup"}})

	summary, note := pp.Postprocess(context.Background(), sampleInput)
	assert.Equal(t, grounded, summary)
	assert.Equal(t, "LLM paraphrase applied (model primary); wording may differ from the quoted guidance.", note)
	assert.Equal(t, []string{"primary"}, fc.Calls())
}

func TestPostprocessFallsBackOnMissingModel(t *testing.T) {
	fc := &fakeCompleter{replies: map[string]reply{"backup": {text: grounded}}}
	pp := NewPostProcessor(fc, Config{Models: []string{"primary", "backup"}})

	summary, note := pp.Postprocess(context.Background(), sampleInput)
	assert.Equal(t, grounded, summary)
	assert.Contains(t, note, "LLM fallback used")
	assert.Contains(t, note, "by backup after primary")
	assert.Equal(t, []string{"primary", "backup"}, fc.Calls())
}

func TestPostprocessDiscardsUnhelpfulOutput(t *testing.T) {
	fc := &fakeCompleter{replies: map[string]reply{
		"primary": {text: "The provided passages do not contain an answer."},
		"backup":  {text: grounded},
	}}
	pp := NewPostProcessor(fc, Config{Models: []string{"primary", "backup"}})

	summary, note := pp.Postprocess(context.Background(), sampleInput)
	assert.Equal(t, sampleInput.Summary, summary)
	assert.Equal(t, "LLM summary discarded: unhelpful content", note)
	assert.Equal(t, []string{"primary"}, fc.Calls(), "validation failures do not try other models")
}

func TestPostprocessMissingCredentials(t *testing.T) {
	pp := NewPostProcessor(NewClient(ClientConfig{}), Config{Models: []string{"a", "b", "c"}, RetriesPerModel: 3})

	summary, note := pp.Postprocess(context.Background(), sampleInput)
	assert.Equal(t, sampleInput.Summary, summary)
	assert.Equal(t, SkippedNote, note)
}

func TestPostprocessAuthRejectedStops(t *testing.T) {
	authErr := &StatusError{StatusCode: http.StatusUnauthorized, Message: "bad key"}
	fc := &fakeCompleter{replies: map[string]reply{"primary": {err: authErr}, "backup": {text: grounded}}}
	pp := NewPostProcessor(fc, Config{Models: []string{"primary", "backup"}, RetriesPerModel: 3})

	result := pp.Attempt(context.Background(), sampleInput)
	f, ok := result.(Failure)
	require.True(t, ok)
	assert.Equal(t, ReasonAuth, f.Reason)
	assert.Equal(t, []string{"primary"}, fc.Calls())
}

func TestPostprocessTimeoutMovesOn(t *testing.T) {
	fc := &fakeCompleter{block: true}
	pp := NewPostProcessor(fc, Config{Models: []string{"a", "b"}, Timeout: 20 * time.Millisecond})

	start := time.Now()
	summary, note := pp.Postprocess(context.Background(), sampleInput)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, sampleInput.Summary, summary)
	assert.Equal(t, "LLM summary failed; deterministic summary used (timeout)", note)
	assert.Equal(t, []string{"a", "b"}, fc.Calls())
}

func TestPostprocessCapsModelAttempts(t *testing.T) {
	fc := &fakeCompleter{replies: map[string]reply{}}
	pp := NewPostProcessor(fc, Config{Models: []string{"m1", "m2", "m3", "m4", "m5"}})

	result := pp.Attempt(context.Background(), sampleInput)
	f, ok := result.(Failure)
	require.True(t, ok)
	assert.Equal(t, ReasonStatus, f.Reason)
	assert.Equal(t, "m3", f.Model)
	assert.Equal(t, []string{"m1", "m2", "m3"}, fc.Calls())
}

func TestPostprocessMalformedPayloadTriesNext(t *testing.T) {
	fc := &fakeCompleter{replies: map[string]reply{
		"primary": {body: Payload{Kind: PayloadMalformed, Detail: "missing output"}},
	}}
	pp := NewPostProcessor(fc, Config{Models: []string{"primary"}})

	summary, note := pp.Postprocess(context.Background(), sampleInput)
	assert.Equal(t, sampleInput.Summary, summary)
	assert.Equal(t, "LLM summary failed; deterministic summary used (malformed_payload)", note)
}

func TestPostprocessRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c := completerFunc(func(ctx context.Context, req Request) (Completion, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return Completion{}, &StatusError{StatusCode: http.StatusBadGateway}
		}
		return Completion{Model: req.Model, Payload: Payload{Kind: PayloadPlainText, Text: grounded}}, nil
	})
	pp := NewPostProcessor(c, Config{Models: []string{"primary"}, RetriesPerModel: 2})

	summary, note := pp.Postprocess(context.Background(), sampleInput)
	assert.Equal(t, grounded, summary)
	assert.Contains(t, note, "LLM paraphrase applied")
	assert.Equal(t, 2, calls)
}

func TestPostprocessCanceledContext(t *testing.T) {
	fc := &fakeCompleter{replies: map[string]reply{"primary": {text: grounded}}}
	pp := NewPostProcessor(fc, Config{Models: []string{"primary"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f, ok := pp.Attempt(ctx, sampleInput).(Failure)
	require.True(t, ok)
	assert.Equal(t, ReasonCanceled, f.Reason)
	assert.Empty(t, fc.Calls())
}

func TestPostprocessOpenBreaker(t *testing.T) {
	cb := resilience.NewCircuitBreaker("llm", resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
		IsFailure:        IsProviderFailure,
	})
	fc := &fakeCompleter{replies: map[string]reply{"primary": {err: errors.New("connection reset")}}}
	pp := NewPostProcessor(fc, Config{Models: []string{"primary"}}, WithBreaker(cb))

	first, ok := pp.Attempt(context.Background(), sampleInput).(Failure)
	require.True(t, ok)
	assert.Equal(t, ReasonTransport, first.Reason)

	second, ok := pp.Attempt(context.Background(), sampleInput).(Failure)
	require.True(t, ok)
	assert.Equal(t, ReasonCircuitOpen, second.Reason)
	assert.Len(t, fc.Calls(), 1)
}

func TestPostprocessEmptySummary(t *testing.T) {
	fc := &fakeCompleter{}
	summary, note := NewPostProcessor(fc, Config{Models: []string{"m"}}).Postprocess(context.Background(), Input{})
	assert.Empty(t, summary)
	assert.Empty(t, note)
	assert.Empty(t, fc.Calls())
}

func TestIsProviderFailure(t *testing.T) {
	assert.False(t, IsProviderFailure(nil))
	assert.False(t, IsProviderFailure(ErrMissingCredentials))
	assert.False(t, IsProviderFailure(context.Canceled))
	assert.False(t, IsProviderFailure(&StatusError{StatusCode: 404}))
	assert.False(t, IsProviderFailure(&StatusError{StatusCode: 401}))
	assert.True(t, IsProviderFailure(&StatusError{StatusCode: 429}))
	assert.True(t, IsProviderFailure(&StatusError{StatusCode: 503}))
	assert.True(t, IsProviderFailure(errors.New("dial tcp: refused")))
}

type completerFunc func(ctx context.Context, req Request) (Completion, error)

func (f completerFunc) Complete(ctx context.Context, req Request) (Completion, error) {
	return f(ctx, req)
}
