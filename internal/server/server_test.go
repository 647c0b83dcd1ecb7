package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/audit"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/cache"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/corpus"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/indexer/index"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/pipeline"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/response"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/health"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/logger"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/middleware"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/resilience"
)

type fixture struct {
	router    http.Handler
	idx       *index.Index
	cache     *cache.Cache[pipeline.Deterministic]
	collector *audit.Collector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	docs, err := corpus.Load("../../corpus")
	require.NoError(t, err)
	idx, err := index.Build(docs)
	require.NoError(t, err)

	backend, err := cache.NewMemoryBackend(64)
	require.NoError(t, err)
	c := cache.New[pipeline.Deterministic](backend, idx.Fingerprint(), nil)
	collector := audit.NewCollector(audit.LogPublisher{Logger: logger.Discard()}, audit.Options{})
	t.Cleanup(collector.Close)

	nav := pipeline.New(idx, pipeline.DefaultConfig(),
		pipeline.WithCache(c),
		pipeline.WithAudit(collector),
		pipeline.WithLogger(logger.Discard()),
	)
	checker := health.NewChecker(time.Second)
	checker.Register("corpus", CorpusCheck(idx))

	h := NewHandler(nav, c, collector)
	return &fixture{
		router:    NewRouter(h, checker, nil, 5*time.Second),
		idx:       idx,
		cache:     c,
		collector: collector,
	}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAskPost(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/ask", `{"question":"What does ICO say about documenting lawful basis?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	body := decode(t, rec)
	assert.Len(t, body, 4)
	assert.Equal(t, "high", body["confidence"])
	sections, ok := body["relevant_sections"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, sections)
	first := sections[0].(map[string]any)
	assert.Equal(t, "Lawful basis documentation", first["title"])
}

func TestAskQuery(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/ask?q=breach", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "medium", decode(t, rec)["confidence"])

	rec = f.do(http.MethodGet, "/api/v1/ask?q=breach&use_llm=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskBusinessOutcomesAre200(t *testing.T) {
	f := newFixture(t)

	refused := f.do(http.MethodPost, "/api/v1/ask", `{"question":"Is this lawful?"}`)
	require.Equal(t, http.StatusOK, refused.Code)
	body := decode(t, refused)
	assert.Equal(t, "very_low", body["confidence"])
	assert.Empty(t, body["relevant_sections"])

	noMatch := f.do(http.MethodPost, "/api/v1/ask", `{"question":"favourite football team"}`)
	require.Equal(t, http.StatusOK, noMatch.Code)
	assert.Equal(t, "very_low", decode(t, noMatch)["confidence"])
}

func TestAskBlankQuestionIsNoMatch(t *testing.T) {
	f := newFixture(t)
	requests := []struct {
		name, method, target, body string
	}{
		{"missing question", http.MethodPost, "/api/v1/ask", `{}`},
		{"empty question", http.MethodPost, "/api/v1/ask", `{"question":""}`},
		{"blank question with llm", http.MethodPost, "/api/v1/ask", `{"question":"   ","use_llm":true}`},
		{"no query parameter", http.MethodGet, "/api/v1/ask", ""},
		{"empty query parameter with llm", http.MethodGet, "/api/v1/ask?q=&use_llm=true", ""},
	}
	for _, tt := range requests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.target, tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Len(t, body, 4)
			assert.NotContains(t, body, "error")
			assert.Equal(t, "very_low", body["confidence"])
			assert.Equal(t, []any{}, body["relevant_sections"])
			assert.NotEmpty(t, body["summary"])
			assert.NotEmpty(t, body["limitations"])
		})
	}
}

func TestAskRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `question=hi`, "request body must be JSON"},
		{"unknown field", `{"question":"consent","extra":1}`, "request body must be JSON"},
		{"too long", `{"question":"` + strings.Repeat("a", maxQuestionLength+1) + `"}`, "at most"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/v1/ask", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode(t, rec)["error"], tt.want)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodDelete, "/api/v1/ask", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatsAndCache(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		rec := f.do(http.MethodGet, "/api/v1/ask?q=consent", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	stats := f.do(http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, stats.Code)
	var snap audit.Snapshot
	require.NoError(t, json.Unmarshal(stats.Body.Bytes(), &snap))
	assert.Equal(t, int64(2), snap.Total)
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(2), snap.ByOutcome["answered"])

	cs := decode(t, f.do(http.MethodGet, "/api/v1/cache/stats", ""))
	assert.EqualValues(t, 1, cs["hits"])
	assert.EqualValues(t, 1, cs["misses"])
	assert.Equal(t, "50.0%", cs["hit_rate"])

	inv := f.do(http.MethodPost, "/api/v1/cache/invalidate", "")
	require.Equal(t, http.StatusOK, inv.Code)
	assert.Equal(t, "invalidated", decode(t, inv)["status"])

	_, ok := f.cache.Get(context.Background(), "consent")
	assert.False(t, ok)
}

type failingCache struct{}

func (failingCache) Stats() (int64, int64)            { return 0, 0 }
func (failingCache) Invalidate(context.Context) error { return errors.New("redis: connection refused") }

func TestCacheInvalidateFailure(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(pipeline.New(f.idx, pipeline.DefaultConfig(), pipeline.WithLogger(logger.Discard())), failingCache{}, nil)
	rec := httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode(t, rec)["error"])
}

func TestDisabledCacheAndStats(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(pipeline.New(f.idx, pipeline.DefaultConfig(), pipeline.WithLogger(logger.Discard())), nil, nil)

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	assert.Equal(t, "disabled", decode(t, rec)["status"])

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	assert.Equal(t, "disabled", decode(t, rec)["status"])

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	f := newFixture(t)

	live := f.do(http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, live.Code)

	ready := f.do(http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, ready.Code)
	body := decode(t, ready)
	assert.Equal(t, "up", body["status"])
	corpusHealth := body["components"].(map[string]any)["corpus"].(map[string]any)
	assert.Contains(t, corpusHealth["message"], "10 documents")
}

func TestHealthChecks(t *testing.T) {
	assert.Equal(t, health.StatusDown, CorpusCheck(nil)(context.Background()).Status)

	ok := PingCheck(pingerFunc(func(context.Context) error { return nil }))(context.Background())
	assert.Equal(t, health.StatusUp, ok.Status)
	assert.NotEmpty(t, ok.Latency)

	cb := resilience.NewCircuitBreaker("llm", resilience.CircuitBreakerConfig{FailureThreshold: 1})
	assert.Equal(t, health.StatusUp, BreakerCheck(cb)(context.Background()).Status)
	_ = cb.Execute(func() error { return errors.New("502") })
	open := BreakerCheck(cb)(context.Background())
	assert.Equal(t, health.StatusDegraded, open.Status)
	assert.Equal(t, "circuit open after 1 consecutive failures", open.Message)

	bad := PingCheck(pingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") }))(context.Background())
	assert.Equal(t, health.StatusDegraded, bad.Status)
	assert.Equal(t, "dial tcp: refused", bad.Message)
}

func TestRequestIDPropagates(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ask?q=consent", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(middleware.RequestIDHeader))
}

type recordingAsker struct {
	opts []pipeline.Options
}

func (a *recordingAsker) Run(_ context.Context, _ string, opts pipeline.Options) response.Response {
	a.opts = append(a.opts, opts)
	return response.Assemble(response.Parts{Kind: response.NoMatch})
}

func TestUseLLMDefault(t *testing.T) {
	asker := &recordingAsker{}
	router := NewRouter(NewHandler(asker, nil, nil, WithDefaultUseLLM(true)), health.NewChecker(time.Second), nil, time.Second)

	for _, tc := range []struct {
		method, target, body string
	}{
		{http.MethodPost, "/api/v1/ask", `{"question":"consent"}`},
		{http.MethodPost, "/api/v1/ask", `{"question":"consent","use_llm":false}`},
		{http.MethodGet, "/api/v1/ask?q=consent", ""},
		{http.MethodGet, "/api/v1/ask?q=consent&use_llm=false", ""},
	} {
		var body io.Reader
		if tc.body != "" {
			body = strings.NewReader(tc.body)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.target, body))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Len(t, asker.opts, 4)
	assert.True(t, asker.opts[0].UseLLM)
	assert.False(t, asker.opts[1].UseLLM)
	assert.True(t, asker.opts[2].UseLLM)
	assert.False(t, asker.opts[3].UseLLM)
}
