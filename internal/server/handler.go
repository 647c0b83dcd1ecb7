// Package server exposes the navigator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/audit"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/pipeline"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/response"
	apperrors "github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/errors"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/logger"
)

const (
	maxBodyBytes      = 64 << 10
	maxQuestionLength = 2000
)

// Asker answers one question. *pipeline.Navigator implements it.
type Asker interface {
	Run(ctx context.Context, question string, opts pipeline.Options) response.Response
}

// CacheAdmin is the cache surface the API exposes.
type CacheAdmin interface {
	Stats() (hits, misses int64)
	Invalidate(ctx context.Context) error
}

// StatsSource reports aggregate decision counts.
type StatsSource interface {
	Stats() audit.Snapshot
}

type Handler struct {
	asker         Asker
	cache         CacheAdmin
	stats         StatsSource
	defaultUseLLM bool
	logger        *slog.Logger
}

type HandlerOption func(*Handler)

// WithDefaultUseLLM sets use_llm for requests that do not specify it.
func WithDefaultUseLLM(b bool) HandlerOption {
	return func(h *Handler) { h.defaultUseLLM = b }
}

// NewHandler builds the API handler. cache and stats may be nil.
func NewHandler(asker Asker, cache CacheAdmin, stats StatsSource, opts ...HandlerOption) *Handler {
	h := &Handler{
		asker:  asker,
		cache:  cache,
		stats:  stats,
		logger: logger.WithComponent("api"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

type askRequest struct {
	Question string `json:"question"`
	UseLLM   *bool  `json:"use_llm"`
}

// Ask handles POST /api/v1/ask with a JSON body.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "request body must be JSON: %v", err))
		return
	}
	h.answer(w, r, req)
}

// AskQuery handles GET /api/v1/ask?q=...&use_llm=true.
func (h *Handler) AskQuery(w http.ResponseWriter, r *http.Request) {
	req := askRequest{Question: r.URL.Query().Get("q")}
	if v := r.URL.Query().Get("use_llm"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "use_llm must be a boolean"))
			return
		}
		req.UseLLM = &b
	}
	h.answer(w, r, req)
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request, req askRequest) {
	if err := validateQuestion(req.Question); err != nil {
		h.writeError(w, err)
		return
	}
	useLLM := h.defaultUseLLM
	if req.UseLLM != nil {
		useLLM = *req.UseLLM
	}
	resp := h.asker.Run(r.Context(), req.Question, pipeline.Options{UseLLM: useLLM})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := response.Encode(w, resp); err != nil {
		logger.FromContext(r.Context()).Error("failed to write response", "error", err)
	}
}

func validateQuestion(q string) error {
	switch {
	case !utf8.ValidString(q):
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "question must be valid UTF-8")
	case utf8.RuneCountInString(q) > maxQuestionLength:
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "question must be at most %d characters", maxQuestionLength)
	}
	return nil
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.stats.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, fmt.Errorf("%w: cache invalidation failed", apperrors.ErrInternal))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := "internal error"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	} else if status < 500 {
		msg = err.Error()
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
