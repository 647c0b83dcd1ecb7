package server

import (
	"net/http"
	"time"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/health"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/metrics"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/middleware"
)

// NewRouter wires the routes and the middleware chain.
//
//	POST /api/v1/ask               JSON {"question", "use_llm"}
//	GET  /api/v1/ask?q=&use_llm=   same, from the query string
//	GET  /api/v1/stats             decision counts since start
//	GET  /api/v1/cache/stats       cache hit rate
//	POST /api/v1/cache/invalidate  drop cached answers
//	GET  /health/live, /health/ready
//	GET  /metrics                  only when m is non-nil
//
// Middleware, outermost first: RequestID → CORS → Metrics → Timeout → mux.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/ask", h.Ask)
	mux.HandleFunc("GET /api/v1/ask", h.AskQuery)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(requestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)
	return chain
}
