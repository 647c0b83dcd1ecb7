package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/audit"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/cache"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/pipeline"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/server"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/config"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/health"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/kafka"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/metrics"
	pkgredis "github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/redis"
)

func newServeCmd(g *globalFlags, stderr io.Writer) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the navigator over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*g, 0)
			if err != nil {
				return startupError(err, "loading config")
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			setupLogging(cfg, stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting navigator service", "port", cfg.Server.Port, "version", version)

	idx, err := buildIndex(cfg)
	if err != nil {
		return startupError(err, "loading corpus")
	}

	m := metrics.New(prometheus.NewRegistry())
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port, m)
		if err != nil {
			return &exitErr{code: 1, msg: err.Error()}
		}
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker(0)
	checker.Register("corpus", server.CorpusCheck(idx))

	var redisClient *pkgredis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, using in-process cache", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer redisClient.Close()
			checker.Register("redis", server.PingCheck(redisClient))
		}
	}

	rewriter, breaker := newRewriter(cfg, m)
	if breaker != nil {
		checker.Register("llm", server.BreakerCheck(breaker))
	}
	navOpts := []pipeline.Option{
		pipeline.WithMetrics(m),
		pipeline.WithTracing(cfg.Tracing.Enabled),
		pipeline.WithRewriter(rewriter),
	}

	var responseCache *cache.Cache[pipeline.Deterministic]
	if cfg.Cache.Enabled {
		var backend cache.Backend
		if redisClient != nil {
			backend = cache.NewRedisBackend(redisClient, cfg.Redis.CacheTTL)
		} else {
			mem, err := cache.NewMemoryBackend(cfg.Cache.MaxEntries)
			if err != nil {
				return &exitErr{code: 1, msg: "creating cache: " + err.Error()}
			}
			backend = mem
		}
		responseCache = cache.New[pipeline.Deterministic](backend, idx.Fingerprint(), m)
		navOpts = append(navOpts, pipeline.WithCache(responseCache))
		slog.Info("response cache enabled", "backend", backend.Name())
	}

	var publisher audit.Publisher = audit.LogPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		publisher = producer
		slog.Info("decision audit publishing to kafka", "topic", cfg.Kafka.AuditTopic)
	}
	collector := audit.NewCollector(publisher, audit.Options{BufferSize: cfg.Kafka.BufferSize, Metrics: m})
	collector.Start(ctx)
	defer collector.Close()
	navOpts = append(navOpts, pipeline.WithAudit(collector))

	nav := pipeline.New(idx, pipelineConfig(cfg), navOpts...)

	var cacheAdmin server.CacheAdmin
	if responseCache != nil {
		cacheAdmin = responseCache
	}
	h := server.NewHandler(nav, cacheAdmin, collector, server.WithDefaultUseLLM(cfg.LLM.Enabled))
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(h, checker, m, cfg.Server.RequestTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("navigator service listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return &exitErr{code: 1, msg: "server error: " + err.Error()}
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}

	slog.Info("navigator service stopped")
	return nil
}
