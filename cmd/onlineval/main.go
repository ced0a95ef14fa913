/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main runs the online evaluation service: one consumer loop per
// configured stream feeding the scoring engine, plus an operational HTTP
// listener serving /metrics and /healthz.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tracelens/onlineval/cache"
	"github.com/tracelens/onlineval/config"
	"github.com/tracelens/onlineval/engine"
	"github.com/tracelens/onlineval/engine/pythonrunner"
	"github.com/tracelens/onlineval/metrics"
	"github.com/tracelens/onlineval/provider"
	"github.com/tracelens/onlineval/provider/anthropicprovider"
	"github.com/tracelens/onlineval/provider/geminiprovider"
	"github.com/tracelens/onlineval/provider/genaimetrics"
	"github.com/tracelens/onlineval/provider/openaiprovider"
	"github.com/tracelens/onlineval/rules/registry"
	"github.com/tracelens/onlineval/sinks"
	"github.com/tracelens/onlineval/stream"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}
	streams, err := config.LoadStreams(cfg.StreamsFile)
	if err != nil {
		clog.FatalContextf(ctx, "loading stream definitions: %v", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		clog.FatalContextf(ctx, "parsing redis url: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		clog.FatalContextf(ctx, "connecting to postgres: %v", err)
	}
	defer pool.Close()

	router, err := buildProviders(ctx, cfg)
	if err != nil {
		clog.FatalContextf(ctx, "building providers: %v", err)
	}

	reg := registry.New(cache.NewRedis(rdb), registry.NewPGStore(pool), cfg.RuleCacheTTL)

	engineOpts := []engine.Option{
		engine.WithWorkers(cfg.EngineWorkers),
		engine.WithCallTimeout(cfg.LLMCallTimeout),
		engine.WithBatchTimeout(cfg.BatchTimeout),
		engine.WithUsageRecorder(genaimetrics.New("tracelens.dev/onlineval")),
	}
	if cfg.PythonRunnerURL != "" {
		engineOpts = append(engineOpts, engine.WithPythonRunner(pythonrunner.NewHTTPRunner(cfg.PythonRunnerURL)))
	}
	logSink := sinks.NewPGLogSink(pool)
	eng := engine.New(reg, router, sinks.NewPGScoreSink(pool), logSink, engineOpts...)

	metrics.Init()
	threads := stream.NewPGThreadStore(pool)

	g, gctx := errgroup.WithContext(ctx)
	for _, sc := range streams {
		consumer, err := stream.NewConsumer(sc, rdb, eng, stream.WithThreadStore(threads))
		if err != nil {
			clog.FatalContextf(ctx, "building consumer for %s: %v", sc.StreamName, err)
		}
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error { return serveOps(gctx, cfg.HTTPAddr, rdb, pool, logSink) })

	clog.InfoContextf(ctx, "online evaluation service started with %d streams", len(streams))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		clog.FatalContextf(ctx, "service failed: %v", err)
	}
	clog.InfoContext(ctx, "service stopped")
}

func buildProviders(ctx context.Context, cfg *config.Config) (provider.Client, error) {
	router := provider.NewRouter()
	if cfg.OpenAIAPIKey != "" {
		c, err := openaiprovider.New(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		router.Register("gpt-", c)
		router.Register("o1-", c)
		router.Register("o3-", c)
	}
	if cfg.AnthropicAPIKey != "" {
		c, err := anthropicprovider.New(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		router.Register("claude-", c)
	}
	if cfg.GeminiAPIKey != "" {
		c, err := geminiprovider.New(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		router.Register("gemini-", c)
	}
	return router, nil
}

// serveOps exposes Prometheus metrics, a health probe checking both backing
// stores, and the per-rule evaluation log read API.
func serveOps(ctx context.Context, addr string, rdb *redis.Client, pool *pgxpool.Pool, logs sinks.LogSink) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/v1/evaluation-logs", sinks.LogHandler(logs))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		probeCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(probeCtx).Err(); err != nil {
			http.Error(w, "redis: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err := pool.Ping(probeCtx); err != nil {
			http.Error(w, "postgres: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
