package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"crowdcount/internal/adapters/geocode"
	server "crowdcount/internal/adapters/http_server"
	"crowdcount/internal/adapters/llm"
	"crowdcount/internal/adapters/lrucache"
	"crowdcount/internal/adapters/observability"
	redisad "crowdcount/internal/adapters/redis"
	"crowdcount/internal/app"
	"crowdcount/internal/domain"
	"crowdcount/internal/estimation"
	"crowdcount/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	if ms := observability.Serve(cfg.MetricsAddr); ms != nil {
		defer ms.Close()
	}

	tuning, err := estimation.LoadTuning(cfg.TuningFile)
	if err != nil {
		log.Error().Err(err).Msg("tuning file ignored; using defaults")
	}
	tuning = tuning.WithBandMode(cfg.BandMode)

	// the gateway is built once and shared by every request
	gw, err := llm.FromConfig(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("LLM gateway unavailable; estimates use the heuristic fallback")
		gw = nil
	}
	if gw != nil {
		log.Info().Str("gateway", gw.Name()).Dur("timeout", cfg.LLMTimeout).Msg("LLM gateway ready")
	}
	est := app.NewEstimateService(gw, tuning, cfg.LLMTimeout)

	var geo *app.GeocodeService
	if cfg.GeocodeKey != "" {
		client, err := geocode.New(cfg.GeocodeBase, cfg.GeocodeKey, cfg.GeocodeRPS)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize geocoding client")
		}
		geo = app.NewGeocodeService(client, newCache(ctx, cfg), cfg.CacheTTL)
	}

	// http
	srv := server.New(server.Options{AllowedOrigins: cfg.CORSOrigins, RequestTimeout: cfg.RequestTimeout()})
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Estimates: est, Geocodes: geo, Strict: cfg.InputMode == "strict"})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Str("input_mode", cfg.InputMode).Str("band_mode", cfg.BandMode).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

// newCache prefers Redis when configured and reachable, else an in-process LRU.
func newCache(ctx context.Context, cfg shared.Config) domain.Cache {
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err := rc.Ping(pctx)
		if err == nil {
			log.Info().Str("addr", cfg.RedisAddr).Msg("geocode cache: redis")
			return rc
		}
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; falling back to in-process cache")
		_ = rc.Close()
	}
	log.Info().Int("size", cfg.CacheSize).Msg("geocode cache: lru")
	return lrucache.New(cfg.CacheSize, cfg.CacheTTL)
}
