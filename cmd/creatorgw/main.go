// Command creatorgw runs the creator intelligence gateway: an HTTP
// service that fronts the upstream social-analytics provider with query
// sanitization, response normalization, ranked search and a conflict-safe
// profile cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/creatorlens/creator-gateway/internal/cache"
	"github.com/creatorlens/creator-gateway/internal/config"
	"github.com/creatorlens/creator-gateway/internal/gateway"
	"github.com/creatorlens/creator-gateway/internal/provider"
	"github.com/creatorlens/creator-gateway/internal/quota"
	"github.com/creatorlens/creator-gateway/internal/utils"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("CREATORGW_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("gateway exited")
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func run(cfg *config.Config) error {
	repo, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return fmt.Errorf("opening profile cache: %w", err)
	}
	defer repo.Close()

	client := provider.NewClient(&cfg.Provider)
	quotaSvc := quota.NewMemoryService(map[string]int{
		quota.FeatureLookup: cfg.Quota.LookupLimit,
		quota.FeatureSearch: cfg.Quota.SearchLimit,
		quota.FeatureReport: cfg.Quota.ReportLimit,
	})

	gw := gateway.New(client, repo, quotaSvc, cfg.AllowedPlatforms())

	mux := http.NewServeMux()
	gw.Routes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("provider", cfg.Provider.BaseURL).
			Str("api_key", utils.MaskKey(cfg.Provider.APIKey)).
			Str("cache", cfg.Cache.Path).
			Msg("creator gateway listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
