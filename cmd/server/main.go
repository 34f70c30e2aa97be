package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/dgallion1/docstream/internal/api"
	"github.com/dgallion1/docstream/internal/config"
	"github.com/dgallion1/docstream/internal/interstitial"
	"github.com/dgallion1/docstream/internal/pipeline"
	"github.com/dgallion1/docstream/internal/upstream"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("unable to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the fact supply.
	var (
		supply interstitial.Supply = interstitial.NewMemorySupply()
		redis  *interstitial.RedisSupply
	)
	if cfg.RedisURL != "" {
		if redis, err = interstitial.NewRedisSupply(cfg.RedisURL, cfg.RedisFactsKey); err != nil {
			log.Error("unable to connect to redis", "error", err)
			os.Exit(1)
		}
		supply = redis
	}
	if cfg.FactsFile != "" {
		n, err := interstitial.LoadFile(ctx, supply, cfg.FactsFile)
		if err != nil {
			log.Error("unable to load facts", "file", cfg.FactsFile, "error", err)
			os.Exit(1)
		}
		log.Info("facts loaded", "file", cfg.FactsFile, "count", n)
	}
	injector := interstitial.New(supply, nil, log)

	// Initialize clients.
	client := upstream.NewClient(cfg.UpstreamURL, cfg.UpstreamAPIKey, cfg.StreamTimeout, log)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, client, injector, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, client, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		err := httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		client.Close()
		if redis != nil {
			err = multierr.Append(err, redis.Close())
		}
		if err != nil {
			log.Warn("unclean shutdown", "error", err)
		}
	}()

	log.Info("starting docstream", "port", cfg.Port, "upstream", cfg.UpstreamURL, "workers", cfg.WorkerCount)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-stopped
}
