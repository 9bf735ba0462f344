package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mirrorwatch/mirrorwatch/internal/config"
	"github.com/mirrorwatch/mirrorwatch/internal/fetch"
	"github.com/mirrorwatch/mirrorwatch/internal/httpapi"
	"github.com/mirrorwatch/mirrorwatch/internal/logging"
	"github.com/mirrorwatch/mirrorwatch/internal/probe"
	"github.com/mirrorwatch/mirrorwatch/internal/registry"
	"github.com/mirrorwatch/mirrorwatch/internal/repo"
	"github.com/mirrorwatch/mirrorwatch/internal/repo/memory"
	"github.com/mirrorwatch/mirrorwatch/internal/repo/postgres"
	"github.com/mirrorwatch/mirrorwatch/internal/scheduler"
	"github.com/mirrorwatch/mirrorwatch/internal/scoring"
	"github.com/mirrorwatch/mirrorwatch/internal/upstream"
)

func main() {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hosts, err := config.LoadHosts(cfg.HostsFile)
	if err != nil {
		logger.Fatal("hosts_file_error", zap.String("path", cfg.HostsFile), zap.Error(err))
	}

	var store repo.Store
	if cfg.DatabaseURL == "" {
		logger.Info("store_memory")
		store = memory.New()
	} else {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("store_postgres_error", zap.Error(err))
		}
		defer pg.Close()
		logger.Info("store_postgres")
		store = pg
	}

	client := fetch.New(cfg.ProbeTimeout, cfg.ContactURL)

	oracle, err := upstream.Open(cfg.GitScratchDir, cfg.UpstreamGitURL, cfg.UpstreamGitBranch, logger)
	if err != nil {
		logger.Fatal("oracle_open_error", zap.Error(err))
	}
	if err := oracle.Refresh(ctx); err != nil {
		// versions classify as Unknown until the first good refresh
		logger.Warn("oracle_initial_refresh_error", zap.Error(err))
	}

	reconciler := &registry.Reconciler{
		Client:            client,
		Instances:         store,
		Logger:            logger,
		URL:               cfg.RegistryURL,
		Static:            hosts,
		AdditionalCountry: cfg.AdditionalHostCountry,
	}
	if sum, err := reconciler.Reconcile(ctx); err != nil {
		logger.Warn("initial_reconcile_error", zap.Error(err))
	} else {
		logger.Info("initial_reconcile",
			zap.Int("added", sum.Added),
			zap.Int("retained", sum.Retained),
			zap.Int("disabled", sum.Disabled))
	}

	prober := &probe.Prober{
		Client: client,
		Oracle: oracle,
		Logger: logger,
		Cfg: probe.Config{
			ProfilePath:     cfg.ProfilePath,
			RSSPath:         cfg.RSSPath,
			AboutPath:       cfg.AboutPath,
			ProfileName:     cfg.ProfileName,
			ProfileMinPosts: cfg.ProfileMinPosts,
			RSSContent:      regexp.MustCompile("(?i)" + cfg.RSSContent),
		},
	}

	if cfg.HealthChecksDisabled {
		// kill switch: serve the API from stored state, touch no host
		logger.Warn("health_checks_disabled")
	} else {
		go (&scheduler.ProbeLoop{
			Logger:      logger,
			Instances:   store,
			Results:     store,
			Errors:      store,
			Prober:      prober,
			Interval:    cfg.ProbeInterval,
			Deadline:    cfg.TickDeadline,
			Concurrency: cfg.ProbeConcurrency,
			AutoMute:    cfg.AutoMute,
		}).Run(ctx)
		go (&scheduler.RegistryLoop{
			Logger:     logger,
			Reconciler: reconciler,
			Interval:   cfg.RegistryRefreshInterval,
		}).Run(ctx)
		go (&scheduler.OracleLoop{
			Logger:   logger,
			Oracle:   oracle,
			Interval: cfg.UpstreamRefreshInterval,
		}).Run(ctx)
		go (&scheduler.StatsLoop{
			Logger:    logger,
			Client:    client,
			Instances: store,
			Stats:     store,
			Interval:  cfg.StatsInterval,
			Path:      cfg.StatsPath,
			Overrides: hosts,
		}).Run(ctx)
		go (&scheduler.CleanupLoop{
			Logger:     logger,
			Instances:  store,
			Results:    store,
			Errors:     store,
			Interval:   cfg.CleanupInterval,
			KeepErrors: cfg.ErrorRetentionPerHost,
		}).Run(ctx)
	}

	api := &httpapi.Server{
		Logger:            logger,
		Store:             store,
		Engine:            &scoring.Engine{Instances: store, Results: store},
		Oracle:            oracle,
		UpstreamGitURL:    cfg.UpstreamGitURL,
		UpstreamGitBranch: cfg.UpstreamGitBranch,
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("api_listen", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("api_serve_error", zap.Error(err))
	}
}
