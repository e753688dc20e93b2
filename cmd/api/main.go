package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fleetroute/internal/api"
	"fleetroute/internal/buildinfo"
	"fleetroute/internal/config"
	"fleetroute/internal/events"
	"fleetroute/internal/logger"
	"fleetroute/internal/matrix"
	"fleetroute/internal/metrics"
	"fleetroute/internal/opt"
	"fleetroute/internal/planning"
	"fleetroute/internal/roadnet"
	"fleetroute/internal/store"
	"fleetroute/internal/webhooks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info := buildinfo.Info()
	lg.Info("starting", zap.String("version", info["version"]), zap.String("commit", info["commit"]), zap.Any("config", cfg.Redacted()))
	metrics.RegisterDefault()

	if cfg.GraphPath == "" {
		return errors.New("GRAPH_PATH is required")
	}
	g, err := roadnet.LoadFile(cfg.GraphPath)
	if err != nil {
		return err
	}
	ix, err := roadnet.NewIndex(g, roadnet.WithCacheSize(cfg.Matrix.PathCacheSize))
	if err != nil {
		return err
	}
	lg.Info("road network loaded", zap.String("path", cfg.GraphPath), zap.Int("nodes", g.NodeCount()), zap.Int("edges", g.EdgeCount()))
	if err := metrics.RegisterGaugeFunc("roadnet_coordinate_resolutions", "Coordinates snapped to a road node.",
		func() float64 { return float64(ix.Resolutions()) }); err != nil {
		return err
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = pg.Close() }()
		if cfg.DBMigrate {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
			lg.Info("migrations applied")
		}
		st = pg
	} else {
		lg.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemory()
	}

	var broker events.Broker = events.NewMemory()
	if cfg.RedisURL != "" {
		rb, err := events.NewRedisBroker(cfg.RedisURL, lg)
		if err != nil {
			return err
		}
		defer func() { _ = rb.Close() }()
		broker = rb
	}
	var notifier *webhooks.Notifier
	if len(cfg.Webhook.URLs) > 0 {
		notifier = webhooks.NewNotifier(cfg.Webhook.URLs, cfg.Webhook.Secret, cfg.Webhook.MaxAttempts, lg.Named("webhooks"))
		notifier.Start(ctx, 2)
		broker = events.WithSinks(broker, notifier)
	}

	solver := opt.NewSolver(opt.Options{
		LocalSearch:   cfg.Solver.LocalSearch,
		MaxIterations: cfg.Solver.MaxIterations,
		TimeBudget:    cfg.Solver.TimeBudget,
	})
	planner := planning.NewService(st, matrix.NewBuilder(ix, cfg.Matrix.Workers, lg), solver,
		planning.WithEvents(broker),
		planning.WithLogger(lg.Named("planning")),
		planning.WithPaths(ix),
	)
	s, err := api.NewServer(st, planner, broker, cfg, lg.Named("api"))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		lg.Info("API listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		lg.Info("shutting down")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if notifier != nil {
		notifier.Wait()
	}
	return nil
}
