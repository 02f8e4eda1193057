package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/config"
	"github.com/efreitasn/stocksim/internal/domain"
	"github.com/efreitasn/stocksim/internal/engine"
	"github.com/efreitasn/stocksim/internal/handler"
	"github.com/efreitasn/stocksim/internal/issuance"
	"github.com/efreitasn/stocksim/internal/logging"
	"github.com/efreitasn/stocksim/internal/service"
	"github.com/efreitasn/stocksim/internal/sim"
	"github.com/efreitasn/stocksim/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("stocksim failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	snapshots, err := store.OpenSnapshotStore(cfg.SnapshotPath)
	if err != nil {
		return err
	}
	defer snapshots.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snap, err := snapshots.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrNoData):
		logger.Info("no snapshot found, bootstrapping market",
			slog.Int("agents", cfg.NumAgents),
			slog.Int("companies", cfg.NumCompanies),
		)
		snap, err = sim.Bootstrap(cfg.NumAgents, cfg.NumCompanies, uint64(cfg.Seed))
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("load snapshot: %w", err)
	default:
		logger.Info("snapshot loaded",
			slog.Int("agents", len(snap.Agents)),
			slog.Int("companies", len(snap.Companies)),
		)
	}

	// Engine.
	txlog := store.NewTransactionLog(store.DefaultRetention)
	market, err := engine.Restore(snap, uint64(cfg.OfferLifetime), txlog, logger)
	if err != nil {
		return err
	}
	lots := issuance.New(market.Ledger(), decimal.NewFromFloat(cfg.MinStrikePrice), logger)

	// Driver.
	deviation := decimal.NewFromFloat(cfg.PriceDeviation)
	seed := uint64(cfg.Seed)
	simulator := sim.New(sim.Config{
		TickInterval:     cfg.TickInterval,
		MaxTicks:         uint64(cfg.MaxTicks),
		RetryProbability: cfg.RetryProbability,
		RetryDecay:       decimal.NewFromFloat(cfg.RetryDecay),
		RetryQuantity:    uint64(cfg.RetryQuantity),
		Deviation:        deviation,
		IssuanceInterval: uint64(cfg.IssuanceInterval),
		LotsPerWindow:    uint64(cfg.LotsPerWindow),
		LotSize:          uint64(cfg.LotSize),
		OrdersPerTick:    cfg.OrdersPerTick,
		Seed:             seed,
	},
		market,
		lots,
		sim.NewRandomPolicy(seed, deviation, uint64(cfg.RetryQuantity)*5),
		engine.NewProbabilisticConcession(cfg.ConcessionProbability, seed),
		logger,
	)

	// Router.
	svc := service.NewMarketService(simulator, txlog, deviation)
	router := handler.NewRouter(svc, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	simDone := make(chan error, 1)
	go func() { simDone <- simulator.Run(ctx) }()

	// Wait for SIGINT/SIGTERM, a server failure, or the end of the run.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server error", slog.String("error", err.Error()))
		runErr = err
	case err := <-simDone:
		if err != nil {
			logger.Error("simulation error", slog.String("error", err.Error()))
			runErr = err
		}
		simDone <- nil
	}

	// Graceful shutdown: stop HTTP server, stop the driver, settle and save.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()
	<-simDone

	if err := snapshots.Save(shutdownCtx, simulator.Settle()); err != nil {
		return errors.Join(runErr, fmt.Errorf("save snapshot: %w", err))
	}
	logger.Info("snapshot saved", slog.String("path", cfg.SnapshotPath))
	logger.Info("server stopped")
	return runErr
}
