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

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"perflog/collector"
	"perflog/config"
	"perflog/logger"
	"perflog/server"
	"perflog/shipper"
	"perflog/storage"
)

func main() {
	ship := flag.Bool("ship", false, "export the metric store, upload it over SFTP and exit")
	simulate := flag.Int("simulate", 0, "number of workers logging synthetic events before serving")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error setting up logger:", err)
		os.Exit(1)
	}
	defer logger.Flush(log.Logger)

	if err := run(cfg, log, *ship, *simulate); err != nil {
		log.Logger.Error("perflog failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger, ship bool, simulate int) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("open metric store: %w", err)
	}

	col := collector.New(store, log.Logger)
	if cfg.Replay {
		if err := col.Replay(ctx); err != nil {
			return multierr.Append(fmt.Errorf("replay metric store: %w", err), col.Close())
		}
	}

	if ship {
		return runShip(ctx, cfg, col, log.Logger)
	}

	if simulate > 0 {
		simulateLoad(ctx, col, simulate, log.Logger)
	}

	srv := server.New(col, log.Logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return multierr.Append(err, col.Close())
	case <-ctx.Done():
	}

	log.Logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(shutCtx)
	return multierr.Append(err, col.Close())
}

func runShip(ctx context.Context, cfg *config.Config, col *collector.Collector, log *zap.Logger) error {
	events, err := col.Export(ctx)
	if err != nil {
		return multierr.Append(err, col.Close())
	}
	sh, err := shipper.New(cfg.Shipper, log)
	if err != nil {
		return multierr.Append(err, col.Close())
	}
	return multierr.Append(sh.Ship(events), col.Close())
}

func openStore(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	switch cfg.StoreBackend {
	case "jsonl":
		return storage.NewJSONL(cfg.JSONLPath, log)
	default:
		return storage.NewSQLite(cfg.DBPath, log)
	}
}
