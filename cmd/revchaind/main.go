package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"revchain/config"
	"revchain/core"
	"revchain/core/genesis"
	"revchain/observability/logging"
	telemetry "revchain/observability/otel"
	"revchain/rpc"
	"revchain/services/archive"
	"revchain/services/health"
	"revchain/storage"
)

const (
	genesisPathEnv = "REVCHAIN_GENESIS"
	serviceName    = "revchaind"
)

type envLookupFunc func(string) (string, bool)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to the genesis YAML (overrides REVCHAIN_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv("REVCHAIN_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger, logCloser := logging.SetupWithOptions(serviceName, env, logging.Options{
		Level: logging.ParseLevel(cfg.Log.Level),
		File:  logFileConfig(cfg.Log),
	})
	defer logCloser.Close()

	genesisPath, err := resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv)
	if err != nil {
		logger.Error("resolve genesis path", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, genesisPath, env, logger, nil); err != nil {
		logger.Error("revchaind stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("revchaind stopped")
}

// listeners lets tests bind ephemeral ports. A nil value listens on the
// configured addresses.
type listeners struct {
	http   net.Listener
	health net.Listener
}

func run(ctx context.Context, cfg *config.Config, genesisPath, env string, logger *slog.Logger, lis *listeners) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	spec, err := genesis.LoadGenesisSpec(genesisPath)
	if err != nil {
		return err
	}

	if cfg.Storage.Backend != "memory" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("prepare data directory: %w", err)
		}
	}
	db, err := storage.Open(cfg.Storage.Backend, cfg.StoragePath())
	if err != nil {
		return fmt.Errorf("open ledger storage: %w", err)
	}
	defer db.Close()

	ledger, err := core.NewLedgerFromGenesis(ctx, db, spec, logger)
	if err != nil {
		return fmt.Errorf("bootstrap ledger: %w", err)
	}

	var store *archive.Store
	if cfg.Archive.Enabled {
		store, err = archive.Open(cfg.Archive.Driver, cfg.Archive.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
		ledger.AddSink(store)
		logger.Info("event archive enabled", slog.String("driver", cfg.Archive.Driver), logging.MaskField("dsn", cfg.Archive.DSN))
	}

	opts := rpc.Options{Auth: cfg.Auth, RateLimit: cfg.RateLimit, Logger: logger}
	if store != nil {
		opts.Archive = store
	}
	api := rpc.NewServer(ledger, opts)
	healthSrv := health.NewServer(ledger, logger)

	if lis == nil {
		lis = &listeners{}
	}
	if lis.http == nil {
		if lis.http, err = net.Listen("tcp", cfg.ListenAddress); err != nil {
			return fmt.Errorf("listen %s: %w", cfg.ListenAddress, err)
		}
	}
	if lis.health == nil && strings.TrimSpace(cfg.Health.ListenAddress) != "" {
		if lis.health, err = net.Listen("tcp", cfg.Health.ListenAddress); err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Health.ListenAddress, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return api.Serve(gctx, lis.http) })
	if lis.health != nil {
		g.Go(func() error { return healthSrv.Serve(lis.health) })
		g.Go(func() error {
			healthSrv.Watch(gctx, 5*time.Second)
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			healthSrv.Stop(stopCtx)
			return nil
		})
	}
	if cfg.Rollover.Enabled {
		g.Go(func() error {
			ledger.RunRollover(gctx, cfg.Rollover.Interval.Duration)
			return nil
		})
	}
	logger.Info("revchaind started",
		slog.String("listen", lis.http.Addr().String()),
		slog.String("storage", cfg.Storage.Backend),
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func logFileConfig(cfg config.LogConfig) *logging.FileConfig {
	if strings.TrimSpace(cfg.File) == "" {
		return nil
	}
	return &logging.FileConfig{
		Path:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

func resolveGenesisPath(cliPath, cfgPath string, lookup envLookupFunc) (string, error) {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed, nil
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed, nil
			}
		}
	}
	if trimmed := strings.TrimSpace(cfgPath); trimmed != "" {
		return trimmed, nil
	}
	return "", fmt.Errorf("no genesis file provided; supply one via --genesis, %s, or config GenesisFile", genesisPathEnv)
}
