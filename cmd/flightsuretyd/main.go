package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"flightsurety/cmd/internal/passphrase"
	"flightsurety/config"
	"flightsurety/core"
	"flightsurety/observability/logging"
	telemetry "flightsurety/observability/otel"
	"flightsurety/rpc"
	"flightsurety/services/oracled"
	"flightsurety/storage"
	"flightsurety/storage/eventlog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	exportPath := flag.String("export-events", "", "Write the event archive to a parquet file and exit")
	flag.Parse()

	passSource := passphrase.NewSource(config.PassphraseEnv)
	cfg, err := config.Load(*configFile, config.WithPassphraseSource(passSource.Get))
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	env := strings.TrimSpace(os.Getenv("FLIGHTSURETY_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.SetupWithOptions("flightsuretyd", env, logging.Options{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *exportPath != "" {
		n, err := exportEvents(ctx, cfg.ArchivePath, *exportPath)
		if err != nil {
			logger.Error("export events", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("events exported", slog.String("path", *exportPath), slog.Int("rows", n))
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("flightsuretyd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "flightsuretyd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []core.Option{core.WithLogger(logger)}
	var archive *eventlog.Store
	if path := strings.TrimSpace(cfg.ArchivePath); path != "" {
		if err := ensureDir(path); err != nil {
			return err
		}
		archive, err = eventlog.Open(path)
		if err != nil {
			return err
		}
		defer archive.Close()
		opts = append(opts, core.WithArchive(archive))
	}

	owner, err := cfg.OwnerAddress()
	if err != nil {
		return err
	}
	params, err := cfg.Params.Core()
	if err != nil {
		return err
	}
	node, err := core.NewNode(db, owner, params, opts...)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	defer node.Close()
	logger.Info("node ready",
		slog.String("owner", cfg.Owner),
		slog.String("params", cfg.Params.Summary()))

	allocs, err := cfg.Allocations()
	if err != nil {
		return err
	}
	if len(allocs) > 0 {
		applied, err := node.ApplyGenesis(ctx, allocs)
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		if applied {
			logger.Info("genesis allocations applied", slog.Int("accounts", len(allocs)))
		}
	}

	if path := strings.TrimSpace(cfg.AgentsFile); path != "" {
		agentsCfg, err := oracled.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("load agents: %w", err)
		}
		fleet, err := oracled.NewFleet(node, agentsCfg, oracled.WithLogger(logger.With(slog.String("component", "oracled"))))
		if err != nil {
			return err
		}
		if err := fleet.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := fleet.Stop(); err != nil {
				logger.Warn("stop oracle fleet", slog.Any("error", err))
			}
		}()
	}

	var events rpc.EventLog
	if archive != nil {
		events = archive
	}
	server := rpc.NewServer(node, events, rpc.ServerConfig{
		RateLimit:    cfg.RPC.RateLimit,
		Burst:        cfg.RPC.Burst,
		Faucet:       cfg.RPC.Faucet,
		FaucetSecret: cfg.RPC.FaucetSecret,
		TokenIssuer:  cfg.RPC.TokenIssuer,
	}, logger)

	logger.Info("query api configured",
		slog.String("listen", cfg.ListenAddress),
		slog.Bool("faucet", cfg.RPC.Faucet),
		logging.MaskField("faucet_secret", cfg.RPC.FaucetSecret))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(cfg.ListenAddress)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func exportEvents(ctx context.Context, archivePath, out string) (int, error) {
	if strings.TrimSpace(archivePath) == "" {
		return 0, fmt.Errorf("ArchivePath is not configured")
	}
	archive, err := eventlog.Open(archivePath)
	if err != nil {
		return 0, err
	}
	defer archive.Close()
	if err := ensureDir(out); err != nil {
		return 0, err
	}
	return archive.ExportParquet(ctx, out, eventlog.Filter{})
}

// openDatabase opens LevelDB under dir, or an in-memory store when dir is
// empty.
func openDatabase(dir string) (storage.Database, error) {
	if strings.TrimSpace(dir) == "" {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(dir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
