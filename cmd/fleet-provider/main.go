// Command fleet-provider wires the provider together and drives the control
// loop. The cloud capabilities are bound to the in-memory test doubles here;
// a deployment links in its transport binding instead.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	fleet "github.com/fleetworks/fleet-provider"
	"github.com/fleetworks/fleet-provider/cloud"
	"github.com/fleetworks/fleet-provider/config"
	"github.com/fleetworks/fleet-provider/credentials"
	"github.com/fleetworks/fleet-provider/metrics"
	"github.com/fleetworks/fleet-provider/provider"
	"github.com/fleetworks/fleet-provider/runner"
	"github.com/fleetworks/fleet-provider/store"
	"github.com/fleetworks/fleet-provider/store/memory"
	"github.com/fleetworks/fleet-provider/store/postgres"
	"github.com/fleetworks/fleet-provider/store/sqlite"
)

// logReporter sends error-channel reports to the structured log.
type logReporter struct {
	logger zerolog.Logger
}

func (r *logReporter) ReportError(ctx context.Context, report fleet.ErrorReport) {
	event := r.logger.Warn().
		Str("worker_type", string(report.WorkerType)).
		Str("kind", string(report.Kind)).
		Str("title", report.Title)
	for key, value := range report.Extra {
		event = event.Str(key, value)
	}
	event.Msg(report.Description)
}

func main() {
	configPath := flag.String("config", "fleet-provider.yaml", "path to the configuration file")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(*configPath, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("provider exited")
	}
}

func run(configPath string, logger zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	workerTypes, workers, cleanup, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	collector := metrics.NewCollector(cfg.ProviderID)
	reporter := metrics.NewReporter(&logReporter{logger: logger}, collector)

	if cfg.MetricsAddr != "" {
		server := metrics.NewServer(cfg.MetricsAddr)
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), runner.DefaultTickInterval)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("metrics server shutdown failed")
			}
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server started")
	}

	cloudProvider, err := provider.New(provider.Config{
		Compute:     cloud.NewMockCompute(),
		IAM:         cloud.NewMockIAM(),
		Operations:  cloud.NewMockOperations(),
		WorkerTypes: workerTypes,
		Workers:     workers,
		Verifier:    credentials.NewMockTokenVerifier(),
		Reporter:    reporter,
		Settings: provider.Settings{
			Project:             cfg.Project,
			ProvisionerID:       cfg.ProvisionerID,
			ProviderID:          cfg.ProviderID,
			RootURL:             cfg.RootURL,
			CredentialURL:       cfg.CredentialURL,
			ServiceAccountEmail: cfg.ServiceAccountEmail,
			Identity:            cfg.Identity,
			RoleName:            cfg.RoleName,
			InstancePermissions: cfg.InstancePermissions,
		},
		Logger: &logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	if err := cloudProvider.Initiate(ctx); err != nil {
		return fmt.Errorf("failed to initiate provider: %w", err)
	}

	loop, err := runner.New(runner.Config{
		Provider:     cloudProvider,
		WorkerTypes:  workerTypes,
		TickInterval: cfg.TickInterval.AsDuration(),
		Collector:    collector,
		Logger:       &logger,
	})
	if err != nil {
		return err
	}

	logger.Info().
		Str("provider", cfg.ProviderID).
		Str("adapter", cfg.Database.Adapter).
		Msg("control loop starting")

	return loop.Run(ctx)
}

func openStores(cfg *config.Config) (store.WorkerTypeStore, store.WorkerStore, func(), error) {
	switch cfg.Database.Adapter {
	case "memory":
		return memory.NewWorkerTypes(), memory.NewWorkers(), func() {}, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
		return postgres.NewWorkerTypes(db), postgres.NewWorkers(db), func() { db.Close() }, nil

	case "sqlite":
		db, err := sql.Open("sqlite3", cfg.Database.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// SQLite serializes writers; a single connection avoids busy errors.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(sqlite.Schema()); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
		}
		return sqlite.NewWorkerTypes(db), sqlite.NewWorkers(db), func() { db.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported database adapter %q", cfg.Database.Adapter)
	}
}
