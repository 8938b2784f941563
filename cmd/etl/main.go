package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/crash-injury-etl/internal/adapter/arcgis"
	"github.com/couchcryptid/crash-injury-etl/internal/adapter/boundary"
	"github.com/couchcryptid/crash-injury-etl/internal/adapter/cursorfile"
	"github.com/couchcryptid/crash-injury-etl/internal/adapter/gitmirror"
	kafkaadapter "github.com/couchcryptid/crash-injury-etl/internal/adapter/kafka"
	"github.com/couchcryptid/crash-injury-etl/internal/adapter/parquetfile"
	"github.com/couchcryptid/crash-injury-etl/internal/config"
	"github.com/couchcryptid/crash-injury-etl/internal/observability"
	"github.com/couchcryptid/crash-injury-etl/internal/pipeline"
	"github.com/google/uuid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg).With("run_id", uuid.NewString())
	metrics := observability.NewMetrics()

	locator, err := boundary.Load(cfg.BoundaryDir, logger)
	if err != nil {
		logger.Error("failed to load boundary layers", "error", err, "dir", cfg.BoundaryDir)
		os.Exit(1)
	}

	client := arcgis.NewClient(cfg.HTTPTimeout, logger)
	stages := pipeline.Stages{
		Injuries:   arcgis.NewInjurySource(client, cfg.CrashPointsURL, cfg.CrashDetailsURL, logger),
		Fatalities: arcgis.NewFatalitySource(client, cfg.ArcGISPortalURL, cfg.ArcGISClientID, cfg.ArcGISClientSecret, cfg.ArcGISFeatureLayerID, logger),
		Cursor:     cursorfile.NewStore(cfg.CursorPath),
		Locator:    locator,
		Snapshot:   parquetfile.NewWriter(cfg.OutputPath, logger),
		Mirror: gitmirror.New(
			cfg.MirrorRepoURL,
			cfg.MirrorBranch,
			cfg.MirrorToken,
			cfg.MirrorTargetPath,
			cfg.MirrorAuthorName,
			cfg.MirrorAuthorEmail,
			logger,
		),
	}

	// Record sink is feature-flagged via KAFKA_BROKERS. Closed explicitly
	// below: os.Exit on a failed run would skip a deferred close.
	var sink *kafkaadapter.Writer
	if cfg.KafkaEnabled() {
		sink = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		stages.Sink = sink
		logger.Info("kafka record sink enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka record sink disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(stages, logger, metrics, cfg.ScheduledRun)
	result, runErr := p.Run(ctx)

	if sink != nil {
		if err := sink.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	if cfg.PushgatewayURL != "" {
		if err := observability.Push(cfg.PushgatewayURL); err != nil {
			logger.Error("metrics push failed", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("run failed", "error", runErr)
		os.Exit(1)
	}

	logger.Info("run succeeded",
		"injuries", result.InjuryCount,
		"fatalities", result.FatalityCount,
		"carried", result.PreviousCount,
		"rows", result.MergedCount,
		"unplaced", result.UnplacedCount,
		"cursor", result.Cursor,
		"snapshot", result.SnapshotPath,
	)
}
