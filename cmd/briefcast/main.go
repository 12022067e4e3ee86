package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briefcast-io/briefcast/internal/aggregation"
	"github.com/briefcast-io/briefcast/internal/config"
	"github.com/briefcast-io/briefcast/internal/core/storage/postgres"
	"github.com/briefcast-io/briefcast/internal/core/window"
	"github.com/briefcast-io/briefcast/internal/delivery"
	"github.com/briefcast-io/briefcast/internal/ingestion"
	"github.com/briefcast-io/briefcast/internal/migrations"
	"github.com/briefcast-io/briefcast/internal/pipeline"
	"github.com/briefcast-io/briefcast/internal/pipeline/rules"
	"github.com/briefcast-io/briefcast/internal/preferences"
	"github.com/briefcast-io/briefcast/internal/projection"
	"github.com/briefcast-io/briefcast/internal/server"
	"github.com/briefcast-io/briefcast/internal/summarize"
)

func main() {
	configPath := flag.String("config", "briefcast.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	windowSpec, err := window.ParseSize(cfg.Aggregation.WindowSize)
	if err != nil {
		slog.Error("Invalid window size", "value", cfg.Aggregation.WindowSize, "error", err)
		os.Exit(1)
	}
	sweepInterval := cfg.Aggregation.EffectiveSweepInterval(windowSpec.Size)

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	summaryStore := postgres.NewSummaryAdapter(dbAdapter.DB())
	deliveryStore := postgres.NewDeliveryAdapter(dbAdapter.DB())

	// 3. Load recipient preferences and pipeline rules
	prefsProvider, err := preferences.NewFileSystemProvider(cfg.Preferences.Dir, cfg.Preferences.DefaultChannels)
	if err != nil {
		slog.Error("Failed to load preferences", "error", err)
		os.Exit(1)
	}

	ruleSet, err := rules.LoadDir(cfg.Pipeline.RulesDir)
	if err != nil {
		slog.Error("Failed to load pipeline rules", "error", err)
		os.Exit(1)
	}
	slog.Info("Pipeline rules loaded",
		"redactions", len(ruleSet.Redactions),
		"topics", len(ruleSet.Topics),
	)

	executor := pipeline.NewExecutor(pipeline.DefaultSteps(
		ruleSet,
		cfg.Pipeline.MaxItems,
		cfg.Pipeline.MaxFactsPerItem,
		cfg.Pipeline.MaxTotalChars,
	)...)

	// 4. Initialize Delivery (fan-out worker + transports)
	var dispatcher *delivery.Dispatcher
	if cfg.Delivery.Enabled {
		backoffBase, _ := time.ParseDuration(cfg.Delivery.BackoffBase)
		pollInterval, _ := time.ParseDuration(cfg.Delivery.PollInterval)

		transports := []delivery.Transport{
			delivery.NewTelegramTransport(cfg.Delivery.Telegram.BotToken, ""),
			delivery.NewEmailTransport(cfg.Delivery.EmailGateway.Endpoint, cfg.Delivery.EmailGateway.Token),
		}
		dispatcher = delivery.NewDispatcher(
			deliveryStore,
			summaryStore,
			prefsProvider,
			transports,
			cfg.Delivery.MaxAttempts,
			backoffBase,
			pollInterval,
			cfg.Aggregation.BatchSize,
			cfg.Aggregation.WorkerCount,
		)
	} else {
		slog.Info("Delivery disabled by config")
	}

	// 5. Initialize Summarization Engine
	summarizerTimeout, _ := time.ParseDuration(cfg.Summarizer.Timeout)
	var llm summarize.Summarizer = summarize.NewOpenAIClient(
		cfg.Summarizer.Endpoint,
		cfg.Summarizer.Model,
		cfg.Summarizer.APIKey,
		summarizerTimeout,
	)
	llm = summarize.NewRetryingSummarizer(llm, cfg.Summarizer.MaxAttempts, time.Second)
	llm = summarize.NewLoggingSummarizer(llm)

	var sink summarize.CompletionSink
	if dispatcher != nil {
		sink = dispatcher
	}
	engine := summarize.NewEngine(summaryStore, llm, sink)

	// 6. Initialize Aggregation (window sweep + daily rollup)
	aggregator := aggregation.NewAggregator(
		dbAdapter,
		executor,
		engine,
		prefsProvider,
		cfg.Aggregation.MaxWindowAttempts,
		cfg.Aggregation.BatchSize,
		cfg.Aggregation.WorkerCount,
	)
	sweepScheduler := aggregation.NewScheduler(sweepInterval, aggregator, cfg.Aggregation.BatchSize)

	slog.Info("Aggregation initialized",
		"window_size", windowSpec.Size.String(),
		"sweep_interval", sweepInterval.String(),
		"enabled", cfg.Aggregation.Enabled,
		"max_window_attempts", cfg.Aggregation.MaxWindowAttempts,
	)

	// 7. Initialize Ingestion and Projection (HTTP API)
	ingestionSvc := ingestion.NewService(dbAdapter, windowSpec.Size, cfg.Server.MaxBodySizeMB)
	projectionSvc := projection.NewService(summaryStore, deliveryStore)

	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	ingestionSvc.RegisterRoutes(srv.Engine)
	projectionSvc.RegisterRoutes(srv.Engine)
	if dispatcher != nil {
		dispatcher.RegisterRoutes(srv.Engine)
	}

	// 8. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Aggregation.Enabled {
		go func() {
			if err := sweepScheduler.Start(ctx); err != nil {
				slog.Error("Sweep scheduler stopped with error", "error", err)
			}
		}()

		if cfg.Aggregation.DailyEnabled {
			dailyInterval, _ := time.ParseDuration(cfg.Aggregation.DailyInterval)
			dailyScheduler := aggregation.NewDailyScheduler(dailyInterval, summaryStore, engine, prefsProvider)
			go func() {
				if err := dailyScheduler.Start(ctx); err != nil {
					slog.Error("Daily rollup scheduler stopped with error", "error", err)
				}
			}()
		}
	} else {
		slog.Info("Aggregation disabled by config")
	}

	if dispatcher != nil {
		go dispatcher.Run(ctx)
	}

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
