package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/common"
	"github.com/freightflow/extractd/internal/confidence"
	"github.com/freightflow/extractd/internal/coordinate"
	"github.com/freightflow/extractd/internal/docstore"
	"github.com/freightflow/extractd/internal/health"
	"github.com/freightflow/extractd/internal/metrics"
	"github.com/freightflow/extractd/internal/normalize"
	"github.com/freightflow/extractd/internal/orchestrator"
	"github.com/freightflow/extractd/internal/provider"
	"github.com/freightflow/extractd/internal/repository"
	"github.com/freightflow/extractd/internal/review"
	"github.com/freightflow/extractd/internal/schema"
	"github.com/freightflow/extractd/internal/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(configPath, logger); err != nil {
		logger.Error("extractd.fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer ledger.Close()
	logger.Info("extractd.ledger_ready", "driver", cfg.Database.Driver)

	docs, err := docstore.NewFS(cfg.Documents.Root, logger)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg.Providers, logger)
	if err != nil {
		return err
	}

	mets := metrics.New()
	tracker := health.NewTracker(health.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
		MaxCooldown:      cfg.Breaker.MaxCooldown,
	}, logger)
	tracker.OnTransition(func(name string, _, to constants.CircuitState) {
		mets.CircuitTransitions.WithLabelValues(name, string(to)).Inc()
	})

	coord := coordinate.New(registry, tracker, logger)

	norm := normalize.NewExtractor(normalize.Config{
		Pdftotext:     cfg.Normalize.Pdftotext,
		Pdftoppm:      cfg.Normalize.Pdftoppm,
		Tesseract:     cfg.Normalize.Tesseract,
		TesseractLang: cfg.Normalize.TesseractLang,
		DPI:           cfg.Normalize.DPI,
		MaxPages:      cfg.Normalize.MaxPages,
		MinTextLength: cfg.Normalize.MinTextLength,
	}, logger)

	orch := orchestrator.New(cfg.Orchestrator, orchestrator.Deps{
		Ledger:      ledger,
		Docs:        docs,
		Normalizer:  norm,
		Coordinator: coord,
		Registry:    registry,
		Schemas:     schema.NewRegistry(schema.TransportOrder()),
		Weights: confidence.Weights{
			Agreement:      cfg.Scoring.AgreementWeight,
			Rule:           cfg.Scoring.RuleWeight,
			FieldThreshold: cfg.Scoring.FieldThreshold,
		},
		Policy:  review.Policy{AutomatedThreshold: cfg.Scoring.AutomatedThreshold},
		Metrics: mets,
		Logger:  logger,
	})

	if err := orch.Requeue(ctx); err != nil {
		logger.Warn("extractd.requeue_failed", "error", err)
	}
	go orch.Start(ctx)

	srv := server.New(orch, docs, tracker, registry, mets, logger)
	if err := srv.Run(ctx, cfg.Server.HTTPAddr); err != nil {
		return err
	}

	logger.Info("extractd.stopped")
	return nil
}

func buildRegistry(configs []common.ProviderConfig, logger *slog.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry()
	for _, pc := range configs {
		if pc.Disabled {
			logger.Info("extractd.provider_disabled", "provider", pc.Name)
			continue
		}

		var adapter provider.Adapter
		switch pc.Name {
		case "openai":
			adapter = provider.NewOpenAI(provider.OpenAIConfig{
				APIKey:      pc.APIKey,
				BaseURL:     pc.BaseURL,
				Model:       pc.Model,
				Temperature: pc.Temperature,
				Timeout:     pc.Timeout,
			}, logger)
		case "anthropic":
			adapter = provider.NewAnthropic(provider.AnthropicConfig{
				APIKey:      pc.APIKey,
				BaseURL:     pc.BaseURL,
				Model:       pc.Model,
				Temperature: pc.Temperature,
				Timeout:     pc.Timeout,
			}, logger)
		case "azure":
			adapter = provider.NewAzureOpenAI(provider.AzureOpenAIConfig{
				APIKey:      pc.APIKey,
				Endpoint:    pc.BaseURL,
				Deployment:  pc.Deployment,
				Temperature: pc.Temperature,
				Timeout:     pc.Timeout,
			}, logger)
		default:
			return nil, common.NewAppError("CONFIG_ERROR", "unknown provider "+pc.Name, common.ErrInvalidInput)
		}

		if err := registry.Register(adapter, pc.Weight, pc.CostPerCall); err != nil {
			return nil, err
		}
		logger.Info("extractd.provider_registered", "provider", pc.Name, "weight", pc.Weight)
	}
	return registry, nil
}
