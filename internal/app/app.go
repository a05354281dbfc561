// Package app assembles the planner and its optional integrations from
// configuration for the server and the serverless entry point.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	config "season-planner-api/configs"
	"season-planner-api/pkg/azure"
	"season-planner-api/pkg/handlers"
	"season-planner-api/pkg/models"
	"season-planner-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
)

// App is a fully wired planner with its HTTP router.
type App struct {
	Planner *services.Planner
	Router  *gin.Engine
	Archive *services.SeasonArchive

	nc     *nats.Conn
	logger *slog.Logger
}

// PlannerOptions maps configuration onto planner options. Integrations are
// left unset.
func PlannerOptions(cfg *config.Config, logger *slog.Logger) services.PlannerOptions {
	return services.PlannerOptions{
		Ensemble: services.EnsembleConfig{
			SeasonalWeight:  cfg.EnsembleSeasonalWeight,
			DynamicWeights:  cfg.EnsembleDynamicWeights,
			ValidationSplit: cfg.EnsembleValidationSplit,
			ModelTimeout:    cfg.ForecastTimeout,
		},
		Seasonal: services.SeasonalConfig{
			PeriodWeeks: cfg.SeasonalPeriodWeeks,
			Harmonics:   cfg.SeasonalHarmonics,
		},
		Trend: services.TrendConfig{AROrder: cfg.TrendAROrder},
		Coordinator: services.CoordinatorConfig{
			Thresholds: services.VarianceThresholds{
				Elevated: cfg.VarianceElevatedThreshold,
				High:     cfg.VarianceHighThreshold,
			},
			ReviewConfidence: cfg.ReviewConfidenceThreshold,
		},
		Logger: logger,
	}
}

// New builds the planner. NATS, Qdrant and Azure OpenAI are attached when
// configured; a failing integration is logged and skipped.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{logger: logger}

	opts := PlannerOptions(cfg, logger)
	opts.Metrics = services.NewPlannerMetrics()

	if cfg.StoresFile != "" {
		stores, err := config.LoadStoreProfiles(cfg.StoresFile)
		if err != nil {
			return nil, err
		}
		opts.Stores = stores
	} else {
		opts.Stores = DefaultStores()
	}

	if cfg.NATSURL != "" {
		pub, nc, err := services.ConnectNATSProgress(cfg.NATSURL, cfg.NATSProgressSubject, logger)
		if err != nil {
			logger.Warn("NATS unavailable, progress stays in process", "url", cfg.NATSURL, "error", err)
		} else {
			a.nc = nc
			opts.Progress = pub
			logger.Info("Publishing progress to NATS", "subject", cfg.NATSProgressSubject)
		}
	}

	if cfg.QdrantURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		archive, err := services.DialSeasonArchive(dialCtx, cfg.QdrantURL, cfg.QdrantAPIKey, logger)
		cancel()
		if err != nil {
			logger.Warn("Season archive disabled", "url", cfg.QdrantURL, "error", err)
		} else {
			a.Archive = archive
			opts.Archive = archive
		}
	}

	client := azure.NewOpenAIClient(cfg.AzureOpenAIEndpoint, cfg.AzureOpenAIAPIKey, cfg.AzureOpenAIAPIVersion, cfg.AzureOpenAIChatDeploymentName)
	if explainer := services.NewAzureOpenAIService(client); explainer != nil {
		opts.Explainer = explainer
		logger.Info("Markdown rationale via Azure OpenAI enabled")
	}

	planner, err := services.NewPlanner(opts)
	if err != nil {
		return nil, fmt.Errorf("build planner: %w", err)
	}
	a.Planner = planner

	deps := handlers.RouterDeps{
		Config:     cfg,
		Planner:    planner,
		Monitoring: services.NewMonitoringService(time.UTC, logger),
		Logger:     logger,
	}
	if a.Archive != nil {
		deps.Archive = a.Archive
	}
	a.Router = handlers.NewRouter(deps)
	return a, nil
}

// Close drains the NATS connection if one was opened.
func (a *App) Close() {
	if a.nc == nil {
		return
	}
	if err := a.nc.Drain(); err != nil {
		a.logger.Warn("NATS drain failed", "error", err)
	}
}

// DefaultStores is used when no stores file is configured.
func DefaultStores() []models.StoreProfile {
	return []models.StoreProfile{
		{StoreID: "S001", Name: "Flagship", Weight: 3},
		{StoreID: "S002", Name: "Mall", Weight: 2},
		{StoreID: "S003", Name: "Outlet", Weight: 1},
	}
}
