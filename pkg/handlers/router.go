package handlers

import (
	"log/slog"
	"net/http"

	config "season-planner-api/configs"
	"season-planner-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterDeps are the collaborators NewRouter mounts. Archive is optional.
type RouterDeps struct {
	Config     *config.Config
	Planner    *services.Planner
	Monitoring *services.MonitoringService
	Archive    SimilarSeasonFinder
	Logger     *slog.Logger
}

// APIKeyAuth checks X-API-KEY when a key is configured.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-KEY") != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// NewRouter builds the gin engine shared by the server and the serverless
// entry point.
func NewRouter(d RouterDeps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	monitoring := d.Monitoring
	if monitoring == nil {
		monitoring = services.NewMonitoringService(nil, logger)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(monitoring.LoggingMiddleware())
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "X-API-KEY")
	r.Use(cors.New(corsCfg))

	adminHandler := NewAdminHandler(d.Config, logger)
	monitoringHandler := NewMonitoringHandler(monitoring)
	forecastHandler := NewForecastHandler(d.Planner, logger)
	workflowHandler := NewWorkflowHandler(d.Planner.Workflows, d.Planner.Broker, d.Archive, logger)

	r.GET("/health", adminHandler.HealthCheck)
	if d.Planner.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Planner.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	v1.Use(APIKeyAuth(d.Config.APIKey))
	{
		admin := v1.Group("/admin")
		{
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/maintenance/start", adminHandler.StartMaintenance)
			admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
		}

		monitoringGroup := v1.Group("/monitoring")
		{
			monitoringGroup.GET("/logs", monitoringHandler.GetLogs)
		}

		planning := v1.Group("")
		planning.Use(adminHandler.MaintenanceGuard())
		{
			planning.POST("/history/upload", forecastHandler.UploadHistory)
			planning.GET("/history", forecastHandler.ListHistory)
			planning.POST("/forecast", forecastHandler.Forecast)

			workflows := planning.Group("/workflows")
			{
				workflows.POST("", workflowHandler.CreateWorkflow)
				workflows.GET("", workflowHandler.ListWorkflows)
				workflows.GET("/:id", workflowHandler.GetWorkflow)
				workflows.POST("/:id/plan", workflowHandler.RetryPlanning)
				workflows.POST("/:id/start", workflowHandler.StartSeason)
				workflows.POST("/:id/actuals", workflowHandler.SubmitActuals)
				workflows.GET("/:id/variance", workflowHandler.GetVariance)
				workflows.GET("/:id/report", workflowHandler.GetReport)
				workflows.GET("/:id/events", workflowHandler.StreamEvents)
			}

			planning.GET("/seasons/similar/:id", workflowHandler.FindSimilarSeasons)
		}
	}
	return r
}
