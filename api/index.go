package handler

import (
	"context"
	"net/http"
	"sync"

	config "season-planner-api/configs"
	"season-planner-api/internal/app"

	"github.com/gin-gonic/gin"
)

var (
	engine  *gin.Engine
	initErr error
	once    sync.Once
)

// setupApp builds the router once per function instance. Environment
// variables come from the platform, so no .env file is read here.
func setupApp() (*gin.Engine, error) {
	once.Do(func() {
		cfg := config.LoadConfig()
		logger := cfg.NewLogger()
		gin.SetMode(gin.ReleaseMode)
		a, err := app.New(context.Background(), cfg, logger)
		if err != nil {
			initErr = err
			logger.Error("Failed to initialise planner", "error", err)
			return
		}
		engine = a.Router
	})
	return engine, initErr
}

// Handler is the serverless entry point for every request.
func Handler(w http.ResponseWriter, r *http.Request) {
	e, err := setupApp()
	if err != nil {
		http.Error(w, "service unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	e.ServeHTTP(w, r)
}
