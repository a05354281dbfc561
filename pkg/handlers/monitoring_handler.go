package handlers

import (
	"net/http"

	"season-planner-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// MonitoringHandler serves the request dashboard.
type MonitoringHandler struct {
	Service *services.MonitoringService
}

func NewMonitoringHandler(service *services.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{Service: service}
}

// GetLogs returns aggregated request data for period 1h, 24h or 7d.
func (h *MonitoringHandler) GetLogs(c *gin.Context) {
	hours := 24
	switch c.DefaultQuery("period", "24h") {
	case "1h":
		hours = 1
	case "7d":
		hours = 24 * 7
	}
	c.JSON(http.StatusOK, h.Service.GetDashboardData(hours))
}
