package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"season-planner-api/pkg/models"
	"season-planner-api/pkg/services"

	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 10 << 20

// ForecastHandler handles sales history import and one-off forecasts.
type ForecastHandler struct {
	planner *services.Planner
	logger  *slog.Logger
}

func NewForecastHandler(planner *services.Planner, logger *slog.Logger) *ForecastHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ForecastHandler{planner: planner, logger: logger}
}

// UploadHistory imports a .xlsx or .csv sales file into the history store.
// The optional form field "category" is used for rows without one.
func (h *ForecastHandler) UploadHistory(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "file is required"})
		return
	}
	defer file.Close()

	start := time.Now()
	records, err := services.ReadSalesFile(header.Filename, file, c.PostForm("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	counts := h.planner.History.Import(records)
	h.logger.Info("Sales history imported",
		"file", header.Filename,
		"rows", len(records),
		"categories", len(counts),
		"duration_ms", time.Since(start).Milliseconds())

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"rows":       len(records),
		"categories": counts,
	})
}

// ListHistory returns the stored categories and their week counts.
func (h *ForecastHandler) ListHistory(c *gin.Context) {
	out := make([]gin.H, 0)
	for _, cat := range h.planner.History.Categories() {
		series, _ := h.planner.History.Get(cat)
		item := gin.H{"category": cat, "weeks": len(series)}
		if len(series) > 0 {
			item["first_week"] = series[0].WeekStart.Format("2006-01-02")
			item["last_week"] = series[len(series)-1].WeekStart.Format("2006-01-02")
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": out})
}

// ForecastRequest asks for a forecast of horizon weeks. History, when
// given, is used instead of the stored series.
type ForecastRequest struct {
	Category string `json:"category" binding:"required"`
	Horizon  int    `json:"horizon" binding:"required,min=1,max=104"`
	History  []struct {
		WeekStart string `json:"week_start"`
		Quantity  int    `json:"quantity"`
	} `json:"history"`
}

// Forecast runs the demand agent once outside any workflow.
func (h *ForecastHandler) Forecast(c *gin.Context) {
	var req ForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	var (
		out *models.DemandAgentOutput
		err error
	)
	if len(req.History) > 0 {
		series := make(models.HistoricalSeries, 0, len(req.History))
		for _, w := range req.History {
			t, perr := parseDate(strings.TrimSpace(w.WeekStart))
			if perr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid week_start " + w.WeekStart})
				return
			}
			series = append(series, models.WeeklySales{WeekStart: t, Quantity: w.Quantity})
		}
		out, err = h.planner.ForecastSeries(c.Request.Context(), req.Category, series, req.Horizon)
	} else {
		out, err = h.planner.Forecast(c.Request.Context(), req.Category, req.Horizon)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": out})
}
