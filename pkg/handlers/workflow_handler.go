package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"season-planner-api/pkg/models"
	"season-planner-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// SimilarSeasonFinder searches archived seasons by sales shape.
type SimilarSeasonFinder interface {
	FindSimilarSeasons(ctx context.Context, curve []int, k uint64) ([]models.SimilarSeason, error)
}

// WorkflowHandler exposes the seasonal workflow over HTTP.
type WorkflowHandler struct {
	workflows *services.WorkflowService
	broker    *services.ProgressBroker
	archive   SimilarSeasonFinder
	logger    *slog.Logger
	keepalive time.Duration
}

// NewWorkflowHandler creates the handler. archive may be nil.
func NewWorkflowHandler(workflows *services.WorkflowService, broker *services.ProgressBroker, archive SimilarSeasonFinder, logger *slog.Logger) *WorkflowHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowHandler{
		workflows: workflows,
		broker:    broker,
		archive:   archive,
		logger:    logger,
		keepalive: 30 * time.Second,
	}
}

// CreateWorkflowRequest starts a season for one category.
type CreateWorkflowRequest struct {
	Category  string          `json:"category" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Params    struct {
		ForecastHorizonWeeks   int     `json:"forecast_horizon_weeks" binding:"required"`
		SeasonStartDate        string  `json:"season_start_date" binding:"required"`
		ReplenishmentStrategy  string  `json:"replenishment_strategy"`
		DCHoldbackPct          float64 `json:"dc_holdback_pct"`
		MarkdownCheckpointWeek *int    `json:"markdown_checkpoint_week"`
	} `json:"params"`
}

// CreateWorkflow creates a workflow and runs pre-season planning. If
// planning fails the workflow is still returned so it can be retried.
func (h *WorkflowHandler) CreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	start, err := parseDate(req.Params.SeasonStartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid season_start_date (use YYYY-MM-DD)"})
		return
	}
	strategy := models.ReplenishmentStrategy(req.Params.ReplenishmentStrategy)
	if strategy == "" {
		strategy = models.ReplenishWeekly
	}
	params := models.SeasonParameters{
		ForecastHorizonWeeks:   req.Params.ForecastHorizonWeeks,
		SeasonStartDate:        start,
		ReplenishmentStrategy:  strategy,
		DCHoldbackPct:          req.Params.DCHoldbackPct,
		MarkdownCheckpointWeek: req.Params.MarkdownCheckpointWeek,
	}

	st, err := h.workflows.Create(c.Request.Context(), req.Category, params, req.UnitPrice)
	if err != nil {
		if st == nil {
			respondError(c, err)
			return
		}
		body := gin.H{"success": false, "error": err.Error(), "data": st}
		var he *services.HandoffError
		if errors.As(err, &he) {
			body["agent"] = he.Agent
			body["kind"] = he.Kind
		}
		c.JSON(errorStatus(err), body)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": st})
}

// ListWorkflows returns all workflows, newest first.
func (h *WorkflowHandler) ListWorkflows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.workflows.List()})
}

// GetWorkflow returns one workflow state.
func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	st, err := h.workflows.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": st})
}

// RetryPlanning re-runs pre-season planning after a failure.
func (h *WorkflowHandler) RetryPlanning(c *gin.Context) {
	h.respondState(c)(h.workflows.RunPreSeason(c.Request.Context(), c.Param("id")))
}

// StartSeasonRequest optionally overrides the clock for the start trigger.
type StartSeasonRequest struct {
	AsOf string `json:"as_of"`
}

// StartSeason runs the initial allocation.
func (h *WorkflowHandler) StartSeason(c *gin.Context) {
	var req StartSeasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
	}
	now := time.Now()
	if req.AsOf != "" {
		t, err := parseDate(req.AsOf)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid as_of (use YYYY-MM-DD)"})
			return
		}
		now = t
	}
	h.respondState(c)(h.workflows.StartSeason(c.Request.Context(), c.Param("id"), now))
}

// ActualsRequest reports one week of sales.
type ActualsRequest struct {
	WeekNumber  int  `json:"week_number" binding:"required"`
	ActualUnits *int `json:"actual_units" binding:"required"`
}

// SubmitActuals records a week of sales and returns its variance.
func (h *WorkflowHandler) SubmitActuals(c *gin.Context) {
	var req ActualsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "week_number and actual_units are required"})
		return
	}
	rec, st, err := h.workflows.SubmitActuals(c.Request.Context(), c.Param("id"), req.WeekNumber, *req.ActualUnits)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "variance": rec, "data": st})
}

// GetVariance returns the variance history.
func (h *WorkflowHandler) GetVariance(c *gin.Context) {
	st, err := h.workflows.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"data":        st.VarianceHistory,
		"reforecasts": st.Reforecasts,
	})
}

// GetReport returns the season report once the season has ended.
func (h *WorkflowHandler) GetReport(c *gin.Context) {
	report, err := h.workflows.Report(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": report})
}

// StreamEvents replays recorded progress events as server-sent events and,
// unless follow=false, keeps streaming new ones until the client leaves.
func (h *WorkflowHandler) StreamEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.workflows.Get(id); err != nil {
		respondError(c, err)
		return
	}

	// matches gin's SSE renderer; needed when the replay is empty
	c.Header("Content-Type", "text/event-stream;charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// subscribe before replaying so nothing falls between the two
	var events <-chan models.ProgressEvent
	follow := c.DefaultQuery("follow", "true") != "false"
	if follow {
		ch, cancel := h.broker.Subscribe(id)
		defer cancel()
		events = ch
	}

	seen := make(map[string]bool)
	for _, ev := range h.broker.History(id) {
		seen[ev.ID] = true
		c.SSEvent("progress", ev)
	}
	c.Writer.Flush()
	if !follow {
		return
	}

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			c.SSEvent("keepalive", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if seen[ev.ID] {
				continue
			}
			c.SSEvent("progress", ev)
			c.Writer.Flush()
		}
	}
}

// FindSimilarSeasons searches the archive with the workflow's sales so far.
func (h *WorkflowHandler) FindSimilarSeasons(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "season archive unavailable"})
		return
	}
	st, err := h.workflows.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if st.CurrentWeek == 0 {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "no actuals submitted yet"})
		return
	}
	curve := services.ActualCurve(st)[:st.CurrentWeek]
	hits, err := h.archive.FindSimilarSeasons(c.Request.Context(), curve, uint64(queryInt(c, "k", 5)))
	if err != nil {
		h.logger.Error("Similar season search failed", "workflow_id", st.ID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": hits})
}

func (h *WorkflowHandler) respondState(c *gin.Context) func(*models.WorkflowState, error) {
	return func(st *models.WorkflowState, err error) {
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": st})
	}
}
