package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"season-planner-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// errorStatus maps service errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrWorkflowNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrInsufficientData),
		errors.Is(err, services.ErrOutputValidation),
		errors.Is(err, services.ErrUnsupportedFile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrTriggerNotReady),
		errors.Is(err, services.ErrWeekOutOfOrder),
		errors.Is(err, services.ErrPhaseCompleted),
		errors.Is(err, services.ErrWrongPhase),
		errors.Is(err, services.ErrWorkflowTerminal),
		errors.Is(err, services.ErrReportNotReady):
		return http.StatusConflict
	}
	var he *services.HandoffError
	if errors.As(err, &he) || errors.Is(err, services.ErrForecasting) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes err with its mapped status. Agent failures also
// report the agent and failure kind.
func respondError(c *gin.Context, err error) {
	body := gin.H{"success": false, "error": err.Error()}
	var he *services.HandoffError
	if errors.As(err, &he) {
		body["agent"] = he.Agent
		body["kind"] = he.Kind
	}
	c.JSON(errorStatus(err), body)
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// queryInt reads a positive integer query parameter.
func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil && v > 0 {
		return v
	}
	return def
}
