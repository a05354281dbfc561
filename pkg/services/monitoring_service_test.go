package services

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardData(t *testing.T) {
	s := NewMonitoringService(nil, nil)
	now := time.Now()
	s.LogRequest(LogEntry{Timestamp: now.Add(-10 * time.Minute), Path: "/api/v1/forecast", Method: "POST", StatusCode: 200, ResponseTime: 40 * time.Millisecond})
	s.LogRequest(LogEntry{Timestamp: now.Add(-5 * time.Minute), Path: "/api/v1/forecast", Method: "POST", StatusCode: 422, ResponseTime: 20 * time.Millisecond})
	s.LogRequest(LogEntry{Timestamp: now.Add(-2 * time.Minute), Path: "/api/v1/workflows", Method: "POST", StatusCode: 502, ResponseTime: 100 * time.Millisecond})
	s.LogRequest(LogEntry{Timestamp: now.Add(-3 * time.Hour), Path: "/api/v1/workflows", Method: "GET", StatusCode: 200})

	d := s.GetDashboardData(1)
	assert.Len(t, d.RequestsOverTime, 1)
	assert.Equal(t, map[string]int{"/api/v1/forecast": 2, "/api/v1/workflows": 1}, d.Endpoints)

	require.Len(t, d.StatusCodes, 3)
	assert.Equal(t, 1, d.StatusCodes[0]["value"])
	assert.Equal(t, 1, d.StatusCodes[1]["value"])
	assert.Equal(t, 1, d.StatusCodes[2]["value"])

	require.Len(t, d.AvgResponseTimes, 2)
	assert.Equal(t, "/api/v1/forecast", d.AvgResponseTimes[0]["endpoint"])
	assert.Equal(t, int64(30), d.AvgResponseTimes[0]["responseTime"])

	require.Len(t, d.RecentErrors, 1)
	assert.Equal(t, 502, d.RecentErrors[0].StatusCode)

	assert.Len(t, s.GetDashboardData(24).RequestsOverTime, 24)
	assert.Equal(t, 2, s.GetDashboardData(24).Endpoints["/api/v1/workflows"])
}

func TestLogRequestIsBounded(t *testing.T) {
	s := NewMonitoringService(time.UTC, nil)
	for i := 0; i < maxRequestLogEntries+3; i++ {
		s.LogRequest(LogEntry{Timestamp: time.Now(), Path: "/p", StatusCode: i})
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Len(t, s.logs, maxRequestLogEntries)
	assert.Equal(t, 3, s.logs[0].StatusCode)
}

func TestLoggingMiddlewareSkipsAdminPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewMonitoringService(nil, nil)
	r := gin.New()
	r.Use(s.LoggingMiddleware())
	r.GET("/api/v1/workflows", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/admin/health-status", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/v1/workflows", "/api/v1/admin/health-status", "/api/v1/workflows"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, map[string]int{"/api/v1/workflows": 2}, s.GetDashboardData(1).Endpoints)
}
