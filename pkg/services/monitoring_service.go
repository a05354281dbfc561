package services

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const maxRequestLogEntries = 10000

// LogEntry is one served request.
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
}

// MonitoringService keeps a bounded in-memory request log for the dashboard.
type MonitoringService struct {
	mu       sync.RWMutex
	logs     []LogEntry
	location *time.Location
	logger   *slog.Logger
}

// NewMonitoringService buckets dashboard data in loc (UTC when nil).
func NewMonitoringService(loc *time.Location, logger *slog.Logger) *MonitoringService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MonitoringService{
		logs:     make([]LogEntry, 0),
		location: loc,
		logger:   logger,
	}
}

// LogRequest records a request, dropping the oldest beyond the cap.
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if over := len(s.logs) - maxRequestLogEntries; over > 0 {
		s.logs = append([]LogEntry(nil), s.logs[over:]...)
	}
}

// LoggingMiddleware logs every request and records it for the dashboard.
// Admin, monitoring and metrics paths are logged but not recorded.
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		entry := LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: time.Since(start),
		}
		level := slog.LevelInfo
		if entry.StatusCode >= 500 {
			level = slog.LevelError
		}
		s.logger.Log(c.Request.Context(), level, "HTTP request",
			"method", entry.Method,
			"path", path,
			"status", entry.StatusCode,
			"duration_ms", entry.ResponseTime.Milliseconds())

		if strings.HasPrefix(path, "/api/v1/admin") || strings.HasPrefix(path, "/api/v1/monitoring") || path == "/metrics" {
			return
		}
		s.LogRequest(entry)
	}
}

// DashboardData is the aggregated request view.
type DashboardData struct {
	RequestsOverTime []map[string]interface{} `json:"requestsOverTime"`
	Endpoints        map[string]int           `json:"endpoints"`
	StatusCodes      []map[string]interface{} `json:"statusCodes"`
	AvgResponseTimes []map[string]interface{} `json:"avgResponseTimes"`
	RecentErrors     []LogEntry               `json:"recentErrors"`
}

// GetDashboardData aggregates the last periodHours of requests.
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	if periodHours <= 0 {
		periodHours = 24
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().In(s.location)
	since := now.Add(-time.Duration(periodHours) * time.Hour)

	filtered := make([]LogEntry, 0)
	for _, l := range s.logs {
		if l.Timestamp.After(since) {
			filtered = append(filtered, l)
		}
	}

	// hourly buckets, oldest first
	buckets := make(map[string]int)
	for _, l := range filtered {
		buckets[l.Timestamp.In(s.location).Truncate(time.Hour).Format(time.RFC3339)]++
	}
	overTime := make([]map[string]interface{}, periodHours)
	for i := 0; i < periodHours; i++ {
		t := now.Add(-time.Duration(periodHours-1-i) * time.Hour)
		key := t.Truncate(time.Hour).Format(time.RFC3339)
		overTime[i] = map[string]interface{}{"time": t.Format("15:00"), "requests": buckets[key]}
	}

	endpoints := make(map[string]int)
	sum := make(map[string]time.Duration)
	for _, l := range filtered {
		endpoints[l.Path]++
		sum[l.Path] += l.ResponseTime
	}

	classes := []string{"2xx Success", "4xx Client Error", "5xx Server Error"}
	counts := make(map[string]int, len(classes))
	for _, l := range filtered {
		switch {
		case l.StatusCode >= 200 && l.StatusCode < 300:
			counts[classes[0]]++
		case l.StatusCode >= 400 && l.StatusCode < 500:
			counts[classes[1]]++
		case l.StatusCode >= 500:
			counts[classes[2]]++
		}
	}
	statusCodes := make([]map[string]interface{}, 0, len(classes))
	for _, name := range classes {
		statusCodes = append(statusCodes, map[string]interface{}{"name": name, "value": counts[name]})
	}

	paths := make([]string, 0, len(sum))
	for p := range sum {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	avgTimes := make([]map[string]interface{}, 0, len(paths))
	for _, p := range paths {
		avg := sum[p].Milliseconds() / int64(endpoints[p])
		avgTimes = append(avgTimes, map[string]interface{}{"endpoint": p, "responseTime": avg})
	}

	recentErrors := make([]LogEntry, 0)
	for i := len(filtered) - 1; i >= 0 && len(recentErrors) < 10; i-- {
		if filtered[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filtered[i])
		}
	}

	return DashboardData{
		RequestsOverTime: overTime,
		Endpoints:        endpoints,
		StatusCodes:      statusCodes,
		AvgResponseTimes: avgTimes,
		RecentErrors:     recentErrors,
	}
}
