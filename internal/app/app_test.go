package app

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	config "season-planner-api/configs"
	"season-planner-api/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, v := range []string{"QDRANT_URL", "NATS_URL", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_API_KEY", "STORES_FILE", "API_KEY"} {
		t.Setenv(v, "")
	}
	cfg := config.LoadConfig()
	cfg.Environment = "test"
	return cfg
}

// allocatedStores runs a short season up to the initial allocation and
// returns the stores it shipped to.
func allocatedStores(t *testing.T, a *App) []models.StoreAllocation {
	t.Helper()
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	history := make(models.HistoricalSeries, 60)
	for i := range history {
		history[i] = models.WeeklySales{
			WeekStart: start.AddDate(0, 0, 7*i),
			Quantity:  int(math.Round(100 + 10*math.Sin(2*math.Pi*float64(i)/52))),
		}
	}
	a.Planner.History.Put("outerwear", history)

	ctx := context.Background()
	st, err := a.Planner.Workflows.Create(ctx, "outerwear", models.SeasonParameters{
		ForecastHorizonWeeks:  4,
		SeasonStartDate:       time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		ReplenishmentStrategy: models.ReplenishWeekly,
		DCHoldbackPct:         0.2,
	}, decimal.NewFromInt(50))
	require.NoError(t, err)
	st, err = a.Planner.Workflows.StartSeason(ctx, st.ID, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, st.AllocationPlan)
	return st.AllocationPlan.StoreAllocations
}

func TestNewWithoutIntegrations(t *testing.T) {
	a, err := New(context.Background(), baseConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Archive)
	assert.Len(t, allocatedStores(t, a), 3)

	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	a.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/seasons/similar/any", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := baseConfig(t)
	cfg.VarianceHighThreshold = cfg.VarianceElevatedThreshold
	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestNewLoadsStoresFile(t *testing.T) {
	cfg := baseConfig(t)
	cfg.StoresFile = filepath.Join(t.TempDir(), "stores.yaml")
	require.NoError(t, os.WriteFile(cfg.StoresFile, []byte("stores:\n  - {store_id: A, weight: 1}\n"), 0o600))

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Len(t, allocatedStores(t, a), 1)

	cfg.StoresFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNewSkipsUnreachableNATS(t *testing.T) {
	cfg := baseConfig(t)
	cfg.NATSURL = "nats://127.0.0.1:1"
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, a.nc)
	a.Close()
}

func TestPlannerOptions(t *testing.T) {
	cfg := baseConfig(t)
	cfg.ForecastTimeout = 3 * time.Second
	cfg.EnsembleDynamicWeights = true
	cfg.TrendAROrder = 4

	opts := PlannerOptions(cfg, nil)
	assert.Equal(t, 3*time.Second, opts.Ensemble.ModelTimeout)
	assert.True(t, opts.Ensemble.DynamicWeights)
	assert.Equal(t, 4, opts.Trend.AROrder)
	assert.Equal(t, cfg.VarianceHighThreshold, opts.Coordinator.Thresholds.High)
	assert.Equal(t, cfg.ReviewConfidenceThreshold, opts.Coordinator.ReviewConfidence)
	assert.Nil(t, opts.Progress)
}
