package services

import (
	"sort"
	"strings"
	"sync"
	"time"

	"season-planner-api/pkg/models"
)

// SalesHistoryStore keeps one weekly series per category in memory.
type SalesHistoryStore struct {
	mu     sync.RWMutex
	series map[string]models.HistoricalSeries
}

func NewSalesHistoryStore() *SalesHistoryStore {
	return &SalesHistoryStore{series: make(map[string]models.HistoricalSeries)}
}

func categoryKey(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// Put replaces the series for a category.
func (s *SalesHistoryStore) Put(category string, series models.HistoricalSeries) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[categoryKey(category)] = series.Clone()
}

// Import merges imported records into the store. Weeks already present are
// overwritten by the imported totals. It returns the week count per category.
func (s *SalesHistoryStore) Import(records []models.SalesRecord) map[string]int {
	agg := AggregateWeekly(records)
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int, len(agg))
	for cat, incoming := range agg {
		key := categoryKey(cat)
		weeks := make(map[int64]int)
		for _, w := range s.series[key] {
			weeks[w.WeekStart.Unix()] = w.Quantity
		}
		for _, w := range incoming {
			weeks[w.WeekStart.Unix()] = w.Quantity
		}
		merged := make(models.HistoricalSeries, 0, len(weeks))
		for k, q := range weeks {
			merged = append(merged, models.WeeklySales{WeekStart: time.Unix(k, 0).UTC(), Quantity: q})
		}
		sort.Slice(merged, func(i, j int) bool { return merged[i].WeekStart.Before(merged[j].WeekStart) })
		s.series[key] = merged
		counts[key] = len(merged)
	}
	return counts
}

// Get returns a copy of the series for a category.
func (s *SalesHistoryStore) Get(category string) (models.HistoricalSeries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.series[categoryKey(category)]
	return h.Clone(), ok
}

// Categories lists stored categories in sorted order.
func (s *SalesHistoryStore) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.series))
	for k := range s.series {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ContextAssembler builds the read-only snapshot handed to each agent.
type ContextAssembler struct {
	history *SalesHistoryStore
	stores  []models.StoreProfile
}

func NewContextAssembler(history *SalesHistoryStore, stores []models.StoreProfile) *ContextAssembler {
	return &ContextAssembler{history: history, stores: append([]models.StoreProfile(nil), stores...)}
}

// Build snapshots st for agent. Nothing in the returned context aliases the
// workflow state. Once the season is running the demand history is extended
// with the actuals submitted so far and the horizon shrinks to the weeks left.
func (a *ContextAssembler) Build(st *models.WorkflowState, agent string) models.AgentContext {
	actx := models.AgentContext{
		WorkflowID:  st.ID,
		Phase:       st.Phase,
		AgentName:   agent,
		Category:    st.Category,
		Params:      cloneParams(st.Params),
		CurrentWeek: st.CurrentWeek,
		StartWeek:   st.CurrentWeek + 1,
		Horizon:     st.SeasonLength - st.CurrentWeek,
		Actuals:     cloneWeekMap(st.Actuals),
		Plan:        cloneWeekMap(st.WeeklyPlan),
		Forecast:    st.Forecast.Clone(),
		Inventory:   st.Inventory,
		Stores:      append([]models.StoreProfile(nil), a.stores...),
		UnitPrice:   st.UnitPrice,
	}
	if agent == AgentDemand {
		history, _ := a.history.Get(st.Category)
		actx.History = appendActuals(history, st.Actuals, st.CurrentWeek)
	}
	return actx
}

// appendActuals extends history with season weeks 1..through as the weeks
// directly following the last history week.
func appendActuals(history models.HistoricalSeries, actuals map[int]int, through int) models.HistoricalSeries {
	if through <= 0 || len(history) == 0 {
		return history
	}
	last := history[len(history)-1].WeekStart
	for w := 1; w <= through; w++ {
		q, ok := actuals[w]
		if !ok {
			continue
		}
		history = append(history, models.WeeklySales{WeekStart: last.AddDate(0, 0, 7*w), Quantity: q})
	}
	return history
}

func cloneWeekMap(m map[int]int) map[int]int {
	if m == nil {
		return nil
	}
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneParams(p models.SeasonParameters) models.SeasonParameters {
	if p.MarkdownCheckpointWeek != nil {
		w := *p.MarkdownCheckpointWeek
		p.MarkdownCheckpointWeek = &w
	}
	return p
}
