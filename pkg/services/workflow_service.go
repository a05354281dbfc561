package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"season-planner-api/pkg/models"
)

type workflowEntry struct {
	mu sync.Mutex
	st *models.WorkflowState
}

// WorkflowService keeps running workflows in memory. Triggers for one
// workflow are serialised; different workflows never block each other.
type WorkflowService struct {
	coordinator *WorkflowCoordinator
	logger      *slog.Logger

	mu        sync.RWMutex
	workflows map[string]*workflowEntry

	onFinish func(workflowID string)
}

func NewWorkflowService(coordinator *WorkflowCoordinator, logger *slog.Logger) *WorkflowService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowService{
		coordinator: coordinator,
		logger:      logger,
		workflows:   make(map[string]*workflowEntry),
	}
}

// OnSeasonFinished registers fn to run after a season report is built.
// Call it before the service is used.
func (s *WorkflowService) OnSeasonFinished(fn func(workflowID string)) {
	s.onFinish = fn
}

func (s *WorkflowService) entry(id string) (*workflowEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return e, nil
}

// Create registers a new workflow and runs pre-season planning. The
// workflow is kept even if planning fails so it can be retried.
func (s *WorkflowService) Create(ctx context.Context, category string, params models.SeasonParameters, unitPrice decimal.Decimal) (*models.WorkflowState, error) {
	st, err := NewWorkflowState(category, params)
	if err != nil {
		return nil, err
	}
	st.UnitPrice = unitPrice
	e := &workflowEntry{st: st}
	e.mu.Lock()
	defer e.mu.Unlock()

	s.mu.Lock()
	s.workflows[st.ID] = e
	s.mu.Unlock()
	s.logger.Info("Workflow created", "workflow_id", st.ID, "category", category, "weeks", params.ForecastHorizonWeeks)

	err = s.coordinator.RunPreSeason(ctx, e.st)
	return e.st.Clone(), err
}

// RunPreSeason retries pre-season planning after a failure.
func (s *WorkflowService) RunPreSeason(ctx context.Context, id string) (*models.WorkflowState, error) {
	return s.with(id, func(st *models.WorkflowState) error {
		return s.coordinator.RunPreSeason(ctx, st)
	})
}

// StartSeason runs the initial allocation.
func (s *WorkflowService) StartSeason(ctx context.Context, id string, now time.Time) (*models.WorkflowState, error) {
	return s.with(id, func(st *models.WorkflowState) error {
		return s.coordinator.RunInitialAllocation(ctx, st, now)
	})
}

// SubmitActuals records a week and, after the final week, closes the season.
func (s *WorkflowService) SubmitActuals(ctx context.Context, id string, week, units int) (*models.VarianceRecord, *models.WorkflowState, error) {
	var rec *models.VarianceRecord
	st, err := s.with(id, func(st *models.WorkflowState) error {
		var err error
		rec, err = s.coordinator.SubmitActuals(ctx, st, week, units)
		if err != nil {
			return err
		}
		if st.Phase == models.PhaseSeasonEnd && !st.Terminal() {
			if _, err = s.coordinator.FinishSeason(ctx, st); err != nil {
				return err
			}
			if s.onFinish != nil {
				s.onFinish(st.ID)
			}
		}
		return nil
	})
	return rec, st, err
}

// Get returns a snapshot of a workflow.
func (s *WorkflowService) Get(id string) (*models.WorkflowState, error) {
	return s.with(id, func(*models.WorkflowState) error { return nil })
}

// Report returns the season report once the season has ended.
func (s *WorkflowService) Report(id string) (*models.SeasonReport, error) {
	st, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if st.Report == nil {
		return nil, ErrReportNotReady
	}
	return st.Report, nil
}

// List returns snapshots of all workflows, newest first.
func (s *WorkflowService) List() []*models.WorkflowState {
	s.mu.RLock()
	entries := make([]*workflowEntry, 0, len(s.workflows))
	for _, e := range s.workflows {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*models.WorkflowState, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.st.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *WorkflowService) with(id string, fn func(st *models.WorkflowState) error) (*models.WorkflowState, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	err = fn(e.st)
	if err != nil && !errors.Is(err, ErrWorkflowNotFound) {
		s.logger.Debug("Workflow trigger rejected", "workflow_id", id, "error", err)
	}
	return e.st.Clone(), err
}
