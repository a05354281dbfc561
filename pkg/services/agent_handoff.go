package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"season-planner-api/pkg/models"
)

// Agent names registered by the server.
const (
	AgentDemand    = "demand"
	AgentInventory = "inventory"
	AgentPricing   = "pricing"
)

var (
	ErrAgentNotFound = errors.New("agent not registered")
	ErrAgentFailure  = errors.New("agent failed")
	ErrAgentPanic    = errors.New("agent panicked")
)

// Handoff failure kinds.
const (
	KindInsufficientData = "insufficient_data"
	KindForecasting      = "forecasting"
	KindOutputValidation = "output_validation"
	KindNotTrained       = "not_trained"
	KindAgentFailure     = "agent_failure"
	KindAgentPanic       = "agent_panic"
)

// AgentHandler is implemented by every planning agent.
type AgentHandler interface {
	Invoke(ctx context.Context, actx models.AgentContext) (models.AgentResult, error)
}

// AgentHandlerFunc adapts a function to AgentHandler.
type AgentHandlerFunc func(ctx context.Context, actx models.AgentContext) (models.AgentResult, error)

func (f AgentHandlerFunc) Invoke(ctx context.Context, actx models.AgentContext) (models.AgentResult, error) {
	return f(ctx, actx)
}

// HandoffError is the only error type that crosses the handoff boundary.
// Its Kind maps agent-internal errors onto the public taxonomy.
type HandoffError struct {
	Agent   string
	Kind    string
	Message string
}

func (e *HandoffError) Error() string {
	return fmt.Sprintf("agent %s failed (%s): %s", e.Agent, e.Kind, e.Message)
}

// Is matches the public sentinels for the error's kind.
func (e *HandoffError) Is(target error) bool {
	switch e.Kind {
	case KindInsufficientData:
		return target == ErrInsufficientData
	case KindForecasting:
		return target == ErrForecasting
	case KindOutputValidation:
		return target == ErrOutputValidation
	case KindNotTrained:
		return target == ErrNotTrained
	case KindAgentPanic:
		return target == ErrAgentPanic
	default:
		return target == ErrAgentFailure
	}
}

func classifyAgentError(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientData):
		return KindInsufficientData
	case errors.Is(err, ErrForecasting), errors.Is(err, ErrModelTraining):
		return KindForecasting
	case errors.Is(err, ErrOutputValidation):
		return KindOutputValidation
	case errors.Is(err, ErrNotTrained):
		return KindNotTrained
	default:
		return KindAgentFailure
	}
}

// AgentHandoffManager is a name-keyed registry of agents.
type AgentHandoffManager struct {
	mu       sync.RWMutex
	handlers map[string]AgentHandler
	logger   *slog.Logger
	metrics  *PlannerMetrics
}

// NewAgentHandoffManager creates an empty registry.
func NewAgentHandoffManager(logger *slog.Logger, metrics *PlannerMetrics) *AgentHandoffManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentHandoffManager{
		handlers: make(map[string]AgentHandler),
		logger:   logger,
		metrics:  metrics,
	}
}

// Register adds a handler under name. Names are unique.
func (m *AgentHandoffManager) Register(name string, h AgentHandler) error {
	if name == "" {
		return errors.New("agent name is required")
	}
	if h == nil {
		return fmt.Errorf("agent %s: handler is nil", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[name]; ok {
		return fmt.Errorf("agent %s is already registered", name)
	}
	m.handlers[name] = h
	return nil
}

// Registered returns true when name has a handler.
func (m *AgentHandoffManager) Registered(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.handlers[name]
	return ok
}

// Invoke runs the named agent. Failures come back as *HandoffError and
// panics are recovered into KindAgentPanic.
func (m *AgentHandoffManager) Invoke(ctx context.Context, name string, actx models.AgentContext) (res models.AgentResult, err error) {
	m.mu.RLock()
	h, ok := m.handlers[name]
	m.mu.RUnlock()
	if !ok {
		return models.AgentResult{}, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	actx.AgentName = name

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Agent panicked", "agent", name, "workflow_id", actx.WorkflowID, "panic", r)
			res = models.AgentResult{}
			err = &HandoffError{Agent: name, Kind: KindAgentPanic, Message: fmt.Sprint(r)}
		}
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.metrics.ObserveAgentInvocation(name, result)
	}()

	res, err = h.Invoke(ctx, actx)
	if err != nil {
		kind := classifyAgentError(err)
		m.logger.Warn("Agent invocation failed", "agent", name, "workflow_id", actx.WorkflowID, "kind", kind, "error", err)
		return models.AgentResult{}, &HandoffError{Agent: name, Kind: kind, Message: err.Error()}
	}
	return res, nil
}
