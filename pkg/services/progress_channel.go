package services

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"season-planner-api/pkg/models"
)

// ProgressChannel receives progress events. Publish must not block the
// caller for long and must not fail the work being reported.
type ProgressChannel interface {
	Publish(ev models.ProgressEvent)
}

// ProgressFunc adapts a function to ProgressChannel.
type ProgressFunc func(ev models.ProgressEvent)

func (f ProgressFunc) Publish(ev models.ProgressEvent) { f(ev) }

// safePublish fills in id and timestamp and swallows panics from ch.
func safePublish(ch ProgressChannel, logger *slog.Logger, ev models.ProgressEvent) {
	if ch == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Warn("Progress channel panicked", "panic", r, "workflow_id", ev.WorkflowID)
		}
	}()
	ch.Publish(ev)
}

// MultiProgress fans an event out to several channels.
type MultiProgress []ProgressChannel

func (m MultiProgress) Publish(ev models.ProgressEvent) {
	for _, ch := range m {
		safePublish(ch, nil, ev)
	}
}

const (
	defaultSubscriberBuffer = 64
	defaultHistoryLimit     = 500
	// events kept per workflow once its season is finished
	finishedHistoryLimit = 20
)

// ProgressBroker keeps a bounded per-workflow event history and fans events
// out to live subscribers. Slow subscribers miss events rather than block.
type ProgressBroker struct {
	mu           sync.RWMutex
	history      map[string][]models.ProgressEvent
	subscribers  map[string]map[int]chan models.ProgressEvent
	nextID       int
	historyLimit int
}

// NewProgressBroker creates an empty broker.
func NewProgressBroker() *ProgressBroker {
	return &ProgressBroker{
		history:      make(map[string][]models.ProgressEvent),
		subscribers:  make(map[string]map[int]chan models.ProgressEvent),
		historyLimit: defaultHistoryLimit,
	}
}

func (b *ProgressBroker) Publish(ev models.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := append(b.history[ev.WorkflowID], ev)
	if len(h) > b.historyLimit {
		h = h[len(h)-b.historyLimit:]
	}
	b.history[ev.WorkflowID] = h
	for _, ch := range b.subscribers[ev.WorkflowID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// History returns a copy of the recorded events for a workflow.
func (b *ProgressBroker) History(workflowID string) []models.ProgressEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]models.ProgressEvent(nil), b.history[workflowID]...)
}

// Compact keeps only the last keep events of a workflow's history and
// drops the workflow entirely when keep is zero.
func (b *ProgressBroker) Compact(workflowID string, keep int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.history[workflowID]
	if !ok {
		return
	}
	if keep <= 0 {
		delete(b.history, workflowID)
		return
	}
	if len(h) > keep {
		h = h[len(h)-keep:]
	}
	b.history[workflowID] = append([]models.ProgressEvent(nil), h...)
}

// Subscribe returns a channel of future events for workflowID and a cancel
// func that closes it.
func (b *ProgressBroker) Subscribe(workflowID string) (<-chan models.ProgressEvent, func()) {
	ch := make(chan models.ProgressEvent, defaultSubscriberBuffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subscribers[workflowID] == nil {
		b.subscribers[workflowID] = make(map[int]chan models.ProgressEvent)
	}
	b.subscribers[workflowID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers[workflowID], id)
			if len(b.subscribers[workflowID]) == 0 {
				delete(b.subscribers, workflowID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// natsPublisher is the subset of *nats.Conn used for progress events.
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSProgressPublisher publishes JSON events on <subject>.<workflow id>.
type NATSProgressPublisher struct {
	conn    natsPublisher
	subject string
	logger  *slog.Logger
}

// ConnectNATSProgress dials NATS and returns a publisher plus the connection
// so the caller can drain it on shutdown.
func ConnectNATSProgress(url, subject string, logger *slog.Logger) (*NATSProgressPublisher, *nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("season-planner-api"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, nil, err
	}
	return NewNATSProgressPublisher(nc, subject, logger), nc, nil
}

// NewNATSProgressPublisher wraps an existing connection.
func NewNATSProgressPublisher(conn natsPublisher, subject string, logger *slog.Logger) *NATSProgressPublisher {
	if subject == "" {
		subject = "planner.progress"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSProgressPublisher{conn: conn, subject: subject, logger: logger}
}

func (p *NATSProgressPublisher) Publish(ev models.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("Failed to marshal progress event", "error", err)
		return
	}
	subject := p.subject + "." + ev.WorkflowID
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish progress event", "subject", subject, "error", err)
	}
}
