package services

import (
	"encoding/json"
	"errors"
	"testing"

	"season-planner-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressBrokerHistoryAndSubscribe(t *testing.T) {
	b := NewProgressBroker()
	b.Publish(models.ProgressEvent{ID: "1", WorkflowID: "wf-a", Message: "first"})

	ch, cancel := b.Subscribe("wf-a")
	b.Publish(models.ProgressEvent{ID: "2", WorkflowID: "wf-a", Message: "second"})
	b.Publish(models.ProgressEvent{ID: "3", WorkflowID: "wf-b", Message: "other workflow"})

	ev := <-ch
	assert.Equal(t, "2", ev.ID)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	hist := b.History("wf-a")
	require.Len(t, hist, 2)
	assert.Equal(t, "first", hist[0].Message)
	assert.Len(t, b.History("wf-b"), 1)
}

func TestProgressBrokerDropsForSlowSubscribers(t *testing.T) {
	b := NewProgressBroker()
	ch, cancel := b.Subscribe("wf")
	defer cancel()

	for i := 0; i < defaultSubscriberBuffer+10; i++ {
		b.Publish(models.ProgressEvent{WorkflowID: "wf"})
	}
	assert.Len(t, ch, defaultSubscriberBuffer)
	assert.Len(t, b.History("wf"), defaultSubscriberBuffer+10)
}

func TestProgressBrokerBoundsHistory(t *testing.T) {
	b := NewProgressBroker()
	for i := 0; i < defaultHistoryLimit+5; i++ {
		b.Publish(models.ProgressEvent{WorkflowID: "wf", ProgressPct: i})
	}
	hist := b.History("wf")
	require.Len(t, hist, defaultHistoryLimit)
	assert.Equal(t, 5, hist[0].ProgressPct)
}

func TestProgressBrokerCompact(t *testing.T) {
	b := NewProgressBroker()
	for i := 0; i < 30; i++ {
		b.Publish(models.ProgressEvent{WorkflowID: "wf", ProgressPct: i})
	}
	b.Publish(models.ProgressEvent{WorkflowID: "other"})

	b.Compact("wf", 5)
	hist := b.History("wf")
	require.Len(t, hist, 5)
	assert.Equal(t, 25, hist[0].ProgressPct)
	assert.Equal(t, 29, hist[4].ProgressPct)
	assert.Len(t, b.History("other"), 1)

	b.Compact("wf", 10)
	assert.Len(t, b.History("wf"), 5)

	b.Compact("wf", 0)
	assert.Empty(t, b.History("wf"))
	b.Compact("missing", 3)
	assert.Empty(t, b.History("missing"))
}

func TestSafePublishSurvivesPanics(t *testing.T) {
	rec := &recordingProgress{}
	multi := MultiProgress{
		ProgressFunc(func(models.ProgressEvent) { panic("subscriber bug") }),
		rec,
	}
	assert.NotPanics(t, func() {
		safePublish(multi, nil, models.ProgressEvent{WorkflowID: "wf"})
	})
	events := rec.Events()
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())

	assert.NotPanics(t, func() { safePublish(nil, nil, models.ProgressEvent{}) })
}

type fakeNATS struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return f.err
}

func TestNATSProgressPublisher(t *testing.T) {
	conn := &fakeNATS{}
	p := NewNATSProgressPublisher(conn, "", nil)
	p.Publish(models.ProgressEvent{ID: "e1", WorkflowID: "wf-9", Status: models.ProgressCompleted})

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "planner.progress.wf-9", conn.subjects[0])

	var ev models.ProgressEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &ev))
	assert.Equal(t, "e1", ev.ID)
	assert.Equal(t, models.ProgressCompleted, ev.Status)

	conn.err = errors.New("nats: connection closed")
	assert.NotPanics(t, func() { p.Publish(models.ProgressEvent{WorkflowID: "wf-9"}) })
}
