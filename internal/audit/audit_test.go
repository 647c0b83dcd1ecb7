package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/kafka"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (r *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]kafka.Event(nil), events...))
	return r.err
}

func (r *recordingPublisher) events() []DecisionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DecisionEvent
	for _, b := range r.batches {
		for _, e := range b {
			out = append(out, e.Value.(DecisionEvent))
		}
	}
	return out
}

func event(outcome, confidence string) DecisionEvent {
	e := NewDecisionEvent("What does ICO say about documenting lawful basis?")
	e.Outcome = outcome
	e.Confidence = confidence
	return e
}

func TestNewDecisionEvent(t *testing.T) {
	e := NewDecisionEvent("Is this lawful?")
	assert.Len(t, e.ID, 36)
	assert.Equal(t, HashQuestion("Is this lawful?"), e.QueryHash)
	assert.Len(t, e.QueryHash, 64)
	assert.NotContains(t, e.QueryHash, "lawful")
	assert.Equal(t, LLMDisabled, e.LLMStatus)
	assert.NotEqual(t, e.ID, NewDecisionEvent("Is this lawful?").ID)
}

func TestCollectorPublishesOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, Options{BatchSize: 2, FlushInterval: time.Hour})
	c.Start(context.Background())

	c.Track(event("answered", "high"))
	c.Track(event("refused", "very_low"))
	c.Track(event("no_match", "very_low"))
	c.Close()

	got := pub.events()
	require.Len(t, got, 3)
	assert.Equal(t, "answered", got[0].Outcome)
	assert.Equal(t, "no_match", got[2].Outcome)
	for _, b := range pub.batches {
		assert.LessOrEqual(t, len(b), 2)
		assert.Equal(t, eventKey, b[0].Key)
	}
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, Options{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	c.Start(context.Background())
	defer c.Close()

	c.Track(event("answered", "medium"))
	assert.Eventually(t, func() bool { return len(pub.events()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, Options{BufferSize: 2, BatchSize: 10})

	for i := 0; i < 5; i++ {
		c.Track(event("answered", "low"))
	}
	c.Close()

	assert.Len(t, pub.events(), 2)
	assert.Equal(t, int64(5), c.Stats().Total, "stats count every tracked event")
}

func TestCollectorAfterCloseAndNil(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, Options{})
	c.Close()
	c.Close()
	c.Track(event("answered", "high"))
	assert.Empty(t, pub.events())

	var nilCollector *Collector
	nilCollector.Track(event("answered", "high"))
	nilCollector.Close()
	assert.Equal(t, Snapshot{}, nilCollector.Stats())
}

func TestCollectorPublishFailureIsLogged(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	c := NewCollector(pub, Options{})
	c.Start(context.Background())
	c.Track(event("answered", "high"))
	c.Close()
	assert.Len(t, pub.events(), 1)
}

func TestCollectorDrainsOnContextCancel(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, Options{BatchSize: 100, FlushInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.Track(event("answered", "high"))
	c.Track(event("answered", "high"))
	cancel()
	c.Close()
	assert.Len(t, pub.events(), 2)
}

func TestStatsSnapshot(t *testing.T) {
	s := NewStats()
	for i, lat := range []int64{10, 20, 30, 40} {
		e := event("answered", "high")
		e.LatencyMs = lat
		e.CacheHit = i%2 == 0
		e.LLMStatus = LLMApplied
		s.Record(e)
	}
	refused := event("refused", "very_low")
	refused.Category = "legal_judgement"
	s.Record(refused)

	snap := s.Snapshot()
	assert.Equal(t, int64(5), snap.Total)
	assert.Equal(t, int64(4), snap.ByOutcome["answered"])
	assert.Equal(t, int64(1), snap.ByCategory["legal_judgement"])
	assert.Equal(t, int64(4), snap.ByLLMStatus[LLMApplied])
	assert.Equal(t, int64(1), snap.ByLLMStatus[LLMDisabled])
	assert.Equal(t, int64(2), snap.CacheHits)
	assert.InDelta(t, 20.0, snap.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(20), snap.P50LatencyMs)
	assert.Equal(t, int64(40), snap.P99LatencyMs)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := LogPublisher{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	require.NoError(t, p.PublishBatch(context.Background(), []kafka.Event{{Key: "decision", Value: event("refused", "very_low")}}))
	assert.Contains(t, buf.String(), `"outcome":"refused"`)
	assert.NotContains(t, buf.String(), "documenting lawful basis")
}
