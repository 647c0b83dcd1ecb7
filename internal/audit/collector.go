package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/kafka"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/logger"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/metrics"
)

const eventKey = "decision"

// Publisher ships a batch of events. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// LogPublisher writes events to a logger instead of a broker.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	log := p.Logger
	if log == nil {
		log = logger.WithComponent("audit")
	}
	for _, e := range events {
		log.Info("decision", "key", e.Key, "event", e.Value)
	}
	return nil
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Metrics       *metrics.Metrics
}

// Collector buffers events and publishes them in batches from a single
// goroutine. Track never blocks: events are dropped when the buffer is full.
type Collector struct {
	publisher     Publisher
	eventCh       chan DecisionEvent
	batchSize     int
	flushInterval time.Duration
	stats         *Stats
	metrics       *metrics.Metrics
	logger        *slog.Logger
	done          chan struct{}

	mu      sync.RWMutex
	closed  bool
	started bool
}

func NewCollector(p Publisher, opts Options) *Collector {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	return &Collector{
		publisher:     p,
		eventCh:       make(chan DecisionEvent, opts.BufferSize),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		stats:         NewStats(),
		metrics:       opts.Metrics,
		logger:        logger.WithComponent("audit-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. It returns immediately.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.loop(ctx)
	c.logger.Info("audit collector started", "buffer_size", cap(c.eventCh), "batch_size", c.batchSize)
}

// Track records e in the in-process stats and queues it for publishing.
// It is a no-op on a nil Collector and after Close.
func (c *Collector) Track(e DecisionEvent) {
	if c == nil {
		return
	}
	c.stats.Record(e)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
		c.metrics.Audit("queued")
	default:
		c.metrics.Audit("dropped")
		c.logger.Warn("audit event dropped (buffer full)", "id", e.ID)
	}
}

// Stats returns the aggregate of every tracked event.
func (c *Collector) Stats() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return c.stats.Snapshot()
}

// Close stops accepting events, publishes what is buffered and waits for
// the loop to exit.
func (c *Collector) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	started := c.started
	c.mu.Unlock()

	if started {
		<-c.done
	}
	c.flushAll(context.Background(), c.drain(nil))
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]DecisionEvent, 0, c.batchSize)
	for {
		select {
		case e, ok := <-c.eventCh:
			if !ok {
				c.flushAll(context.Background(), batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= c.batchSize {
				c.publish(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.publish(ctx, batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.flushAll(flushCtx, c.drain(batch))
			cancel()
			return
		}
	}
}

// drain appends whatever is still buffered to batch without blocking.
func (c *Collector) drain(batch []DecisionEvent) []DecisionEvent {
	for {
		select {
		case e, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

func (c *Collector) flushAll(ctx context.Context, batch []DecisionEvent) {
	for len(batch) > 0 {
		n := min(len(batch), c.batchSize)
		c.publish(ctx, batch[:n])
		batch = batch[n:]
	}
}

func (c *Collector) publish(ctx context.Context, batch []DecisionEvent) {
	events := make([]kafka.Event, 0, len(batch))
	for _, e := range batch {
		events = append(events, kafka.Event{Key: eventKey, Value: e})
	}
	if err := c.publisher.PublishBatch(ctx, events); err != nil {
		c.metrics.Audit("failed")
		c.logger.Error("audit batch publish failed", "count", len(events), "error", err)
		return
	}
	for range events {
		c.metrics.Audit("published")
	}
	c.logger.Debug("audit batch published", "count", len(events))
}
