package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// OtherEventType collects deliveries once the per-process type limit is
// reached.
const OtherEventType = "other"

// DefaultMaxEventTypes bounds the distinct event types one process tracks.
const DefaultMaxEventTypes = 64

// Collector buffers deliveries in memory and flushes them to Redis on an
// interval. Record is safe for concurrent use and never blocks on Redis.
//
// event.type is sender controlled, so at most maxTypes distinct types are
// tracked; later types are counted under OtherEventType.
type Collector struct {
	client        *Client
	flushInterval time.Duration
	maxTypes      int
	logger        *slog.Logger

	mu      sync.Mutex
	batches map[string]*Batch
	known   map[string]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector starts the flush loop. maxTypes <= 0 selects
// DefaultMaxEventTypes.
func NewCollector(client *Client, flushInterval time.Duration, maxTypes int, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if maxTypes <= 0 {
		maxTypes = DefaultMaxEventTypes
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Collector{
		client:        client,
		flushInterval: flushInterval,
		maxTypes:      maxTypes,
		logger:        logger,
		batches:       make(map[string]*Batch),
		known:         make(map[string]struct{}),
		cancel:        cancel,
	}

	c.wg.Add(1)
	go c.flushLoop(ctx)
	return c
}

// Record counts one accepted delivery.
func (c *Collector) Record(eventType string, duplicate bool, sender string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	eventType = c.admit(eventType)
	b, ok := c.batches[eventType]
	if !ok {
		b = NewBatch(eventType)
		c.batches[eventType] = b
	}
	b.Add(duplicate, sender)
}

// admit maps eventType to itself while there is room, else to
// OtherEventType. Caller holds c.mu.
func (c *Collector) admit(eventType string) string {
	if _, ok := c.known[eventType]; ok {
		return eventType
	}
	if len(c.known) >= c.maxTypes {
		return OtherEventType
	}
	c.known[eventType] = struct{}{}
	return eventType
}

func (c *Collector) flushLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.flush()
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *Collector) flush() {
	c.mu.Lock()
	batches := c.batches
	c.batches = make(map[string]*Batch)
	c.mu.Unlock()

	if len(batches) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var flushed int
	var events int64
	for _, b := range batches {
		if err := c.client.Flush(ctx, b); err != nil {
			c.logger.Error("failed to flush delivery stats",
				slog.String("event_type", b.EventType),
				slog.Int64("events", b.Events),
				slog.String("error", err.Error()))
			c.requeue(b)
			continue
		}
		flushed++
		events += b.Events
	}

	if flushed > 0 {
		c.logger.Debug("flushed delivery stats",
			slog.Int("event_types", flushed),
			slog.Int64("events", events))
	}
}

// requeue merges a batch that failed to flush back into the pending set.
func (c *Collector) requeue(b *Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.batches[b.EventType]; ok {
		existing.merge(b)
		return
	}
	c.batches[b.EventType] = b
}

func (c *Collector) FlushNow() {
	c.flush()
}

// Stop ends the flush loop after a final flush.
func (c *Collector) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Pending returns the unflushed delivery count per event type.
func (c *Collector) Pending() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.batches))
	for t, b := range c.batches {
		out[t] = b.Events
	}
	return out
}
