// Package stats keeps per event type delivery statistics in Redis so every
// webhook replica contributes to, and can report, the same numbers.
//
// Redis key layout:
//
//	haulwatch:stats:{event_type}                - hash: totals and last delivery
//	haulwatch:hourly:{event_type}:{YYYYMMDDHH}  - deliveries in that hour (expires 48h)
//	haulwatch:senders:{event_type}:{YYYYMMDD}   - set of sender IPs that day (expires 7d)
//	haulwatch:instances:{event_type}            - hash: replica id -> last seen
package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statsPrefix    = "haulwatch:stats:"
	hourlyPrefix   = "haulwatch:hourly:"
	sendersPrefix  = "haulwatch:senders:"
	instancePrefix = "haulwatch:instances:"

	hourLayout = "2006010215"
	dayLayout  = "20060102"
)

// Stats is the aggregated view of one event type.
type Stats struct {
	EventType          string            `json:"event_type"`
	LastSeenAt         *time.Time        `json:"last_seen_at,omitempty"`
	LastSender         string            `json:"last_sender,omitempty"`
	Total              int64             `json:"total"`
	Duplicates         int64             `json:"duplicates"`
	EventsLastHour     int64             `json:"events_last_hour"`
	EventsLast24h      int64             `json:"events_last_24h"`
	UniqueSendersToday int64             `json:"unique_senders_today"`
	Instances          map[string]string `json:"instances,omitempty"`
	RetrievedAt        time.Time         `json:"retrieved_at"`
}

type Client struct {
	redis      *redis.Client
	instanceID string
	now        func() time.Time
}

// NewClient connects to redisURL. instanceID identifies this replica, e.g.
// the pod name.
func NewClient(redisURL, instanceID string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewClientFromRedis(client, instanceID), nil
}

func NewClientFromRedis(client *redis.Client, instanceID string) *Client {
	return &Client{
		redis:      client,
		instanceID: instanceID,
		now:        time.Now,
	}
}

// Batch accumulates deliveries of one event type between flushes.
type Batch struct {
	EventType  string
	Events     int64
	Duplicates int64
	Senders    map[string]struct{}
	LastSender string
}

func NewBatch(eventType string) *Batch {
	return &Batch{
		EventType: eventType,
		Senders:   make(map[string]struct{}),
	}
}

func (b *Batch) Add(duplicate bool, sender string) {
	b.Events++
	if duplicate {
		b.Duplicates++
	}
	if sender != "" {
		b.Senders[sender] = struct{}{}
		b.LastSender = sender
	}
}

func (b *Batch) merge(o *Batch) {
	b.Events += o.Events
	b.Duplicates += o.Duplicates
	for s := range o.Senders {
		b.Senders[s] = struct{}{}
	}
	if o.LastSender != "" {
		b.LastSender = o.LastSender
	}
}

// Flush writes a batch in a single pipeline.
func (c *Client) Flush(ctx context.Context, batch *Batch) error {
	if batch.Events == 0 {
		return nil
	}

	now := c.now()
	nowUnix := strconv.FormatInt(now.Unix(), 10)
	hourKey := hourlyPrefix + batch.EventType + ":" + now.Format(hourLayout)
	sendersKey := sendersPrefix + batch.EventType + ":" + now.Format(dayLayout)
	instancesKey := instancePrefix + batch.EventType

	pipe := c.redis.Pipeline()

	statsKey := statsPrefix + batch.EventType
	fields := map[string]any{"last_seen_at": nowUnix}
	if batch.LastSender != "" {
		fields["last_sender"] = batch.LastSender
	}
	pipe.HSet(ctx, statsKey, fields)
	pipe.HIncrBy(ctx, statsKey, "total", batch.Events)
	if batch.Duplicates > 0 {
		pipe.HIncrBy(ctx, statsKey, "duplicates", batch.Duplicates)
	}

	pipe.IncrBy(ctx, hourKey, batch.Events)
	pipe.Expire(ctx, hourKey, 48*time.Hour)

	if len(batch.Senders) > 0 {
		senders := make([]any, 0, len(batch.Senders))
		for s := range batch.Senders {
			senders = append(senders, s)
		}
		pipe.SAdd(ctx, sendersKey, senders...)
		pipe.Expire(ctx, sendersKey, 7*24*time.Hour)
	}

	pipe.HSet(ctx, instancesKey, c.instanceID, nowUnix)
	pipe.Expire(ctx, instancesKey, 24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush stats for %s: %w", batch.EventType, err)
	}
	return nil
}

// Get reads the statistics of one event type. An unknown type yields zeros.
func (c *Client) Get(ctx context.Context, eventType string) (*Stats, error) {
	now := c.now()

	pipe := c.redis.Pipeline()
	statsCmd := pipe.HGetAll(ctx, statsPrefix+eventType)

	hourly := make([]*redis.StringCmd, 24)
	for i := range hourly {
		t := now.Add(-time.Duration(i) * time.Hour)
		hourly[i] = pipe.Get(ctx, hourlyPrefix+eventType+":"+t.Format(hourLayout))
	}
	sendersCmd := pipe.SCard(ctx, sendersPrefix+eventType+":"+now.Format(dayLayout))
	instancesCmd := pipe.HGetAll(ctx, instancePrefix+eventType)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get stats for %s: %w", eventType, err)
	}

	s := &Stats{
		EventType:   eventType,
		RetrievedAt: now,
		Instances:   make(map[string]string),
	}

	if h, err := statsCmd.Result(); err == nil {
		if v, ok := h["last_seen_at"]; ok {
			if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
				t := time.Unix(unix, 0).UTC()
				s.LastSeenAt = &t
			}
		}
		s.LastSender = h["last_sender"]
		s.Total, _ = strconv.ParseInt(h["total"], 10, 64)
		s.Duplicates, _ = strconv.ParseInt(h["duplicates"], 10, 64)
	}

	for i, cmd := range hourly {
		v, err := cmd.Int64()
		if err != nil {
			continue
		}
		if i == 0 {
			s.EventsLastHour = v
		}
		s.EventsLast24h += v
	}

	if v, err := sendersCmd.Result(); err == nil {
		s.UniqueSendersToday = v
	}

	if instances, err := instancesCmd.Result(); err == nil {
		for id, lastSeen := range instances {
			if unix, err := strconv.ParseInt(lastSeen, 10, 64); err == nil {
				s.Instances[id] = time.Unix(unix, 0).UTC().Format(time.RFC3339)
			}
		}
	}

	return s, nil
}

// ListActive returns the event types delivered within since.
func (c *Client) ListActive(ctx context.Context, since time.Duration) ([]string, error) {
	cutoff := c.now().Add(-since).Unix()

	var types []string
	iter := c.redis.Scan(ctx, 0, statsPrefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		lastSeen, err := c.redis.HGet(ctx, key, "last_seen_at").Int64()
		if err == nil && lastSeen >= cutoff {
			types = append(types, strings.TrimPrefix(key, statsPrefix))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan event types: %w", err)
	}
	return types, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redis.Close()
}
