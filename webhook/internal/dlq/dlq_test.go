package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulwatch/haulwatch-stack/common/messaging"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
)

type capturedPublish struct {
	subject string
	data    []byte
}

type fakeSyncPublisher struct {
	mu   sync.Mutex
	msgs []capturedPublish
	err  error
}

func (f *fakeSyncPublisher) PublishSync(_ context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, capturedPublish{subject: subject, data: data})
	return &jetstream.PubAck{Stream: "WEBHOOK_DLQ", Sequence: uint64(len(f.msgs))}, nil
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*messaging.Message
	err  error
}

func (f *fakePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return f.PublishMsg(ctx, messaging.NewMessage(subject, data))
}

func (f *fakePublisher) PublishMsg(_ context.Context, msg *messaging.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakePublisher) IsConnected() bool { return true }
func (f *fakePublisher) Close() error      { return nil }

func sampleMessage() models.DispatchMessage {
	user, trip := "user-1", "trip-1"
	lat, lon := 36.00942850116281, -119.3056079094478
	return models.DispatchMessage{
		SchemaVersion:    models.DispatchSchemaVersion,
		EventID:          "evt-1",
		EventType:        "user.entered_geofence",
		UserID:           &user,
		TripID:           &trip,
		Latitude:         &lat,
		Longitude:        &lon,
		CreatedAt:        time.Date(2023, 8, 8, 18, 38, 23, 400_000_000, time.UTC),
		ProcessTimestamp: time.Date(2023, 8, 8, 18, 38, 25, 0, time.UTC),
	}
}

func TestJetStreamQueue_Write(t *testing.T) {
	pub := &fakeSyncPublisher{}
	q := newQueue(pub, nil, nil)

	err := q.Write(context.Background(), "fleet.locations.user.entered_geofence", sampleMessage(), errors.New("nats: timeout"))
	require.NoError(t, err)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, messaging.SubjectWebhookDLQ, pub.msgs[0].subject)

	var got FailedDispatch
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	assert.Equal(t, "fleet.locations.user.entered_geofence", got.Subject)
	assert.Equal(t, "nats: timeout", got.Error)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "evt-1", got.Message.EventID)
	assert.False(t, got.Timestamp.IsZero())

	stats := q.Stats(context.Background())
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, uint64(1), stats["written_local"])
}

func TestJetStreamQueue_WritePublishError(t *testing.T) {
	pub := &fakeSyncPublisher{err: errors.New("no responders")}
	q := newQueue(pub, nil, nil)

	err := q.Write(context.Background(), "fleet.locations.x", sampleMessage(), errors.New("boom"))
	assert.Error(t, err)
	assert.Equal(t, uint64(0), q.written.Load())
}

func TestJetStreamQueue_NilQueue(t *testing.T) {
	var q *JetStreamQueue

	assert.NoError(t, q.Write(context.Background(), "s", sampleMessage(), nil))
	assert.Equal(t, false, q.Stats(context.Background())["enabled"])

	_, err := q.List(context.Background(), 10)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, q.Purge(context.Background()), ErrDisabled)
}

func TestRedispatcher_Handle(t *testing.T) {
	target := &fakePublisher{}
	r := NewRedispatcher(target, nil)

	data, err := json.Marshal(FailedDispatch{
		Subject:  "fleet.locations.user.entered_geofence",
		Message:  sampleMessage(),
		Error:    "timeout",
		Attempts: 1,
	})
	require.NoError(t, err)

	err = r.Handle(context.Background(), &messaging.Message{Subject: messaging.SubjectWebhookDLQ, Data: data})
	require.NoError(t, err)

	require.Len(t, target.msgs, 1)
	out := target.msgs[0]
	assert.Equal(t, "fleet.locations.user.entered_geofence", out.Subject)
	assert.Equal(t, "evt-1", out.Metadata[messaging.HeaderMsgID])

	var msg models.DispatchMessage
	require.NoError(t, json.Unmarshal(out.Data, &msg))
	assert.Equal(t, sampleMessage(), msg)
}

func TestRedispatcher_HandleRepublishFailure(t *testing.T) {
	target := &fakePublisher{err: errors.New("disconnected")}
	r := NewRedispatcher(target, nil)

	data, _ := json.Marshal(FailedDispatch{Subject: "fleet.locations.x", Message: sampleMessage()})
	err := r.Handle(context.Background(), &messaging.Message{Data: data})
	assert.Error(t, err)
}

func TestRedispatcher_HandleDropsGarbage(t *testing.T) {
	target := &fakePublisher{}
	r := NewRedispatcher(target, nil)

	for _, body := range []string{`not json`, `{}`} {
		err := r.Handle(context.Background(), &messaging.Message{Data: []byte(body)})
		assert.NoError(t, err, body)
	}
	assert.Empty(t, target.msgs)
}
