package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulwatch/haulwatch-stack/common/messaging"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
)

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []*messaging.Message
	err   error
	block bool
}

func (f *fakePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return f.PublishMsg(ctx, messaging.NewMessage(subject, data))
}

func (f *fakePublisher) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
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

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeDLQ struct {
	subjects []string
	msgs     []models.DispatchMessage
	causes   []error
}

func (f *fakeDLQ) Write(_ context.Context, subject string, msg models.DispatchMessage, cause error) error {
	f.subjects = append(f.subjects, subject)
	f.msgs = append(f.msgs, msg)
	f.causes = append(f.causes, cause)
	return nil
}

func ptr[T any](v T) *T { return &v }

func record(eventType string, lat, lon *float64) *models.LocationRecord {
	return &models.LocationRecord{
		ID:               "rec-1",
		EventType:        eventType,
		CreatedAt:        time.Date(2023, 8, 8, 18, 38, 23, 400_000_000, time.UTC),
		ProcessTimestamp: time.Date(2023, 8, 8, 18, 38, 25, 0, time.UTC),
		UserID:           ptr("user-1"),
		TripID:           ptr("trip-1"),
		Latitude:         lat,
		Longitude:        lon,
	}
}

func newDispatcher(t *testing.T, pub messaging.Publisher, policy Policy, opts ...Option) *Dispatcher {
	t.Helper()
	d, err := New(pub, policy, opts...)
	require.NoError(t, err)
	return d
}

func TestDispatch_NonNotableNeverPublishes(t *testing.T) {
	pub := &fakePublisher{}
	d := newDispatcher(t, pub, DefaultPolicy())

	for _, eventType := range []string{"user.updated_trip", "user.heartbeat", "USER.ENTERED_GEOFENCE", "user.entered_geofence "} {
		outcome := d.Dispatch(context.Background(), record(eventType, ptr(36.0), ptr(-119.3)), eventType)
		assert.Equal(t, OutcomeNotNotable, outcome, eventType)
	}
	assert.Equal(t, 0, pub.count())
}

func TestDispatch_GeofenceEntryPublishesOnce(t *testing.T) {
	pub := &fakePublisher{}
	d := newDispatcher(t, pub, DefaultPolicy())

	lat, lon := 36.00942850116281, -119.3056079094478
	outcome := d.Dispatch(context.Background(), record("user.entered_geofence", &lat, &lon), "user.entered_geofence")

	assert.Equal(t, OutcomePublished, outcome)
	require.Equal(t, 1, pub.count())

	msg := pub.msgs[0]
	assert.Equal(t, "fleet.locations.user.entered_geofence", msg.Subject)
	assert.Equal(t, "rec-1", msg.Metadata[messaging.HeaderMsgID])

	var body models.DispatchMessage
	require.NoError(t, json.Unmarshal(msg.Data, &body))
	assert.Equal(t, models.DispatchSchemaVersion, body.SchemaVersion)
	assert.Equal(t, "user.entered_geofence", body.EventType)
	assert.Equal(t, "user-1", *body.UserID)
	assert.Equal(t, "trip-1", *body.TripID)
	assert.Equal(t, lat, *body.Latitude)
	assert.Equal(t, lon, *body.Longitude)
	assert.True(t, body.CreatedAt.Equal(time.Date(2023, 8, 8, 18, 38, 23, 400_000_000, time.UTC)))
}

func TestDispatch_CustomNotableSetAndPrefix(t *testing.T) {
	pub := &fakePublisher{}
	policy := DefaultPolicy()
	policy.NotableTypes = []string{"user.arrived"}
	policy.SubjectPrefix = "acme.fleet"
	d := newDispatcher(t, pub, policy)

	assert.Equal(t, OutcomeNotNotable, d.Dispatch(context.Background(), record("user.entered_geofence", ptr(1.0), ptr(1.0)), "user.entered_geofence"))
	assert.Equal(t, OutcomePublished, d.Dispatch(context.Background(), record("user.arrived", ptr(1.0), ptr(1.0)), "user.arrived"))
	require.Equal(t, 1, pub.count())
	assert.Equal(t, "acme.fleet.user.arrived", pub.msgs[0].Subject)
}

func TestDispatch_CoordinatePolicy(t *testing.T) {
	tests := []struct {
		name       string
		missing    string
		nullIsland bool
		lat, lon   *float64
		want       Outcome
		wantCoords bool
	}{
		{"skip without coordinates", MissingCoordinatesSkip, true, nil, nil, OutcomeNoCoordinates, false},
		{"skip null island", MissingCoordinatesSkip, true, ptr(0.0), ptr(0.0), OutcomeNoCoordinates, false},
		{"null island allowed when not treated as missing", MissingCoordinatesSkip, false, ptr(0.0), ptr(0.0), OutcomePublished, true},
		{"publish without coordinates", MissingCoordinatesPublish, true, nil, nil, OutcomePublished, false},
		{"publish null island with coordinates cleared", MissingCoordinatesPublish, true, ptr(0.0), ptr(0.0), OutcomePublished, false},
		{"zero latitude only is a real fix", MissingCoordinatesSkip, true, ptr(0.0), ptr(-119.3), OutcomePublished, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			policy := DefaultPolicy()
			policy.MissingCoordinates = tt.missing
			policy.NullIslandAsMissing = tt.nullIsland
			d := newDispatcher(t, pub, policy)

			outcome := d.Dispatch(context.Background(), record("user.exited_geofence", tt.lat, tt.lon), "user.exited_geofence")
			assert.Equal(t, tt.want, outcome)

			if tt.want != OutcomePublished {
				assert.Equal(t, 0, pub.count())
				return
			}
			require.Equal(t, 1, pub.count())
			var body models.DispatchMessage
			require.NoError(t, json.Unmarshal(pub.msgs[0].Data, &body))
			assert.Equal(t, tt.wantCoords, body.Latitude != nil && body.Longitude != nil)
		})
	}
}

func TestDispatch_FailureIsDeadLettered(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: no responders")}
	dlq := &fakeDLQ{}
	d := newDispatcher(t, pub, DefaultPolicy(), WithDeadLetter(dlq))

	outcome := d.Dispatch(context.Background(), record("user.entered_geofence", ptr(1.0), ptr(2.0)), "user.entered_geofence")

	assert.Equal(t, OutcomeFailed, outcome)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "fleet.locations.user.entered_geofence", dlq.subjects[0])
	assert.Equal(t, "rec-1", dlq.msgs[0].EventID)
	assert.Equal(t, models.KindDispatchFailure, models.KindOf(dlq.causes[0]))
}

func TestDispatch_TimeoutIsBounded(t *testing.T) {
	pub := &fakePublisher{block: true}
	policy := DefaultPolicy()
	policy.Timeout = 30 * time.Millisecond
	d := newDispatcher(t, pub, policy)

	start := time.Now()
	outcome := d.Dispatch(context.Background(), record("user.entered_geofence", ptr(1.0), ptr(2.0)), "user.entered_geofence")

	assert.Equal(t, OutcomeFailed, outcome)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatch_DetachedFromRequestCancellation(t *testing.T) {
	pub := &fakePublisher{}
	d := newDispatcher(t, pub, DefaultPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := d.Dispatch(ctx, record("user.entered_geofence", ptr(1.0), ptr(2.0)), "user.entered_geofence")
	assert.Equal(t, OutcomePublished, outcome)
	assert.Equal(t, 1, pub.count())
}

func TestDispatch_NilPublisherDisables(t *testing.T) {
	d := newDispatcher(t, nil, DefaultPolicy())
	assert.Equal(t, OutcomeDisabled, d.Dispatch(context.Background(), record("user.entered_geofence", ptr(1.0), ptr(2.0)), "user.entered_geofence"))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	bad := DefaultPolicy()
	bad.MissingCoordinates = "drop"
	assert.Error(t, bad.Validate())

	bad = DefaultPolicy()
	bad.Timeout = 0
	assert.Error(t, bad.Validate())

	bad = DefaultPolicy()
	bad.NotableTypes = []string{"user.entered_geofence", " "}
	assert.Error(t, bad.Validate())

	_, err := New(nil, bad)
	assert.Error(t, err)
}
