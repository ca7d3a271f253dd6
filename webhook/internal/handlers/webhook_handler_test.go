package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulwatch/haulwatch-stack/common/httputil"
	"github.com/haulwatch/haulwatch-stack/common/logging"
	"github.com/haulwatch/haulwatch-stack/common/messaging"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/dispatcher"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/enricher"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/normalizer"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/service"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/sink"
)

const validPayload = `{"event":{"type":"user.entered_geofence","createdAt":"2023-08-08T18:38:23.4Z","live":"TRUE","location":{"type":"Point","coordinates":[-119.3056079094478,36.00942850116281]},"user":{"_id":"u1","trip":{"_id":"t1"}}}}`

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.err
}

func (s *stubLimiter) Close() error { return nil }

type stubPublisher struct {
	connected bool
	published int
}

func (p *stubPublisher) Publish(context.Context, string, []byte) error { p.published++; return nil }
func (p *stubPublisher) PublishMsg(context.Context, *messaging.Message) error {
	p.published++
	return nil
}
func (p *stubPublisher) IsConnected() bool { return p.connected }
func (p *stubPublisher) Close() error      { return nil }

type failingPinger struct {
	*sink.MemorySink
}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type fixture struct {
	handler *WebhookHandler
	mem     *sink.MemorySink
	pub     *stubPublisher
	limiter *stubLimiter
}

func newFixture(t *testing.T, s sink.Sink) *fixture {
	t.Helper()
	mem := sink.NewMemory()
	if s == nil {
		s = mem
	}
	pub := &stubPublisher{connected: true}
	d, err := dispatcher.New(pub, dispatcher.DefaultPolicy())
	require.NoError(t, err)

	p := service.New(s,
		normalizer.New(false, nil),
		enricher.New(enricher.NewFixedClock(time.Date(2023, 8, 8, 18, 38, 25, 0, time.UTC))),
		d,
		service.WithLogger(logging.Discard()))

	limiter := &stubLimiter{allowed: true}
	return &fixture{
		handler: NewWebhookHandler(p, limiter, pub, 1024, logging.Discard()),
		mem:     mem,
		pub:     pub,
		limiter: limiter,
	}
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook-endpoint", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandleWebhook_Accepted(t *testing.T) {
	f := newFixture(t, nil)

	rec := post(f.handler.HandleWebhook, validPayload)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp acceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.NotEmpty(t, resp.ID)
	assert.False(t, resp.Duplicate)

	assert.Equal(t, 1, f.mem.Len())
	assert.Equal(t, 1, f.pub.published)
	assert.Equal(t, []string{"203.0.113.7"}, f.limiter.keys)
}

func TestHandleWebhook_Duplicate(t *testing.T) {
	f := newFixture(t, nil)

	first := post(f.handler.HandleWebhook, validPayload)
	require.Equal(t, http.StatusCreated, first.Code)

	second := post(f.handler.HandleWebhook, validPayload)
	require.Equal(t, http.StatusOK, second.Code)

	var resp acceptedResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.True(t, resp.Duplicate)
	assert.Equal(t, 1, f.pub.published)
}

type recordedDelivery struct {
	eventType string
	duplicate bool
	sender    string
}

type stubRecorder struct {
	got []recordedDelivery
}

func (r *stubRecorder) Record(eventType string, duplicate bool, sender string) {
	r.got = append(r.got, recordedDelivery{eventType, duplicate, sender})
}

func TestHandleWebhook_RecordsAcceptedDeliveries(t *testing.T) {
	f := newFixture(t, nil)
	rec := &stubRecorder{}
	f.handler.UseRecorder(rec)

	require.Equal(t, http.StatusCreated, post(f.handler.HandleWebhook, validPayload).Code)
	require.Equal(t, http.StatusOK, post(f.handler.HandleWebhook, validPayload).Code)
	require.Equal(t, http.StatusBadRequest, post(f.handler.HandleWebhook, `{"event":`).Code)

	assert.Equal(t, []recordedDelivery{
		{"user.entered_geofence", false, "203.0.113.7"},
		{"user.entered_geofence", true, "203.0.113.7"},
	}, rec.got)
}

func TestHandleWebhook_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind string
	}{
		{"malformed", `{"event":`, "malformed_payload"},
		{"schema", `{"event":{"type":"x"}}`, "schema_violation"},
		{"geometry", `{"event":{"type":"x","createdAt":"2023-08-08T18:38:23Z","location":{"type":"Point","coordinates":[1]}}}`, "invalid_geometry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			rec := post(f.handler.HandleWebhook, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body httputil.ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "rejected", body.Status)
			assert.Equal(t, tt.kind, body.Error)
			assert.NotEmpty(t, body.Detail)
			assert.Equal(t, 0, f.mem.Len())
		})
	}
}

func TestHandleWebhook_PersistenceFailure(t *testing.T) {
	mem := sink.NewMemory()
	mem.FailWith = errors.New("password authentication failed")
	f := newFixture(t, mem)

	rec := post(f.handler.HandleWebhook, validPayload)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body httputil.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "persistence_failure", body.Error)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Equal(t, 0, f.pub.published)
}

func TestHandleWebhook_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhook-endpoint", nil)
	rec := httptest.NewRecorder()
	f.handler.HandleWebhook(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestHandleWebhook_BodyTooLarge(t *testing.T) {
	f := newFixture(t, nil)

	rec := post(f.handler.HandleWebhook, `{"event":{"type":"`+strings.Repeat("x", 2048)+`"}}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, f.mem.Len())
}

func TestHandleWebhook_RateLimited(t *testing.T) {
	f := newFixture(t, nil)
	f.limiter.allowed = false

	rec := post(f.handler.HandleWebhook, validPayload)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 0, f.mem.Len())
}

func TestHandleWebhook_RateLimiterErrorFailsOpen(t *testing.T) {
	f := newFixture(t, nil)
	f.limiter.allowed = false
	f.limiter.err = errors.New("redis down")

	rec := post(f.handler.HandleWebhook, validPayload)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.handler.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReady(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := httptest.NewRecorder()
		f.handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bus disconnected", func(t *testing.T) {
		f := newFixture(t, nil)
		f.pub.connected = false
		rec := httptest.NewRecorder()
		f.handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "not_ready")
	})

	t.Run("sink down", func(t *testing.T) {
		f := newFixture(t, failingPinger{sink.NewMemory()})
		rec := httptest.NewRecorder()
		f.handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "10.0.0.2:1", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.2:1", "198.51.100.2"},
		{"remote addr", nil, "192.0.2.5:4431", "192.0.2.5"},
		{"remote without port", nil, "192.0.2.5", "192.0.2.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestWritePipelineError_StatusFollowsKind(t *testing.T) {
	tests := []struct {
		kind   models.ErrorKind
		status int
	}{
		{models.KindMalformedPayload, http.StatusBadRequest},
		{models.KindSchemaViolation, http.StatusBadRequest},
		{models.KindInvalidGeometry, http.StatusBadRequest},
		{models.KindPersistenceFailure, http.StatusInternalServerError},
		{models.KindDispatchFailure, http.StatusInternalServerError},
	}
	h := &WebhookHandler{}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writePipelineError(rec, models.NewError(tt.kind, "event.type", errors.New("boom")))
			require.Equal(t, tt.status, rec.Code)

			var body httputil.ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, string(tt.kind), body.Error)
			if tt.status == http.StatusInternalServerError {
				assert.Empty(t, body.Detail)
			}
		})
	}

	rec := httptest.NewRecorder()
	h.writePipelineError(rec, errors.New("plain"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
