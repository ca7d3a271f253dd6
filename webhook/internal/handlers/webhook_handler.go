package handlers

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/haulwatch/haulwatch-stack/common/httputil"
	"github.com/haulwatch/haulwatch-stack/common/logging"
	"github.com/haulwatch/haulwatch-stack/common/messaging"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/ratelimit"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/service"
)

// Processor runs one delivery through the pipeline.
type Processor interface {
	Process(ctx context.Context, body []byte) (*service.Result, error)
	Ready(ctx context.Context) error
}

// Recorder counts accepted deliveries per event type.
type Recorder interface {
	Record(eventType string, duplicate bool, sender string)
}

type WebhookHandler struct {
	pipeline    Processor
	limiter     ratelimit.RateLimiter
	publisher   messaging.Publisher
	recorder    Recorder
	maxBodySize int64
	logger      *logging.Logger
}

type acceptedResponse struct {
	Status    string `json:"status"`
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// NewWebhookHandler wires the endpoint. limiter and publisher may be nil;
// a nil publisher leaves the bus out of readiness.
func NewWebhookHandler(p Processor, limiter ratelimit.RateLimiter, publisher messaging.Publisher, maxBodySize int64, logger *logging.Logger) *WebhookHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		pipeline:    p,
		limiter:     limiter,
		publisher:   publisher,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

// UseRecorder reports every accepted delivery to r.
func (h *WebhookHandler) UseRecorder(r Recorder) {
	h.recorder = r
}

// HandleWebhook accepts one location event per request.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	clientIP := getClientIP(r)
	allowed, err := h.limiter.Allow(r.Context(), clientIP)
	if err != nil {
		// Fail open when Redis is unreachable.
		h.logger.WarnContext(r.Context(), "rate limiter unavailable", logging.Error(err))
	} else if !allowed {
		h.logger.WarnContext(r.Context(), "rate limit exceeded", logging.RemoteAddr(clientIP))
		httputil.WriteError(w, http.StatusTooManyRequests, "rate_limited", "")
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, string(models.KindMalformedPayload), "failed to read body")
		return
	}

	res, err := h.pipeline.Process(r.Context(), body)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.Record(res.EventType, res.Duplicate, clientIP)
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, acceptedResponse{
		Status:    "accepted",
		ID:        res.ID,
		Duplicate: res.Duplicate,
	})
}

func (h *WebhookHandler) writePipelineError(w http.ResponseWriter, err error) {
	var pe *models.PipelineError
	if !errors.As(err, &pe) {
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	if pe.Kind.Permanent() {
		httputil.WriteError(w, http.StatusBadRequest, string(pe.Kind), pe.Detail())
		return
	}
	// Storage details stay in the logs.
	httputil.WriteError(w, http.StatusInternalServerError, string(pe.Kind), "")
}

func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready checks the sink and, when a bus is configured, the broker connection.
func (h *WebhookHandler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ready"}
	status := http.StatusOK

	if err := h.pipeline.Ready(r.Context()); err != nil {
		resp["sink"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		resp["sink"] = "ok"
	}

	if h.publisher != nil {
		bus := messaging.CheckPublisherHealth(r.Context(), h.publisher)
		resp["bus"] = bus
		if !bus.Connected {
			status = http.StatusServiceUnavailable
		}
	}

	if status != http.StatusOK {
		resp["status"] = "not_ready"
	}
	httputil.WriteJSON(w, status, resp)
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
