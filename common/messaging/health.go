package messaging

import (
	"context"
	"time"
)

// HealthStatus represents the health state of a messaging connection.
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// CheckPublisherHealth reports whether p is connected. A nil publisher is
// reported as unhealthy.
func CheckPublisherHealth(ctx context.Context, p Publisher) HealthStatus {
	status := HealthStatus{}

	if p == nil {
		status.Error = "publisher is nil"
		return status
	}
	if err := ctx.Err(); err != nil {
		status.Error = err.Error()
		return status
	}

	start := time.Now()
	status.Connected = p.IsConnected()
	status.Latency = time.Since(start)
	if !status.Connected {
		status.Error = "not connected to message broker"
	}
	return status
}
