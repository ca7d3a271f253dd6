// Package client talks to the webhook service over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookPath is the delivery endpoint of the webhook service.
const WebhookPath = "/webhook-endpoint"

type WebhookClient struct {
	baseURL string
	client  *http.Client
}

func NewWebhookClient(baseURL string) *WebhookClient {
	return &WebhookClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SendResult is the service's answer to one delivery.
type SendResult struct {
	StatusCode int    `json:"-"`
	Status     string `json:"status"`
	ID         string `json:"id,omitempty"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	Error      string `json:"error,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

func (r *SendResult) Accepted() bool {
	return r.Status == "accepted"
}

// Send posts payload as one delivery. Any HTTP response, including a
// rejection, is returned as a SendResult; only transport failures are errors.
func (c *WebhookClient) Send(ctx context.Context, payload []byte) (*SendResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+WebhookPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	res := &SendResult{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, res); err != nil {
		res.Status = "error"
		res.Error = "unexpected_response"
		res.Detail = strings.TrimSpace(string(body))
	}
	return res, nil
}

// Ready calls /readyz and returns an error unless the service is ready.
func (c *WebhookClient) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/readyz", nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("webhook not ready (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
