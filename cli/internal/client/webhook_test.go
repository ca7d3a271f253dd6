package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebhookClient(t *testing.T) {
	c := NewWebhookClient("http://localhost:8080/")

	assert.Equal(t, "http://localhost:8080", c.baseURL)
	assert.Equal(t, 10*time.Second, c.client.Timeout)
}

func TestSend_Accepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, WebhookPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":{"type":"x"}}`, string(body))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"status":"accepted","id":"abc","duplicate":false}`))
	}))
	defer server.Close()

	res, err := NewWebhookClient(server.URL).Send(context.Background(), []byte(`{"event":{"type":"x"}}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.True(t, res.Accepted())
	assert.Equal(t, "abc", res.ID)
	assert.False(t, res.Duplicate)
}

func TestSend_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"rejected","error":"schema_violation","detail":"event.type: required"}`))
	}))
	defer server.Close()

	res, err := NewWebhookClient(server.URL).Send(context.Background(), []byte(`{}`))
	require.NoError(t, err)

	assert.False(t, res.Accepted())
	assert.Equal(t, "schema_violation", res.Error)
	assert.Equal(t, "event.type: required", res.Detail)
}

func TestSend_NonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	res, err := NewWebhookClient(server.URL).Send(context.Background(), []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
	assert.Equal(t, "unexpected_response", res.Error)
	assert.Equal(t, "bad gateway", res.Detail)
}

func TestSend_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewWebhookClient(url).Send(context.Background(), []byte(`{}`))
	assert.Error(t, err)
}

func TestReady(t *testing.T) {
	ready := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/readyz", r.URL.Path)
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not_ready"}`))
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	}))
	defer server.Close()

	c := NewWebhookClient(server.URL)
	assert.NoError(t, c.Ready(context.Background()))

	ready = false
	err := c.Ready(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
