package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// runJetStreamServer starts an in-process nats-server with JetStream and
// returns its client URL.
func runJetStreamServer(t *testing.T) string {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		t.Fatalf("create nats server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns.ClientURL()
}

func newTestJetStream(t *testing.T) *JetStreamClient {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URL = runJetStreamServer(t)
	cfg.MaxReconnects = 0

	js, err := NewJetStreamClient(cfg)
	if err != nil {
		t.Fatalf("connect jetstream: %v", err)
	}
	t.Cleanup(func() { js.Close() })
	return js
}
