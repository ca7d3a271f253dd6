package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/haulwatch/haulwatch-stack/common/database"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
)

// OpenSearchConfig configures the OpenSearch sink.
type OpenSearchConfig struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string

	// Refresh is passed to create requests: "false", "true" or "wait_for".
	Refresh string
	Timeout time.Duration
}

// OpenSearchSink indexes one document per record with the record id as
// document _id. Creation uses op_type=create so a duplicate id is rejected
// with 409 instead of overwriting.
type OpenSearchSink struct {
	client *opensearch.Client
	cfg    OpenSearchConfig
}

func NewOpenSearch(cfg OpenSearchConfig) (*OpenSearchSink, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	if cfg.Refresh == "" {
		cfg.Refresh = "false"
	}
	return &OpenSearchSink{client: client, cfg: cfg}, nil
}

// Index returns the name of the index records are written to.
func (s *OpenSearchSink) Index() string {
	return s.cfg.IndexPrefix + "-" + database.LocationEventsTable
}

// EnsureIndex creates the index with explicit mappings when it is missing.
func (s *OpenSearchSink) EnsureIndex(ctx context.Context) error {
	exists, err := s.client.Indices.Exists([]string{s.Index()}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", s.Index(), err)
	}
	defer exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": locationMappings(),
	})
	if err != nil {
		return err
	}

	res, err := s.client.Indices.Create(s.Index(),
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", s.Index(), err)
	}
	defer res.Body.Close()

	if !res.IsError() {
		return nil
	}
	msg, _ := io.ReadAll(res.Body)
	// Another instance may have won the race.
	if res.StatusCode == http.StatusBadRequest && indexAlreadyExists(msg) {
		return nil
	}
	return fmt.Errorf("create index %s: %s - %s", s.Index(), res.Status(), msg)
}

func indexAlreadyExists(body []byte) bool {
	var resp struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false
	}
	return resp.Error.Type == "resource_already_exists_exception"
}

func (s *OpenSearchSink) Append(ctx context.Context, rec *models.LocationRecord) (bool, error) {
	ctx, cancel := database.WriteContext(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(rec)
	if err != nil {
		return false, persistenceError(BackendOpenSearch, "marshal", err)
	}

	res, err := s.client.Create(s.Index(), rec.ID, bytes.NewReader(data),
		s.client.Create.WithContext(ctx),
		s.client.Create.WithRefresh(s.cfg.Refresh),
	)
	if err != nil {
		return false, persistenceError(BackendOpenSearch, "create", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusConflict:
		return false, nil
	case res.IsError():
		msg, _ := io.ReadAll(res.Body)
		return false, persistenceError(BackendOpenSearch, "create", fmt.Errorf("%s: %s", res.Status(), msg))
	}
	return true, nil
}

func (s *OpenSearchSink) Get(ctx context.Context, id string) (*models.LocationRecord, error) {
	ctx, cancel := database.QueryContext(ctx, s.cfg.Timeout)
	defer cancel()

	res, err := s.client.Get(s.Index(), id, s.client.Get.WithContext(ctx))
	if err != nil {
		return nil, persistenceError(BackendOpenSearch, "get", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.IsError() {
		return nil, persistenceError(BackendOpenSearch, "get", errors.New(res.Status()))
	}

	var doc struct {
		Found  bool                  `json:"found"`
		Source models.LocationRecord `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, persistenceError(BackendOpenSearch, "decode", err)
	}
	if !doc.Found {
		return nil, ErrNotFound
	}
	normalizeTimes(&doc.Source)
	return &doc.Source, nil
}

func (s *OpenSearchSink) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := database.QueryContext(ctx, s.cfg.Timeout)
	defer cancel()

	res, err := s.client.Exists(s.Index(), id, s.client.Exists.WithContext(ctx))
	if err != nil {
		return false, persistenceError(BackendOpenSearch, "exists", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, persistenceError(BackendOpenSearch, "exists", errors.New(res.Status()))
}

func (s *OpenSearchSink) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch ping: %s", res.Status())
	}
	return nil
}

func (s *OpenSearchSink) Close() error { return nil }

func locationMappings() map[string]any {
	keyword := map[string]any{"type": "keyword"}
	date := map[string]any{"type": "date"}
	double := map[string]any{"type": "double"}

	return map[string]any{
		"dynamic": "strict",
		"properties": map[string]any{
			"id":                 keyword,
			"created_at":         date,
			"live":               map[string]any{"type": "boolean"},
			"event_type":         keyword,
			"user_id":            keyword,
			"mm_user_id":         keyword,
			"latitude":           double,
			"longitude":          double,
			"trip_id":            keyword,
			"trip_external_id":   keyword,
			"trip_created_at":    date,
			"trip_updated_at":    date,
			"trip_started_at":    date,
			"trip_mm_user_id":    keyword,
			"route_session_type": keyword,
			"process_timestamp":  date,
			"process_hour":       date,
		},
	}
}
