package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WebhookEnvelope is one location-update delivery as pushed by the
// telematics provider. Every level below Event is optional.
type WebhookEnvelope struct {
	Event Event `json:"event"`
}

// Event is the body of a delivery. Type and CreatedAt are required.
type Event struct {
	// ID is an explicit external id. When set it is the record identity.
	ID        *string   `json:"_id,omitempty"`
	Type      string    `json:"type"`
	CreatedAt Timestamp `json:"createdAt"`
	Live      *FlexBool `json:"live,omitempty"`
	Location  *GeoPoint `json:"location,omitempty"`
	User      *User     `json:"user,omitempty"`
}

// GeoPoint is a GeoJSON Point. Coordinates are kept raw because their
// shape is validated by the normalizer, not the decoder.
type GeoPoint struct {
	Type        *string         `json:"type,omitempty"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
}

type User struct {
	ID        *string    `json:"_id,omitempty"`
	MMUserID  *string    `json:"MMUserId,omitempty"`
	UpdatedAt *Timestamp `json:"updatedAt,omitempty"`
	Trip      *Trip      `json:"trip,omitempty"`
}

type Trip struct {
	ID         *string       `json:"_id,omitempty"`
	CreatedAt  *Timestamp    `json:"createdAt,omitempty"`
	UpdatedAt  *Timestamp    `json:"updatedAt,omitempty"`
	StartedAt  *Timestamp    `json:"startedAt,omitempty"`
	ExternalID *string       `json:"externalId,omitempty"`
	MMUserID   *string       `json:"MMUserId,omitempty"`
	Metadata   *TripMetadata `json:"metadata,omitempty"`
}

type TripMetadata struct {
	RouteSessionType *string `json:"route_session_type,omitempty"`
	RouteSessionID   *string `json:"route_session_id,omitempty"`
}

// Timestamp decodes an RFC 3339 string, with or without fractional seconds.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON leaves t untouched on null, matching encoding/json's
// treatment of absent values.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string, got %s", data)
	}

	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// ParseTimestamp parses s as RFC 3339 and returns it in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid RFC 3339 timestamp %q", s)
	}
	return parsed.UTC(), nil
}

// Ptr returns the time held by t, or nil when t is nil.
func (t *Timestamp) Ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}

// FlexBool accepts a JSON boolean or the strings "TRUE"/"true"/"FALSE"/"false".
// The provider has sent both over time.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = FlexBool(v)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("live must be a boolean or string, got %s", data)
	}
	switch strings.ToLower(s) {
	case "true":
		*b = true
	case "false", "":
		*b = false
	default:
		return fmt.Errorf("live has unrecognised value %q", s)
	}
	return nil
}

// Bool reports the flag value. A nil flag is false.
func (b *FlexBool) Bool() bool {
	return b != nil && bool(*b)
}
