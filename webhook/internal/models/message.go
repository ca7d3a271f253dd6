package models

import "time"

// DispatchSchemaVersion is bumped on any incompatible change to DispatchMessage.
const DispatchSchemaVersion = 1

// DispatchMessage is the compact message published for notable event types.
type DispatchMessage struct {
	SchemaVersion    int       `json:"schema_version"`
	EventID          string    `json:"event_id"`
	EventType        string    `json:"event_type"`
	UserID           *string   `json:"user_id"`
	TripID           *string   `json:"trip_id"`
	Latitude         *float64  `json:"latitude"`
	Longitude        *float64  `json:"longitude"`
	CreatedAt        time.Time `json:"created_at"`
	ProcessTimestamp time.Time `json:"process_timestamp"`
	RouteSessionType *string   `json:"route_session_type,omitempty"`
}

// NewDispatchMessage builds the bus message for rec.
func NewDispatchMessage(rec *LocationRecord) DispatchMessage {
	return DispatchMessage{
		SchemaVersion:    DispatchSchemaVersion,
		EventID:          rec.ID,
		EventType:        rec.EventType,
		UserID:           rec.UserID,
		TripID:           rec.TripID,
		Latitude:         rec.Latitude,
		Longitude:        rec.Longitude,
		CreatedAt:        rec.CreatedAt,
		ProcessTimestamp: rec.ProcessTimestamp,
		RouteSessionType: rec.RouteSessionType,
	}
}
