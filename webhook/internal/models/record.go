package models

import "time"

// LocationRecord is the flat analytical row stored for every accepted
// delivery. Pointer fields are nullable columns and stay nil when the source
// did not carry them.
type LocationRecord struct {
	ID               string     `json:"id"`
	CreatedAt        time.Time  `json:"created_at"`
	Live             bool       `json:"live"`
	EventType        string     `json:"event_type"`
	UserID           *string    `json:"user_id"`
	MMUserID         *string    `json:"mm_user_id"`
	Latitude         *float64   `json:"latitude"`
	Longitude        *float64   `json:"longitude"`
	TripID           *string    `json:"trip_id"`
	TripExternalID   *string    `json:"trip_external_id"`
	TripCreatedAt    *time.Time `json:"trip_created_at"`
	TripUpdatedAt    *time.Time `json:"trip_updated_at"`
	TripStartedAt    *time.Time `json:"trip_started_at"`
	TripMMUserID     *string    `json:"trip_mm_user_id"`
	RouteSessionType *string    `json:"route_session_type"`
	ProcessTimestamp time.Time  `json:"process_timestamp"`
	ProcessHour      time.Time  `json:"process_hour"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (r *LocationRecord) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// IsNullIsland reports whether the record sits exactly on (0, 0), which some
// devices send when they have no fix.
func (r *LocationRecord) IsNullIsland() bool {
	return r.HasCoordinates() && *r.Latitude == 0 && *r.Longitude == 0
}
