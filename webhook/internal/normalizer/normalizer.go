// Package normalizer flattens a WebhookEnvelope into a LocationRecord.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/haulwatch/haulwatch-stack/webhook/internal/metrics"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
)

const (
	fieldLocationType   = "event.location.type"
	fieldCoordinates    = "event.location.coordinates"
	geoJSONPointTypeTag = "Point"
)

// Normalizer is stateless apart from its policy and is safe for concurrent use.
type Normalizer struct {
	// RelaxedGeometry accepts events with a malformed location, leaving
	// latitude and longitude unset instead of rejecting the delivery.
	RelaxedGeometry bool
	Logger          *slog.Logger
}

func New(relaxedGeometry bool, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{RelaxedGeometry: relaxedGeometry, Logger: logger}
}

// Normalize produces every record field except ProcessTimestamp,
// ProcessHour and Live, which belong to the enricher. Missing user, trip or
// location leave their fields nil.
func (n *Normalizer) Normalize(env *models.WebhookEnvelope) (*models.LocationRecord, error) {
	if env == nil {
		return nil, models.NewError(models.KindSchemaViolation, "event", errors.New("envelope is nil"))
	}
	ev := &env.Event

	rec := &models.LocationRecord{
		ID:        RecordID(env),
		CreatedAt: ev.CreatedAt.UTC(),
		EventType: ev.Type,
	}

	lat, lon, err := coordinates(ev.Location)
	if err != nil {
		if !n.RelaxedGeometry {
			return nil, err
		}
		metrics.RelaxedGeometry.Inc()
		n.logger().Warn("accepting event without coordinates",
			slog.String("record_id", rec.ID),
			slog.String("event_type", rec.EventType),
			slog.String("error", err.Error()))
	} else {
		rec.Latitude, rec.Longitude = lat, lon
	}

	if user := ev.User; user != nil {
		rec.UserID = user.ID
		rec.MMUserID = user.MMUserID

		if trip := user.Trip; trip != nil {
			rec.TripID = trip.ID
			rec.TripExternalID = trip.ExternalID
			rec.TripCreatedAt = trip.CreatedAt.Ptr()
			rec.TripUpdatedAt = trip.UpdatedAt.Ptr()
			rec.TripStartedAt = trip.StartedAt.Ptr()
			rec.TripMMUserID = trip.MMUserID
			if trip.Metadata != nil {
				rec.RouteSessionType = trip.Metadata.RouteSessionType
			}
		}
	}

	return rec, nil
}

func (n *Normalizer) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

// coordinates returns (latitude, longitude) from a GeoJSON [lon, lat] pair.
// An absent location or coordinate array yields (nil, nil, nil).
func coordinates(loc *models.GeoPoint) (*float64, *float64, error) {
	if loc == nil {
		return nil, nil, nil
	}
	if loc.Type != nil && *loc.Type != geoJSONPointTypeTag {
		return nil, nil, models.NewError(models.KindInvalidGeometry, fieldLocationType,
			fmt.Errorf("expected %q, got %q", geoJSONPointTypeTag, *loc.Type))
	}
	if len(loc.Coordinates) == 0 || string(loc.Coordinates) == "null" {
		return nil, nil, nil
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(loc.Coordinates, &pair); err != nil {
		return nil, nil, models.NewError(models.KindInvalidGeometry, fieldCoordinates, errors.New("must be an array"))
	}
	if len(pair) != 2 {
		return nil, nil, models.NewError(models.KindInvalidGeometry, fieldCoordinates,
			fmt.Errorf("expected 2 elements, got %d", len(pair)))
	}

	var values [2]float64
	for i, raw := range pair {
		if string(raw) == "null" {
			return nil, nil, models.NewError(models.KindInvalidGeometry, fieldCoordinates,
				fmt.Errorf("element %d is null", i))
		}
		if err := json.Unmarshal(raw, &values[i]); err != nil {
			return nil, nil, models.NewError(models.KindInvalidGeometry, fieldCoordinates,
				fmt.Errorf("element %d is not a number", i))
		}
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			return nil, nil, models.NewError(models.KindInvalidGeometry, fieldCoordinates,
				fmt.Errorf("element %d is not finite", i))
		}
	}

	// GeoJSON order is [longitude, latitude].
	lon, lat := values[0], values[1]
	if lat < -90 || lat > 90 {
		return nil, nil, models.NewError(models.KindInvalidGeometry, fieldCoordinates,
			fmt.Errorf("latitude %v out of range [-90, 90]", lat))
	}
	if lon < -180 || lon > 180 {
		return nil, nil, models.NewError(models.KindInvalidGeometry, fieldCoordinates,
			fmt.Errorf("longitude %v out of range [-180, 180]", lon))
	}
	return &lat, &lon, nil
}
