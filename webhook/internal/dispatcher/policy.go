package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/haulwatch/haulwatch-stack/common/messaging"
)

// Missing coordinate policies for notable events.
const (
	MissingCoordinatesSkip    = "skip"
	MissingCoordinatesPublish = "publish"
)

// DefaultNotableTypes are forwarded when no explicit set is configured.
var DefaultNotableTypes = []string{
	"user.entered_geofence",
	"user.exited_geofence",
}

// Policy controls which records are forwarded and how.
type Policy struct {
	NotableTypes  []string
	SubjectPrefix string
	Timeout       time.Duration

	// MissingCoordinates is "skip" or "publish".
	MissingCoordinates string

	// NullIslandAsMissing treats an exact (0, 0) as having no coordinates
	// for the dispatch decision. The stored row is unaffected.
	NullIslandAsMissing bool
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		NotableTypes:        append([]string(nil), DefaultNotableTypes...),
		SubjectPrefix:       messaging.SubjectFleetLocations,
		Timeout:             2 * time.Second,
		MissingCoordinates:  MissingCoordinatesSkip,
		NullIslandAsMissing: true,
	}
}

// Validate reports configuration mistakes.
func (p Policy) Validate() error {
	switch p.MissingCoordinates {
	case MissingCoordinatesSkip, MissingCoordinatesPublish:
	default:
		return fmt.Errorf("dispatch.missing_coordinates must be %q or %q, got %q",
			MissingCoordinatesSkip, MissingCoordinatesPublish, p.MissingCoordinates)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("dispatch.timeout must be positive, got %s", p.Timeout)
	}
	for _, t := range p.NotableTypes {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("dispatch.notable_types contains an empty entry")
		}
	}
	return nil
}
