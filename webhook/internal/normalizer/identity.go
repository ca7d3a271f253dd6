package normalizer

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
)

// recordNamespace scopes derived record ids.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://haulwatch.io/location-events"))

// RecordID returns the stable identity of a delivery. An explicit event._id
// wins. Otherwise the id is a UUIDv5 over trip id, createdAt and event type,
// so a redelivery of the same source event maps to the same row. Events
// without a trip fall back to the user id as the anchor.
func RecordID(env *models.WebhookEnvelope) string {
	ev := &env.Event
	if ev.ID != nil {
		if id := strings.TrimSpace(*ev.ID); id != "" {
			return id
		}
	}

	anchor := ""
	switch {
	case ev.User != nil && ev.User.Trip != nil && ev.User.Trip.ID != nil:
		anchor = "trip:" + *ev.User.Trip.ID
	case ev.User != nil && ev.User.ID != nil:
		anchor = "user:" + *ev.User.ID
	}

	key := anchor + "|" + ev.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + ev.Type
	return uuid.NewSHA1(recordNamespace, []byte(key)).String()
}
