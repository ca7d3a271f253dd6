package messaging

import "strings"

// Subject constants for the haulwatch message bus.
// Follow the pattern: {domain}.{resource}.{event_type}
const (
	// SubjectFleetLocations prefixes every forwarded location event.
	// The full subject is SubjectFleetLocations + "." + event type.
	SubjectFleetLocations = "fleet.locations"

	// SubjectWebhookDLQ receives dispatch messages that failed to publish.
	SubjectWebhookDLQ = "webhook.dlq.dispatch"
)

// HeaderMsgID carries the deduplication id. JetStream honours it natively.
const HeaderMsgID = "Nats-Msg-Id"

// Queue and durable consumer names.
const (
	ConsumerDLQRedispatch = "webhook-dlq-redispatch"
)

// LocationSubject returns the subject a notable event is published on.
// Example: fleet.locations.user.entered_geofence
func LocationSubject(prefix, eventType string) string {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = SubjectFleetLocations
	}
	return prefix + "." + eventType
}
