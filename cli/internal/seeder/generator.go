// Package seeder generates synthetic provider payloads for local testing.
package seeder

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// DefaultEventTypes mixes notable geofence transitions with trip updates.
var DefaultEventTypes = []string{
	"user.entered_geofence",
	"user.exited_geofence",
	"user.updated_trip",
	"user.started_trip",
	"user.stopped_trip",
}

var routeSessionTypes = []string{"pickup", "dropoff", "linehaul", "return"}

type Options struct {
	EventTypes []string

	// Probability that an event carries a user, a trip (given a user) and a
	// location.
	UserRatio     float64
	TripRatio     float64
	LocationRatio float64

	// Users is the size of the simulated fleet; events reuse these drivers.
	Users int

	Start time.Time
	End   time.Time

	// Bounding box for generated positions.
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// DefaultOptions covers the last 24 hours over central California.
func DefaultOptions() Options {
	end := time.Now().UTC()
	return Options{
		EventTypes:    append([]string(nil), DefaultEventTypes...),
		UserRatio:     0.95,
		TripRatio:     0.8,
		LocationRatio: 0.9,
		Users:         25,
		Start:         end.Add(-24 * time.Hour),
		End:           end,
		MinLat:        35.0,
		MaxLat:        37.5,
		MinLon:        -121.0,
		MaxLon:        -118.5,
	}
}

func (o Options) Validate() error {
	if len(o.EventTypes) == 0 {
		return fmt.Errorf("at least one event type is required")
	}
	if o.Users <= 0 {
		return fmt.Errorf("users must be positive")
	}
	if !o.End.After(o.Start) {
		return fmt.Errorf("end must be after start")
	}
	if o.MinLat < -90 || o.MaxLat > 90 || o.MinLat > o.MaxLat {
		return fmt.Errorf("invalid latitude range [%v, %v]", o.MinLat, o.MaxLat)
	}
	if o.MinLon < -180 || o.MaxLon > 180 || o.MinLon > o.MaxLon {
		return fmt.Errorf("invalid longitude range [%v, %v]", o.MinLon, o.MaxLon)
	}
	return nil
}

type driver struct {
	id        string
	mmUserID  string
	tripID    string
	routeID   string
	sessionID string
	session   string
	tripStart time.Time
}

type Generator struct {
	faker   *gofakeit.Faker
	opts    Options
	drivers []driver
}

// New returns a Generator. The same seed and options produce the same
// payloads.
func New(seed int64, opts Options) (*Generator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	g := &Generator{faker: gofakeit.New(seed), opts: opts}
	for i := 0; i < opts.Users; i++ {
		g.drivers = append(g.drivers, driver{
			id:        g.objectID(),
			mmUserID:  g.faker.Numerify("mm-####"),
			tripID:    g.objectID(),
			routeID:   g.faker.Numerify("route-#####"),
			sessionID: g.faker.Numerify("rs-######"),
			session:   g.faker.RandomString(routeSessionTypes),
			tripStart: g.faker.DateRange(opts.Start.Add(-2*time.Hour), opts.Start),
		})
	}
	return g, nil
}

// objectID mimics the provider's 24 hex character document ids.
func (g *Generator) objectID() string {
	return strings.ReplaceAll(g.faker.UUID(), "-", "")[:24]
}

func (g *Generator) chance(p float64) bool {
	return g.faker.Float64Range(0, 1) < p
}

func ts(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Envelope builds one provider payload.
func (g *Generator) Envelope() map[string]any {
	createdAt := g.faker.DateRange(g.opts.Start, g.opts.End)
	live := "FALSE"
	if g.chance(0.9) {
		live = "TRUE"
	}

	event := map[string]any{
		"type":      g.faker.RandomString(g.opts.EventTypes),
		"createdAt": ts(createdAt),
		"live":      live,
	}

	if g.chance(g.opts.LocationRatio) {
		lat := g.faker.Float64Range(g.opts.MinLat, g.opts.MaxLat)
		lon := g.faker.Float64Range(g.opts.MinLon, g.opts.MaxLon)
		event["location"] = map[string]any{
			"type":        "Point",
			"coordinates": []float64{lon, lat},
		}
	}

	if g.chance(g.opts.UserRatio) {
		d := g.drivers[g.faker.Number(0, len(g.drivers)-1)]
		user := map[string]any{
			"_id":       d.id,
			"MMUserId":  d.mmUserID,
			"updatedAt": ts(createdAt),
		}
		if g.chance(g.opts.TripRatio) {
			user["trip"] = map[string]any{
				"_id":        d.tripID,
				"createdAt":  ts(d.tripStart.Add(-5 * time.Minute)),
				"updatedAt":  ts(createdAt),
				"startedAt":  ts(d.tripStart),
				"externalId": d.routeID,
				"MMUserId":   d.mmUserID,
				"metadata": map[string]any{
					"route_session_type": d.session,
					"route_session_id":   d.sessionID,
				},
			}
		}
		event["user"] = user
	}

	return map[string]any{"event": event}
}

// Generate returns n encoded payloads.
func (g *Generator) Generate(n int) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, n)
	for i := 0; i < n; i++ {
		data, err := json.Marshal(g.Envelope())
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}
