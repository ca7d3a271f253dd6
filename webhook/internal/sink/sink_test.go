package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
)

func ptr[T any](v T) *T { return &v }

// fullRecord uses millisecond precision so every backend round-trips it exactly.
func fullRecord(id string) *models.LocationRecord {
	process := time.Date(2023, 8, 8, 18, 38, 25, 123_000_000, time.UTC)
	return &models.LocationRecord{
		ID:               id,
		CreatedAt:        time.Date(2023, 8, 8, 18, 38, 23, 400_000_000, time.UTC),
		Live:             true,
		EventType:        "user.entered_geofence",
		UserID:           ptr("user-1"),
		MMUserID:         ptr("mm-778"),
		Latitude:         ptr(36.00942850116281),
		Longitude:        ptr(-119.3056079094478),
		TripID:           ptr("trip-1"),
		TripExternalID:   ptr("route-4411"),
		TripCreatedAt:    ptr(time.Date(2023, 8, 8, 17, 2, 11, 120_000_000, time.UTC)),
		TripUpdatedAt:    ptr(time.Date(2023, 8, 8, 18, 38, 23, 400_000_000, time.UTC)),
		TripStartedAt:    ptr(time.Date(2023, 8, 8, 17, 5, 0, 0, time.UTC)),
		TripMMUserID:     ptr("mm-778"),
		RouteSessionType: ptr("pickup"),
		ProcessTimestamp: process,
		ProcessHour:      process.Truncate(time.Hour),
	}
}

func partialRecord(id string) *models.LocationRecord {
	process := time.Date(2023, 8, 8, 18, 38, 25, 0, time.UTC)
	return &models.LocationRecord{
		ID:               id,
		CreatedAt:        time.Date(2023, 8, 8, 18, 38, 23, 0, time.UTC),
		EventType:        "user.heartbeat",
		ProcessTimestamp: process,
		ProcessHour:      process.Truncate(time.Hour),
	}
}

// runSinkContract exercises the behaviour every backend must share.
func runSinkContract(t *testing.T, newSink func(t *testing.T) Sink) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		s := newSink(t)
		want := fullRecord("rt-1")

		inserted, err := s.Append(ctx, want)
		require.NoError(t, err)
		assert.True(t, inserted)

		got, err := s.Get(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("partial record keeps nulls", func(t *testing.T) {
		s := newSink(t)
		want := partialRecord("partial-1")

		_, err := s.Append(ctx, want)
		require.NoError(t, err)

		got, err := s.Get(ctx, want.ID)
		require.NoError(t, err)
		assert.Nil(t, got.UserID)
		assert.Nil(t, got.TripID)
		assert.Nil(t, got.Latitude)
		assert.Nil(t, got.TripCreatedAt)
		assert.Nil(t, got.RouteSessionType)
		assert.Equal(t, want, got)
	})

	t.Run("duplicate is a no-op", func(t *testing.T) {
		s := newSink(t)
		first := fullRecord("dup-1")

		inserted, err := s.Append(ctx, first)
		require.NoError(t, err)
		require.True(t, inserted)

		second := fullRecord("dup-1")
		second.ProcessTimestamp = second.ProcessTimestamp.Add(time.Hour)
		inserted, err = s.Append(ctx, second)
		require.NoError(t, err)
		assert.False(t, inserted)

		got, err := s.Get(ctx, "dup-1")
		require.NoError(t, err)
		assert.Equal(t, first.ProcessTimestamp, got.ProcessTimestamp)
	})

	t.Run("exists", func(t *testing.T) {
		s := newSink(t)
		ok, err := s.Exists(ctx, "ex-1")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Append(ctx, fullRecord("ex-1"))
		require.NoError(t, err)

		ok, err = s.Exists(ctx, "ex-1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("get missing", func(t *testing.T) {
		s := newSink(t)
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent duplicates store one row", func(t *testing.T) {
		s := newSink(t)
		const workers = 8

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			inserted int
			errs     []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.Append(ctx, fullRecord("race-1"))
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
				}
				if ok {
					inserted++
				}
			}()
		}
		wg.Wait()

		assert.Empty(t, errs)
		assert.Equal(t, 1, inserted)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, newSink(t).Ping(ctx))
	})
}

func TestMemorySink(t *testing.T) {
	runSinkContract(t, func(t *testing.T) Sink { return NewMemory() })
}

func TestMemorySink_FailWith(t *testing.T) {
	s := NewMemory()
	s.FailWith = errors.New("disk full")

	inserted, err := s.Append(context.Background(), fullRecord("x"))
	assert.False(t, inserted)
	assert.Equal(t, models.KindPersistenceFailure, models.KindOf(err))
	assert.Equal(t, 0, s.Len())
}

func TestMemorySink_AllInInsertionOrder(t *testing.T) {
	s := NewMemory()
	for i := 0; i < 3; i++ {
		_, err := s.Append(context.Background(), partialRecord(fmt.Sprintf("r-%d", i)))
		require.NoError(t, err)
	}
	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, "r-0", all[0].ID)
	assert.Equal(t, "r-2", all[2].ID)
}

func TestInstrumented_PassesThrough(t *testing.T) {
	mem := NewMemory()
	s := Instrument(mem, BackendMemory)
	ctx := context.Background()

	inserted, err := s.Append(ctx, fullRecord("i-1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Append(ctx, fullRecord("i-1"))
	require.NoError(t, err)
	assert.False(t, inserted)

	mem.FailWith = errors.New("boom")
	_, err = s.Append(ctx, fullRecord("i-2"))
	assert.Error(t, err)

	assert.Equal(t, BackendMemory, s.Backend())
	assert.Equal(t, 1, mem.Len())
}
