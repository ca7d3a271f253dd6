package sink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T) *SQLiteSink {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "events.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteSink(t *testing.T) {
	runSinkContract(t, func(t *testing.T) Sink { return newSQLite(t) })
}

func TestSQLiteSink_InMemory(t *testing.T) {
	s, err := OpenSQLite(context.Background(), ":memory:", time.Second)
	require.NoError(t, err)
	defer s.Close()

	inserted, err := s.Append(context.Background(), fullRecord("m-1"))
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestSQLiteSink_IdempotentRowCount(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, fullRecord("same"))
		require.NoError(t, err)
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteSink_InitSchemaIsRepeatable(t *testing.T) {
	s := newSQLite(t)
	require.NoError(t, s.InitSchema(context.Background()))
	require.NoError(t, s.InitSchema(context.Background()))
}

func TestSQLiteSink_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path, time.Second)
	require.NoError(t, err)
	_, err = s.Append(ctx, fullRecord("persist-1"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, time.Second)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "persist-1")
	require.NoError(t, err)
	assert.Equal(t, fullRecord("persist-1"), got)
}
