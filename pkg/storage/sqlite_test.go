package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidpulse/vidpulse/pkg/storage"
)

func newTestDB(t *testing.T) *storage.SQLite {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLite_PutGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, "quota:usage:default", []byte(`{"used":100}`)))

	value, err := db.Get(ctx, "quota:usage:default")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"used":100}`), value)
}

func TestSQLite_GetMissing(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLite_PutOverwrites(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, "k", []byte("one")))
	require.NoError(t, db.Put(ctx, "k", []byte("two")))

	value, err := db.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), value)
}

func TestSQLite_Delete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, "k", []byte("v")))
	require.NoError(t, db.Delete(ctx, "k"))

	_, err := db.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, db.Delete(ctx, "k"))
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	db, err := storage.NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Put(ctx, "k", []byte("persisted")))
	require.NoError(t, db.Close())

	db, err = storage.NewSQLite(dbPath)
	require.NoError(t, err)
	defer db.Close()

	value, err := db.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), value)
}

func TestMemory_RoundTrip(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte("v")))

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	// Mutating the returned slice must not affect the stored copy.
	value[0] = 'x'
	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), again)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
