package cursorfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "last_record_timestamp.txt"))
}

func TestLoad_MissingFileIsZero(t *testing.T) {
	cursor, err := tempStore(t).Load()
	require.NoError(t, err)
	assert.True(t, cursor.IsZero())
}

func TestLoad_EmptyFileIsZero(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, os.WriteFile(store.path, []byte("\n"), 0o644))

	cursor, err := store.Load()
	require.NoError(t, err)
	assert.True(t, cursor.IsZero())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store := tempStore(t)
	want := time.Date(2024, time.April, 26, 15, 10, 0, 123456789, time.UTC)

	require.NoError(t, store.Save(want))
	got, err := store.Load()
	require.NoError(t, err)
	assert.True(t, got.Equal(want))
}

func TestSave_Overwrites(t *testing.T) {
	store := tempStore(t)
	first := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	second := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(first))
	require.NoError(t, store.Save(second))

	got, err := store.Load()
	require.NoError(t, err)
	assert.True(t, got.Equal(second))
}

func TestLoad_GarbageIsError(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, os.WriteFile(store.path, []byte("not-a-timestamp"), 0o644))

	_, err := store.Load()
	require.Error(t, err)
}
