// Package voicestore_test tests the SQLite voice store.
package voicestore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-agent/internal/core"
	"github.com/book-expert/voice-agent/internal/voicestore"
)

func newTestStore(t *testing.T) *voicestore.SQLiteStore {
	t.Helper()

	store, err := voicestore.New(filepath.Join(t.TempDir(), "voices.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		closeErr := store.Close()
		assert.NoError(t, closeErr)
	})

	return store
}

func testRecord(voiceID string, backend core.BackendName, isDefault bool) core.VoiceRecord {
	return core.VoiceRecord{
		VoiceID: voiceID,
		Backend: backend,
		Descriptor: core.VoiceDescriptor{
			Backend: backend,
			Kind:    "test-profile",
			Preset:  "",
			Data:    []byte(`{"marker":"` + voiceID + `"}`),
		},
		CreatedAt: time.Now().UTC(),
		IsDefault: isDefault,
	}
}

func TestPutAndGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	record := testRecord("voice-a", core.BackendKokoro, false)
	require.NoError(t, store.Put(ctx, record))

	got, err := store.Get(ctx, core.BackendKokoro, "voice-a")
	require.NoError(t, err)

	assert.Equal(t, record.VoiceID, got.VoiceID)
	assert.Equal(t, record.Backend, got.Backend)
	assert.Equal(t, record.Descriptor.Data, got.Descriptor.Data)
	assert.False(t, got.IsDefault)
}

func TestGetMissingVoiceIsNotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Get(context.Background(), core.BackendKokoro, "absent")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListReturnsCreationOrder(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, store.Put(ctx, testRecord(id, core.BackendZonos, false)))
	}

	// A record for another backend must not leak into the listing.
	require.NoError(t, store.Put(ctx, testRecord("other", core.BackendKokoro, false)))

	ids, err := store.List(ctx, core.BackendZonos)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, ids)
}

func TestListEmptyBackendReturnsEmptySlice(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	ids, err := store.List(context.Background(), core.BackendKokoro)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NotNil(t, ids)
}

func TestPutDefaultClearsPriorDefault(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testRecord("old-default", core.BackendZonos, true)))
	require.NoError(t, store.Put(ctx, testRecord("new-default", core.BackendZonos, true)))

	got, err := store.GetDefault(ctx, core.BackendZonos)
	require.NoError(t, err)
	assert.Equal(t, "new-default", got.VoiceID)

	old, err := store.Get(ctx, core.BackendZonos, "old-default")
	require.NoError(t, err)
	assert.False(t, old.IsDefault)
}

func TestDefaultIsPartitionedByBackend(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testRecord("kokoro-default", core.BackendKokoro, true)))
	require.NoError(t, store.Put(ctx, testRecord("zonos-default", core.BackendZonos, true)))

	kokoro, err := store.GetDefault(ctx, core.BackendKokoro)
	require.NoError(t, err)
	assert.Equal(t, "kokoro-default", kokoro.VoiceID)

	zonos, err := store.GetDefault(ctx, core.BackendZonos)
	require.NoError(t, err)
	assert.Equal(t, "zonos-default", zonos.VoiceID)
}

func TestGetDefaultMissingIsNotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.GetDefault(context.Background(), core.BackendKokoro)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPutOverwritesByVoiceID(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testRecord("voice-a", core.BackendKokoro, false)))

	updated := testRecord("voice-a", core.BackendKokoro, false)
	updated.Descriptor.Data = []byte(`{"marker":"updated"}`)
	require.NoError(t, store.Put(ctx, updated))

	got, err := store.Get(ctx, core.BackendKokoro, "voice-a")
	require.NoError(t, err)
	assert.Equal(t, updated.Descriptor.Data, got.Descriptor.Data)

	ids, err := store.List(ctx, core.BackendKokoro)
	require.NoError(t, err)
	assert.Equal(t, []string{"voice-a"}, ids)
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testRecord("voice-a", core.BackendKokoro, false)))
	require.NoError(t, store.Delete(ctx, core.BackendKokoro, "voice-a"))
	require.NoError(t, store.Delete(ctx, core.BackendKokoro, "voice-a"))

	_, err := store.Get(ctx, core.BackendKokoro, "voice-a")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestConcurrentDefaultWritesLeaveOneDefault(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	const writers = 8

	var waitGroup sync.WaitGroup

	for i := range writers {
		waitGroup.Add(1)

		go func(n int) {
			defer waitGroup.Done()

			record := testRecord("contender-"+string(rune('a'+n)), core.BackendZonos, true)
			assert.NoError(t, store.Put(ctx, record))
		}(i)
	}

	waitGroup.Wait()

	ids, err := store.List(ctx, core.BackendZonos)
	require.NoError(t, err)
	require.Len(t, ids, writers)

	defaults := 0

	for _, id := range ids {
		record, getErr := store.Get(ctx, core.BackendZonos, id)
		require.NoError(t, getErr)

		if record.IsDefault {
			defaults++
		}
	}

	assert.Equal(t, 1, defaults, "exactly one default must survive concurrent writes")
}
