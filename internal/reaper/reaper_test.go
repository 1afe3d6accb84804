package reaper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/romashorodok/screenshare-broker/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type destroyCall struct {
	RoomID int64
	Secret string
}

type fakeDestroyer struct {
	mu        sync.Mutex
	calls     []destroyCall
	failRooms map[int64]bool
}

func (f *fakeDestroyer) DestroyRoom(ctx context.Context, roomID int64, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, destroyCall{RoomID: roomID, Secret: secret})
	if f.failRooms[roomID] {
		return errors.New("media server unreachable")
	}
	return nil
}

func (f *fakeDestroyer) recorded() []destroyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]destroyCall(nil), f.calls...)
}

func newTestReaper(store *registry.Store, destroyer RoomDestroyer) *Reaper {
	return &Reaper{
		registry:  store,
		destroyer: destroyer,
		threshold: 30 * time.Second,
		interval:  5 * time.Millisecond,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func insertRoom(t *testing.T, store *registry.Store, roomID string, remoteID int64, heartbeat time.Time) {
	t.Helper()
	require.NoError(t, store.Insert(registry.Record{
		RoomID:        roomID,
		RemoteID:      remoteID,
		HostToken:     "token-" + roomID,
		Secret:        "secret-" + roomID,
		LastHeartbeat: heartbeat,
	}))
}

func TestPassReapsStaleRoom(t *testing.T) {
	store := registry.NewStore()
	destroyer := &fakeDestroyer{}
	reaper := newTestReaper(store, destroyer)

	insertRoom(t, store, "stale", 424242, time.Now().Add(-time.Minute))

	assert.Equal(t, 1, reaper.Pass(context.Background()))

	calls := destroyer.recorded()
	require.Len(t, calls, 1, "destroy must be invoked exactly once")
	assert.EqualValues(t, 424242, calls[0].RoomID)
	assert.Equal(t, "secret-stale", calls[0].Secret)

	_, err := store.Get("stale")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestPassKeepsFreshRoom(t *testing.T) {
	store := registry.NewStore()
	destroyer := &fakeDestroyer{}
	reaper := newTestReaper(store, destroyer)

	insertRoom(t, store, "fresh", 515151, time.Now())

	assert.Equal(t, 0, reaper.Pass(context.Background()))
	assert.Empty(t, destroyer.recorded())

	_, err := store.Get("fresh")
	assert.NoError(t, err)
}

func TestPassRemovesLocallyOnRemoteFailure(t *testing.T) {
	store := registry.NewStore()
	destroyer := &fakeDestroyer{failRooms: map[int64]bool{424242: true}}
	reaper := newTestReaper(store, destroyer)

	insertRoom(t, store, "stale", 424242, time.Now().Add(-time.Minute))

	assert.Equal(t, 1, reaper.Pass(context.Background()))

	_, err := store.Get("stale")
	assert.ErrorIs(t, err, registry.ErrNotFound,
		"local record goes away even when the remote destroy fails")
}

func TestPassRoomsAreIndependent(t *testing.T) {
	store := registry.NewStore()
	destroyer := &fakeDestroyer{failRooms: map[int64]bool{111111: true}}
	reaper := newTestReaper(store, destroyer)

	old := time.Now().Add(-time.Minute)
	insertRoom(t, store, "failing", 111111, old)
	insertRoom(t, store, "second", 222222, old)
	insertRoom(t, store, "third", 333333, old)

	assert.Equal(t, 3, reaper.Pass(context.Background()))
	assert.Len(t, destroyer.recorded(), 3)
	assert.Equal(t, 0, store.Len())
}

func TestPassLeavesRoomWithinThreshold(t *testing.T) {
	store := registry.NewStore()
	destroyer := &fakeDestroyer{}
	reaper := newTestReaper(store, destroyer)

	// Just under the threshold: must never be reaped early.
	insertRoom(t, store, "almost", 616161, time.Now().Add(-29*time.Second))

	assert.Equal(t, 0, reaper.Pass(context.Background()))
	_, err := store.Get("almost")
	assert.NoError(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := registry.NewStore()
	destroyer := &fakeDestroyer{}
	reaper := newTestReaper(store, destroyer)

	insertRoom(t, store, "stale", 424242, time.Now().Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		reaper.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		_, err := store.Get("stale")
		return errors.Is(err, registry.ErrNotFound)
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancellation")
	}
}
