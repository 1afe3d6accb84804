package room

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"

	"github.com/romashorodok/screenshare-broker/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type remoteCall struct {
	RoomID      int64
	Description string
	Secret      string
}

type fakeControlPlane struct {
	mu          sync.Mutex
	created     []remoteCall
	destroyed   []remoteCall
	failCreate  bool
	failDestroy bool
}

func (f *fakeControlPlane) CreateRoom(ctx context.Context, roomID int64, description, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return errors.New("media server unreachable")
	}
	f.created = append(f.created, remoteCall{RoomID: roomID, Description: description, Secret: secret})
	return nil
}

func (f *fakeControlPlane) DestroyRoom(ctx context.Context, roomID int64, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, remoteCall{RoomID: roomID, Secret: secret})
	if f.failDestroy {
		return errors.New("media server unreachable")
	}
	return nil
}

func (f *fakeControlPlane) destroyCalls() []remoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remoteCall(nil), f.destroyed...)
}

func newTestService(controlPlane ControlPlane) (*RoomService, *registry.Store) {
	store := registry.NewStore()
	return &RoomService{
		registry:     store,
		controlPlane: controlPlane,
		roomNotifier: NewRoomNotifier(),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, store
}

func TestCreateRoom(t *testing.T) {
	controlPlane := &fakeControlPlane{}
	service, _ := newTestService(controlPlane)

	record, err := service.CreateRoom(context.Background(), "Demo", "hunter2")
	require.NoError(t, err)

	assert.NotEmpty(t, record.RoomID)
	assert.NotEmpty(t, record.HostToken)
	assert.NotEqual(t, record.RoomID, strconv.FormatInt(record.RemoteID, 10))
	assert.GreaterOrEqual(t, record.RemoteID, int64(remoteIDMin))
	assert.LessOrEqual(t, record.RemoteID, int64(remoteIDMax))

	got, err := service.GetRoom(record.RoomID)
	require.NoError(t, err)
	assert.Equal(t, "Demo", got.Title)

	require.Len(t, controlPlane.created, 1)
	assert.Equal(t, record.RemoteID, controlPlane.created[0].RoomID)
	assert.Equal(t, "Demo", controlPlane.created[0].Description)
	assert.Equal(t, "hunter2", controlPlane.created[0].Secret)
}

func TestCreateRoomDefaults(t *testing.T) {
	controlPlane := &fakeControlPlane{}
	service, _ := newTestService(controlPlane)

	record, err := service.CreateRoom(context.Background(), "", "")
	require.NoError(t, err)

	assert.Equal(t, defaultRoomTitle, record.Title)
	assert.NotEmpty(t, record.Secret, "password-less rooms still get a destroy secret")
}

func TestCreateRoomRemoteFailureLeavesNoRecord(t *testing.T) {
	controlPlane := &fakeControlPlane{failCreate: true}
	service, store := newTestService(controlPlane)

	_, err := service.CreateRoom(context.Background(), "Demo", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteRoomCreate)
	assert.Equal(t, 0, store.Len(), "a failed remote create must not leave a local record")
}

func TestHeartbeat(t *testing.T) {
	controlPlane := &fakeControlPlane{}
	service, _ := newTestService(controlPlane)

	record, err := service.CreateRoom(context.Background(), "Demo", "")
	require.NoError(t, err)

	require.NoError(t, service.Heartbeat(record.RoomID, record.HostToken))

	assert.ErrorIs(t, service.Heartbeat(record.RoomID, "wrong"), registry.ErrUnauthorized)
	assert.ErrorIs(t, service.Heartbeat("unknown", record.HostToken), registry.ErrNotFound)
}

func TestDeleteRoom(t *testing.T) {
	controlPlane := &fakeControlPlane{}
	service, _ := newTestService(controlPlane)

	record, err := service.CreateRoom(context.Background(), "Demo", "")
	require.NoError(t, err)

	require.NoError(t, service.DeleteRoom(context.Background(), record.RoomID, record.HostToken))

	_, err = service.GetRoom(record.RoomID)
	assert.ErrorIs(t, err, registry.ErrNotFound)

	calls := controlPlane.destroyCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, record.RemoteID, calls[0].RoomID)
	assert.Equal(t, record.Secret, calls[0].Secret)
}

func TestDeleteRoomWrongToken(t *testing.T) {
	controlPlane := &fakeControlPlane{}
	service, _ := newTestService(controlPlane)

	record, err := service.CreateRoom(context.Background(), "Demo", "")
	require.NoError(t, err)

	err = service.DeleteRoom(context.Background(), record.RoomID, "wrong")
	assert.ErrorIs(t, err, registry.ErrUnauthorized)

	_, err = service.GetRoom(record.RoomID)
	assert.NoError(t, err, "rejected delete must keep the record")
	assert.Empty(t, controlPlane.destroyCalls())
}

func TestDeleteRoomRemoteFailureStillRemoves(t *testing.T) {
	controlPlane := &fakeControlPlane{failDestroy: true}
	service, _ := newTestService(controlPlane)

	record, err := service.CreateRoom(context.Background(), "Demo", "")
	require.NoError(t, err)

	require.NoError(t, service.DeleteRoom(context.Background(), record.RoomID, record.HostToken),
		"local state is authoritative; remote teardown is best-effort")

	_, err = service.GetRoom(record.RoomID)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}
