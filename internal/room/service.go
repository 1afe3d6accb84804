package room

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/romashorodok/screenshare-broker/internal/janus"
	"github.com/romashorodok/screenshare-broker/internal/registry"
	"go.uber.org/fx"
)

var ErrRemoteRoomCreate = errors.New("unable to create room on media server")

const defaultRoomTitle = "Screen Share"

// Janus room ids are numeric. A 9-digit space keeps collision odds
// negligible for the room counts this serves.
const (
	remoteIDMin = 1000
	remoteIDMax = 999_999_999
)

// ControlPlane is the slice of the Janus client the room service
// drives.
type ControlPlane interface {
	CreateRoom(ctx context.Context, roomID int64, description, secret string) error
	DestroyRoom(ctx context.Context, roomID int64, secret string) error
}

var _ ControlPlane = (*janus.Client)(nil)

type RoomService struct {
	registry     *registry.Store
	controlPlane ControlPlane
	roomNotifier *RoomNotifier
	logger       *slog.Logger
}

// CreateRoom provisions the remote VideoRoom first and records it
// locally only once the remote reports success, so no record ever
// points at a room that was never created.
func (s *RoomService) CreateRoom(ctx context.Context, title, password string) (registry.Record, error) {
	if title == "" {
		title = defaultRoomTitle
	}

	// Rooms created without a password still get a generated secret,
	// so every destroy path presents an exact match.
	secret := password
	if secret == "" {
		secret = uuid.NewString()
	}

	remoteID, err := newRemoteID()
	if err != nil {
		return registry.Record{}, err
	}

	record := registry.Record{
		RoomID:        uuid.NewString(),
		RemoteID:      remoteID,
		HostToken:     uuid.NewString(),
		Secret:        secret,
		Title:         title,
		LastHeartbeat: time.Now(),
	}

	if err := s.controlPlane.CreateRoom(ctx, record.RemoteID, record.Title, record.Secret); err != nil {
		s.logger.Error("remote room create failed",
			slog.Int64("remote_id", record.RemoteID),
			slog.String("err", err.Error()))
		return registry.Record{}, fmt.Errorf("%w: %s", ErrRemoteRoomCreate, err)
	}

	if err := s.registry.Insert(record); err != nil {
		// The uuid space makes this unreachable in practice, but a
		// remote room without a local record must not survive it.
		if derr := s.controlPlane.DestroyRoom(ctx, record.RemoteID, record.Secret); derr != nil {
			s.logger.Error("rollback destroy failed after insert conflict",
				slog.Int64("remote_id", record.RemoteID),
				slog.String("err", derr.Error()))
		}
		return registry.Record{}, err
	}

	s.roomNotifier.DispatchUpdateRooms()
	return record, nil
}

func (s *RoomService) GetRoom(roomID string) (registry.Record, error) {
	return s.registry.Get(roomID)
}

func (s *RoomService) Heartbeat(roomID, presentedToken string) error {
	return s.registry.TouchHeartbeat(roomID, presentedToken, time.Now())
}

// DeleteRoom removes the local record once the token checks out, then
// makes a best-effort remote teardown. Local state is authoritative:
// a remote failure is logged, never resurrects the record.
func (s *RoomService) DeleteRoom(ctx context.Context, roomID, presentedToken string) error {
	record, err := s.registry.Remove(roomID, presentedToken)
	if err != nil {
		return err
	}

	if err := s.controlPlane.DestroyRoom(ctx, record.RemoteID, record.Secret); err != nil {
		s.logger.Error("remote destroy failed for deleted room",
			slog.String("room_id", record.RoomID),
			slog.Int64("remote_id", record.RemoteID),
			slog.String("err", err.Error()))
	}

	s.roomNotifier.DispatchUpdateRooms()
	return nil
}

func newRemoteID() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(remoteIDMax-remoteIDMin+1))
	if err != nil {
		return 0, fmt.Errorf("generate remote room id: %w", err)
	}
	return n.Int64() + remoteIDMin, nil
}

type NewRoomService_Params struct {
	fx.In

	Registry     *registry.Store
	Janus        *janus.Client
	RoomNotifier *RoomNotifier
	Logger       *slog.Logger
}

func NewRoomService(params NewRoomService_Params) *RoomService {
	return &RoomService{
		registry:     params.Registry,
		controlPlane: params.Janus,
		roomNotifier: params.RoomNotifier,
		logger:       params.Logger,
	}
}
