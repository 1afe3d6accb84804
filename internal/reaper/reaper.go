package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/romashorodok/screenshare-broker/internal/janus"
	"github.com/romashorodok/screenshare-broker/internal/registry"
	"github.com/romashorodok/screenshare-broker/internal/room"
	"github.com/romashorodok/screenshare-broker/pkg/variables"
	"go.uber.org/atomic"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
)

// RoomDestroyer is the slice of the Janus client the reaper needs.
type RoomDestroyer interface {
	DestroyRoom(ctx context.Context, roomID int64, secret string) error
}

var _ RoomDestroyer = (*janus.Client)(nil)

// Reaper reclaims rooms whose host stopped heartbeating: remote
// teardown first, then the local record, unconditionally. Without it
// a crashed host would pin a VideoRoom on the media server forever.
type Reaper struct {
	registry     *registry.Store
	destroyer    RoomDestroyer
	roomNotifier *room.RoomNotifier
	// threshold must exceed the client heartbeat period by enough
	// margin to ride out jitter and a missed beat or two.
	threshold time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// Run ticks until ctx is canceled. A cancellation during a pass lets
// the pass finish on its snapshot; the next sleep observes it.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("room reaper started",
		slog.Duration("threshold", r.threshold),
		slog.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("room reaper stopped")
			return
		case <-ticker.C:
			r.Pass(ctx)
		}
	}
}

// Pass reaps every room stale at the moment of the snapshot. Rooms
// are independent: one remote failure never blocks the others, and
// the local record goes away either way so the registry stays bounded
// even against a dead media server.
func (r *Reaper) Pass(ctx context.Context) int {
	stale := r.registry.ListStale(r.threshold, time.Now())
	if len(stale) == 0 {
		return 0
	}

	var reaped atomic.Int64
	g := new(errgroup.Group)
	for _, record := range stale {
		record := record
		g.Go(func() error {
			if err := r.destroyer.DestroyRoom(ctx, record.RemoteID, record.Secret); err != nil {
				r.logger.Error("remote destroy failed for stale room, dropping local record anyway",
					slog.String("room_id", record.RoomID),
					slog.Int64("remote_id", record.RemoteID),
					slog.String("err", err.Error()))
			}
			r.registry.Purge(record.RoomID)
			reaped.Inc()

			r.logger.Info("reaped stale room",
				slog.String("room_id", record.RoomID),
				slog.Int64("remote_id", record.RemoteID),
				slog.Time("last_heartbeat", record.LastHeartbeat))
			return nil
		})
	}
	_ = g.Wait()

	if r.roomNotifier != nil {
		r.roomNotifier.DispatchUpdateRooms()
	}
	return int(reaped.Load())
}

type NewReaper_Params struct {
	fx.In

	Registry     *registry.Store
	Janus        *janus.Client
	RoomNotifier *room.RoomNotifier
	Logger       *slog.Logger
}

func NewReaper(params NewReaper_Params) *Reaper {
	return &Reaper{
		registry:     params.Registry,
		destroyer:    params.Janus,
		roomNotifier: params.RoomNotifier,
		threshold:    variables.EnvDuration(variables.ROOM_TTL_NAME, variables.ROOM_TTL_DEFAULT),
		interval:     variables.EnvDuration(variables.REAP_INTERVAL_NAME, variables.REAP_INTERVAL_DEFAULT),
		logger:       params.Logger,
	}
}

type registerReaper_Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Reaper    *Reaper
}

func registerReaper(params registerReaper_Params) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				params.Reaper.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

var Module = fx.Module("reaper",
	fx.Provide(NewReaper),
	fx.Invoke(registerReaper),
)
