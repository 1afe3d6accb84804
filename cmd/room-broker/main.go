package main

import (
	"github.com/romashorodok/screenshare-broker/internal/janus"
	"github.com/romashorodok/screenshare-broker/internal/reaper"
	"github.com/romashorodok/screenshare-broker/internal/registry"
	"github.com/romashorodok/screenshare-broker/internal/room"
	globalprotocol "github.com/romashorodok/screenshare-broker/pkg/protocol"
	"github.com/romashorodok/screenshare-broker/pkg/service"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fx.Provide(
			registry.NewStore,
			janus.NewClient,

			room.NewRoomNotifier,
			room.NewRoomService,

			globalprotocol.AsHttpController(room.NewRoomController),
		),

		reaper.Module,

		service.LoggerModule,
		service.HttpModule,
	).Run()
}
