package room

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	echo "github.com/labstack/echo/v4"
	"github.com/romashorodok/screenshare-broker/internal/registry"
	globalprotocol "github.com/romashorodok/screenshare-broker/pkg/protocol"
	"github.com/romashorodok/screenshare-broker/pkg/variables"
	"github.com/romashorodok/screenshare-broker/pkg/wsutils"
	"go.uber.org/fx"
)

type roomCreateRequest struct {
	Title    string `json:"title"`
	Password string `json:"password"`
}

type roomCreateResponse struct {
	RoomID      string `json:"room_id"`
	HostToken   string `json:"host_token"`
	JanusRoomID int64  `json:"janus_room_id"`
	JanusURL    string `json:"janus_url"`
}

type roomInfoResponse struct {
	RoomID      string `json:"room_id"`
	Status      string `json:"status"`
	JanusRoomID int64  `json:"janus_room_id"`
	JanusURL    string `json:"janus_url"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type hostTokenHeader struct {
	HostToken string `header:"X-Host-Token"`
}

type roomController struct {
	roomService  *RoomService
	roomNotifier *RoomNotifier
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	// janusURL is the address clients dial for media, not the control
	// plane url this process talks to.
	janusURL string
}

func (ctrl *roomController) RoomCreate(c echo.Context) error {
	req := new(roomCreateRequest)
	if err := c.Bind(req); err != nil {
		return c.String(http.StatusBadRequest, "bad request")
	}

	record, err := ctrl.roomService.CreateRoom(c.Request().Context(), req.Title, req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create room on media server")
	}

	return c.JSON(http.StatusCreated, roomCreateResponse{
		RoomID:      record.RoomID,
		HostToken:   record.HostToken,
		JanusRoomID: record.RemoteID,
		JanusURL:    ctrl.janusURL,
	})
}

func (ctrl *roomController) RoomInfo(c echo.Context) error {
	record, err := ctrl.roomService.GetRoom(c.Param("roomID"))
	if err != nil {
		return roomHTTPError(err)
	}

	return c.JSON(http.StatusOK, roomInfoResponse{
		RoomID:      record.RoomID,
		Status:      "active",
		JanusRoomID: record.RemoteID,
		JanusURL:    ctrl.janusURL,
	})
}

func (ctrl *roomController) RoomHeartbeat(c echo.Context) error {
	header := new(hostTokenHeader)
	if err := (&echo.DefaultBinder{}).BindHeaders(c, header); err != nil {
		return c.String(http.StatusBadRequest, "bad request")
	}

	if err := ctrl.roomService.Heartbeat(c.Param("roomID"), header.HostToken); err != nil {
		return roomHTTPError(err)
	}

	return c.JSON(http.StatusOK, statusResponse{Status: "alive"})
}

func (ctrl *roomController) RoomDelete(c echo.Context) error {
	header := new(hostTokenHeader)
	if err := (&echo.DefaultBinder{}).BindHeaders(c, header); err != nil {
		return c.String(http.StatusBadRequest, "bad request")
	}

	if err := ctrl.roomService.DeleteRoom(c.Request().Context(), c.Param("roomID"), header.HostToken); err != nil {
		return roomHTTPError(err)
	}

	return c.JSON(http.StatusOK, statusResponse{Status: "deleted"})
}

func (ctrl *roomController) RoomNotifierSocket(c echo.Context) error {
	conn, err := ctrl.upgrader.Upgrade(c.Response().Writer, c.Request(), nil)
	if err != nil {
		ctrl.logger.Error("unable to upgrade notifier request", slog.String("err", err.Error()))
		return err
	}

	w := wsutils.NewThreadSafeWriter(conn)
	defer w.CloseGracefully()

	id := uuid.NewString()
	ctrl.roomNotifier.Listen(id, w)
	defer ctrl.roomNotifier.Stop(id)

	<-c.Request().Context().Done()
	return nil
}

// roomHTTPError maps registry outcomes onto transport status codes.
// The body stays binary allow/deny; no detail beyond that leaks.
func roomHTTPError(err error) error {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Room not found")
	case errors.Is(err, registry.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, "Invalid host token")
	default:
		return err
	}
}

func (ctrl *roomController) Resolve(router globalprotocol.HttpRouter) error {
	router.POST("/api/v1/rooms", ctrl.RoomCreate)
	router.GET("/api/v1/rooms/notifier", ctrl.RoomNotifierSocket)
	router.GET("/api/v1/rooms/:roomID", ctrl.RoomInfo)
	router.PUT("/api/v1/rooms/:roomID/heartbeat", ctrl.RoomHeartbeat)
	router.DELETE("/api/v1/rooms/:roomID", ctrl.RoomDelete)
	return nil
}

var _ globalprotocol.HttpResolvable = (*roomController)(nil)

type newRoomController_Params struct {
	fx.In

	RoomService  *RoomService
	RoomNotifier *RoomNotifier
	Logger       *slog.Logger
}

func NewRoomController(params newRoomController_Params) *roomController {
	return &roomController{
		roomService:  params.RoomService,
		roomNotifier: params.RoomNotifier,
		logger:       params.Logger,
		janusURL:     variables.Env(variables.JANUS_PUBLIC_URL_NAME, variables.JANUS_PUBLIC_URL_DEFAULT),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}
