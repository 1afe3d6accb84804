package room

import (
	"sync"

	"github.com/romashorodok/screenshare-broker/pkg/executils"
	"github.com/romashorodok/screenshare-broker/pkg/wsutils"
)

type websocketMessage struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// RoomNotifier pushes an update-rooms event to every connected
// listener whenever the live room set changes.
type RoomNotifier struct {
	listeners   map[string]*wsutils.ThreadSafeWriter
	listenersMu sync.Mutex
}

func (n *RoomNotifier) Listen(id string, w *wsutils.ThreadSafeWriter) {
	n.listenersMu.Lock()
	defer n.listenersMu.Unlock()
	n.listeners[id] = w
}

func (n *RoomNotifier) Stop(id string) {
	n.listenersMu.Lock()
	defer n.listenersMu.Unlock()
	delete(n.listeners, id)
}

func (n *RoomNotifier) getListeners() (result []*wsutils.ThreadSafeWriter) {
	n.listenersMu.Lock()
	defer n.listenersMu.Unlock()
	for _, listener := range n.listeners {
		result = append(result, listener)
	}
	return
}

func (n *RoomNotifier) DispatchUpdateRooms() {
	var threshold uint64 = 64
	var step uint64 = 8
	executils.ParallelExec(n.getListeners(), threshold, step, func(w *wsutils.ThreadSafeWriter) {
		// Listener teardown happens on its own read loop; a failed
		// write here is just a listener that is already gone.
		_ = w.WriteJSON(&websocketMessage{
			Event: "update-rooms",
			Data:  "",
		})
	})
}

func NewRoomNotifier() *RoomNotifier {
	return &RoomNotifier{
		listeners: make(map[string]*wsutils.ThreadSafeWriter),
	}
}
