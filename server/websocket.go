package server

import (
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/maskcam/maskcam/pkg/nn"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var nextStreamerID int64

// overlayWebSocket streams every displayed combined frame to the client
// as JSON. The watcher channel drops frames for us if the client can't
// keep up, so a slow reader never stalls the pipeline.
func (s *Server) overlayWebSocket(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Warnf("Websocket upgrade failed: %v", err)
		return
	}
	streamerID := atomic.AddInt64(&nextStreamerID, 1)
	s.Log.Infof("Overlay websocket %v connected from %v", streamerID, r.RemoteAddr)

	frames := s.scheduler.AddWatcher()
	defer s.scheduler.RemoveWatcher(frames)

	// Reader goroutine exists only to detect client disconnect
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer conn.Close()
	for {
		select {
		case <-closed:
			s.Log.Infof("Overlay websocket %v closed by client", streamerID)
			return
		case frame := <-frames:
			if err := conn.WriteJSON(wsOverlayMessage{Type: "overlay", Frame: frame}); err != nil {
				s.Log.Infof("Overlay websocket %v write failed: %v", streamerID, err)
				return
			}
		}
	}
}

// SYNC-OVERLAY-WEBSOCKET-MESSAGE
type wsOverlayMessage struct {
	Type  string            `json:"type"` // Always "overlay"
	Frame *nn.CombinedFrame `json:"frame"`
}
