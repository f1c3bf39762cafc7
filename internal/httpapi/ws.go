package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"vivarium/internal/core"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

const wsWriteTimeout = 10 * time.Second

// snapshotFrame is one pushed revision. The stream is latest-wins: a slow
// client observes the newest revision, not every intermediate one.
type snapshotFrame struct {
	Seq      uint64 `json:"seq"`
	Snapshot any    `json:"snapshot"`
}

// handleSnapshotStream upgrades the connection and pushes every installed
// revision until the client goes away or the store closes.
func (s *Server) handleSnapshotStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	revs, cancel := s.svc.Store().Subscribe()
	defer cancel()

	// Drain client frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for rev := range revs {
		if err := s.writeFrame(conn, rev); err != nil {
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, rev core.Revision) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(snapshotFrame{Seq: rev.Seq, Snapshot: rev.Snapshot})
}
