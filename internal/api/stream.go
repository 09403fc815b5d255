package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/trv-controller/db"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API already allows any origin for the REST surface, the stream
	// follows the same policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamRoom upgrades the connection and pushes the room's Status after
// every tick until the client goes away.
func (s *Server) streamRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	if _, err := db.GetRoomByID(s.db, roomID); err != nil {
		s.writeError(w, http.StatusNotFound, "Room not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("Websocket upgrade failed")
		return
	}

	updates, cancel := s.registry.Subscribe(roomID)

	// Reader goroutine: we never expect client frames, but reading is how
	// close and error conditions surface.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer cancel()
		defer conn.Close()

		log.Debug().Str("room_id", roomID).Msg("Stream subscriber connected")

		if status, ok := s.registry.Get(roomID); ok {
			if err := conn.WriteJSON(status); err != nil {
				return
			}
		}

		for {
			select {
			case status := <-updates:
				if err := conn.WriteJSON(status); err != nil {
					return
				}
			case <-done:
				log.Debug().Str("room_id", roomID).Msg("Stream subscriber disconnected")
				return
			}
		}
	}()
}
