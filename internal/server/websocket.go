package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/neo/arbiter_backend/internal/events"
	"github.com/neo/arbiter_backend/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
	EnableCompression: true,
}

// handleDebateWebSocket streams a debate's full event history followed by
// live events. The first frame is always connection_established with the
// current position; then the retained log replays from the beginning, so a
// client that connects mid-debate misses nothing.
func (s *Server) handleDebateWebSocket(c *gin.Context) {
	debateID := c.Param("id")

	state, err := s.manager.GetDebate(debateID)
	if err != nil {
		s.renderError(c, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.LogWebSocketEvent("upgrade_failed", debateID, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	defer ws.Close()

	sub := s.broadcaster.Subscribe(debateID)
	defer sub.Close()

	logging.LogWebSocketEvent("client_connected", debateID, map[string]interface{}{
		"backlog": sub.Backlog,
	})

	var writeMutex sync.Mutex
	writeEvent := func(event events.Event) error {
		writeMutex.Lock()
		defer writeMutex.Unlock()
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		return ws.WriteJSON(event)
	}

	hello := events.New(events.EventConnectionEstablished, debateID, map[string]interface{}{
		"status":        state.Status,
		"current_round": state.CurrentRound,
		"current_turn":  state.CurrentTurn,
		"message_count": len(state.History),
	})
	if err := writeEvent(hello); err != nil {
		return
	}

	// Reader exists only to process control frames and notice the client
	// going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			ws.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logging.LogWebSocketEvent("read_error", debateID, map[string]interface{}{
						"error": err.Error(),
					})
				}
				return
			}
		}
	}()

	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	for {
		select {
		case event, open := <-sub.Events:
			if !open {
				// Debate reached a terminal state or the topic was removed
				writeMutex.Lock()
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "debate finished"))
				writeMutex.Unlock()
				logging.LogWebSocketEvent("stream_complete", debateID, nil)
				return
			}
			if err := writeEvent(event); err != nil {
				logging.LogWebSocketEvent("write_error", debateID, map[string]interface{}{
					"error": err.Error(),
				})
				return
			}

		case <-pinger.C:
			writeMutex.Lock()
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := ws.WriteMessage(websocket.PingMessage, nil)
			writeMutex.Unlock()
			if err != nil {
				return
			}

		case <-done:
			logging.LogWebSocketEvent("client_disconnected", debateID, nil)
			return
		}
	}
}
