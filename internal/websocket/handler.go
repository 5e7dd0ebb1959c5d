package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"studyhall/internal/engine"
	"studyhall/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is deferred to the deployment proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Lifecycle is the slice of the engine the handler needs; narrowed for
// testing with fakes.
type Lifecycle interface {
	Join(ctx context.Context, sessionID string, user types.UserRef) (engine.JoinOutcome, error)
	Leave(ctx context.Context, sessionID, userID string) error
}

// Handler upgrades client websockets and keeps the roster in step with
// connected clients. Frames from clients carry presentation-level actions
// only; all state changes go through the engine.
type Handler struct {
	registry  *Registry
	lifecycle Lifecycle
}

// NewHandler creates a websocket handler.
func NewHandler(registry *Registry, lifecycle Lifecycle) *Handler {
	return &Handler{
		registry:  registry,
		lifecycle: lifecycle,
	}
}

// Stats reports connection counts for the health endpoint.
func (h *Handler) Stats() map[string]int {
	return h.registry.Stats()
}

// clientFrame is the envelope clients send over the socket.
type clientFrame struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id"`
	Name      string `json:"name,omitempty"`
}

// HandleWebSocket validates query parameters, upgrades the connection and
// registers it for notification delivery.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	roomID := r.URL.Query().Get("room_id")
	name := r.URL.Query().Get("name")

	if userID == "" || roomID == "" {
		http.Error(w, "Missing required query parameters: user_id, room_id", http.StatusBadRequest)
		return
	}
	if !types.IsValidUserID(userID) {
		http.Error(w, "Invalid user_id format", http.StatusBadRequest)
		return
	}
	if !types.IsValidRoomID(roomID) {
		http.Error(w, "Invalid room_id format", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn)
	wsConn.SetIdentity(userID, roomID, name)

	if err := h.registry.Register(wsConn); err != nil {
		log.Printf("Failed to register connection for user %s: %v", userID, err)
		_ = wsConn.Close()
		return
	}

	go h.handleConnection(wsConn)
}

// handleConnection owns the read side of one connection: heartbeat
// monitoring plus translation of client action frames into engine calls.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for user %s: %v", conn.UserID(), err)
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.handleFrame(conn, data)
	}
}

// handleFrame applies one client action frame. Failures are reported back
// on the same connection and never tear it down.
func (h *Handler) handleFrame(conn *Connection, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.sendError(conn, "invalid frame")
		return
	}

	ctx := context.Background()

	switch frame.Action {
	case "join":
		name := frame.Name
		if name == "" {
			name = conn.DisplayName()
		}
		user := types.UserRef{ID: conn.UserID(), FirstName: name}
		outcome, err := h.lifecycle.Join(ctx, frame.SessionID, user)
		if err != nil {
			h.sendError(conn, err.Error())
			return
		}
		_ = conn.WriteJSON(map[string]interface{}{
			"type":              "join_result",
			"session_id":        frame.SessionID,
			"already_joined":    outcome.AlreadyJoined,
			"participant_count": outcome.ParticipantCount,
		})
	case "leave":
		if err := h.lifecycle.Leave(ctx, frame.SessionID, conn.UserID()); err != nil {
			h.sendError(conn, err.Error())
			return
		}
		_ = conn.WriteJSON(map[string]interface{}{
			"type":       "leave_result",
			"session_id": frame.SessionID,
		})
	default:
		h.sendError(conn, "unknown action")
	}
}

func (h *Handler) sendError(conn *Connection, message string) {
	err := conn.WriteJSON(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
	if err != nil && !errors.Is(err, ErrConnectionClosed) {
		log.Printf("Failed to send error frame to user %s: %v", conn.UserID(), err)
	}
}
