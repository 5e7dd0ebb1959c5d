package hub

import (
	"context"
	"log"
	"sync"

	"studyhall/internal/websocket"
	"studyhall/pkg/types"
)

// Hub is the delivery side of the notification port. The engine hands it
// intents through NotifyRoom/NotifyUser; a single run goroutine fans them
// out to the connected clients. Delivery is fire-and-forget end to end: a
// slow client, a write failure or a full queue costs a log line, never an
// engine state transition.
type Hub struct {
	intents  chan types.Notification
	shutdown chan struct{}
	registry *websocket.Registry

	running bool
	mu      sync.RWMutex
}

// NewHub creates a notification hub over the connection registry.
func NewHub(registry *websocket.Registry) *Hub {
	return &Hub{
		intents:  make(chan types.Notification, 1000),
		shutdown: make(chan struct{}),
		registry: registry,
	}
}

// Start begins intent processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting notification hub...")
	go h.run(ctx)

	return nil
}

// Stop shuts the hub down; queued intents are dropped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	log.Println("Stopping notification hub...")

	select {
	case <-h.shutdown:
	default:
		close(h.shutdown)
	}

	return nil
}

// NotifyRoom queues a room-wide intent. Implements interfaces.Notifier.
func (h *Hub) NotifyRoom(roomID string, note types.Notification) {
	note.RoomID = roomID
	note.UserID = ""
	h.enqueue(note)
}

// NotifyUser queues a direct intent. Implements interfaces.Notifier.
func (h *Hub) NotifyUser(userID string, note types.Notification) {
	note.UserID = userID
	note.RoomID = ""
	h.enqueue(note)
}

func (h *Hub) enqueue(note types.Notification) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return
	}

	select {
	case h.intents <- note:
	default:
		log.Printf("Notification queue full, dropping intent: kind=%s session=%s", note.Kind, note.SessionID)
	}
}

func (h *Hub) run(ctx context.Context) {
	defer log.Println("Notification hub stopped")

	for {
		select {
		case note := <-h.intents:
			h.deliver(note)
		case <-h.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// deliver fans one intent out to its recipients. Per-connection write
// errors are logged and skipped; the rest of the fan-out proceeds.
func (h *Hub) deliver(note types.Notification) {
	if note.UserID != "" {
		conn, ok := h.registry.UserConnection(note.UserID)
		if !ok {
			return // user not connected, intent is moot
		}
		if err := conn.WriteJSON(note); err != nil {
			log.Printf("Failed to deliver %s to user %s: %v", note.Kind, note.UserID, err)
		}
		return
	}

	for _, conn := range h.registry.RoomConnections(note.RoomID) {
		if err := conn.WriteJSON(note); err != nil {
			log.Printf("Failed to deliver %s to user %s in room %s: %v", note.Kind, conn.UserID(), note.RoomID, err)
		}
	}
}
