package services

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"familyportal-backend/shared/database/models/notification"
)

var ErrNotConnected = errors.New("user not connected")

const writeWait = 10 * time.Second

// LiveSender pushes frames to connected users
type LiveSender interface {
	SendToUser(userID uuid.UUID, message *notification.WebSocketMessage) error
}

type hubClient struct {
	userID uuid.UUID
	conn   *websocket.Conn
	write  sync.Mutex
}

func (hc *hubClient) send(message *notification.WebSocketMessage) error {
	hc.write.Lock()
	defer hc.write.Unlock()
	hc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return hc.conn.WriteJSON(message)
}

// Hub tracks one live connection per user
type Hub struct {
	clients  map[uuid.UUID]*hubClient
	mutex    sync.RWMutex
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub creates a hub accepting upgrades from the given origins. An empty
// list accepts any origin.
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	hub := &Hub{
		clients: make(map[uuid.UUID]*hubClient),
		log:     log,
	}
	hub.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			log.Warn("websocket connection rejected", zap.String("origin", origin))
			return false
		},
	}
	return hub
}

func (h *Hub) register(client *hubClient) {
	h.mutex.Lock()
	if existing, exists := h.clients[client.userID]; exists {
		existing.conn.Close()
	}
	h.clients[client.userID] = client
	total := len(h.clients)
	h.mutex.Unlock()

	h.log.Info("websocket client connected", zap.String("user_id", client.userID.String()), zap.Int("total", total))

	id := client.userID
	client.send(&notification.WebSocketMessage{
		Type:      "connection",
		Title:     "Connected",
		Message:   "WebSocket connection established",
		Timestamp: notification.GetCurrentTime(),
		ID:        &id,
	})
}

// unregister removes client unless it was already replaced by a newer one
func (h *Hub) unregister(client *hubClient) {
	h.mutex.Lock()
	if current, exists := h.clients[client.userID]; exists && current == client {
		delete(h.clients, client.userID)
	}
	total := len(h.clients)
	h.mutex.Unlock()

	client.conn.Close()
	h.log.Info("websocket client disconnected", zap.String("user_id", client.userID.String()), zap.Int("total", total))
}

// SendToUser sends message to a specific user
func (h *Hub) SendToUser(userID uuid.UUID, message *notification.WebSocketMessage) error {
	h.mutex.RLock()
	client, exists := h.clients[userID]
	h.mutex.RUnlock()
	if !exists {
		return ErrNotConnected
	}

	if err := client.send(message); err != nil {
		h.log.Warn("websocket send failed", zap.String("user_id", userID.String()), zap.Error(err))
		go h.unregister(client)
		return err
	}
	return nil
}

// Serve upgrades the request and pumps the connection until it closes
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &hubClient{userID: userID, conn: conn}
	h.register(client)
	defer h.unregister(client)

	for {
		var message map[string]any
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read ended", zap.String("user_id", userID.String()), zap.Error(err))
			}
			return nil
		}

		if msgType, ok := message["type"].(string); ok && msgType == "ping" {
			client.send(&notification.WebSocketMessage{
				Type:      "pong",
				Message:   "pong",
				Timestamp: notification.GetCurrentTime(),
			})
		}
	}
}

// ConnectedUsers returns the users with a live connection
func (h *Hub) ConnectedUsers() []uuid.UUID {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	users := make([]uuid.UUID, 0, len(h.clients))
	for userID := range h.clients {
		users = append(users, userID)
	}
	return users
}

// ConnectionCount returns number of active connections
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
