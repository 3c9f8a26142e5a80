package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"choraid-server/models"
)

// Client is one WebSocket connection of a profile. A profile may hold several.
type Client struct {
	Hub       *Hub
	ProfileID uint
	Role      models.Role
	Conn      *websocket.Conn
	Send      chan []byte
}

// Message is the envelope of every frame in both directions
type Message struct {
	Type      string          `json:"type"`
	Data      any             `json:"data,omitempty"`
	Raw       json.RawMessage `json:"-"`
	Timestamp time.Time       `json:"timestamp"`
}

// MessageHandler handles an inbound message of one type
type MessageHandler func(*Client, *Message) error

// Hub tracks connections and fans messages out to them
type Hub struct {
	clients  map[uint]map[*Client]struct{}
	handlers map[string]MessageHandler

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	hub := &Hub{
		clients:    make(map[uint]map[*Client]struct{}),
		handlers:   make(map[string]MessageHandler),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	hub.handlers["ping"] = hub.handlePing
	return hub
}

// Handle registers h for inbound messages of type kind. Call before Run.
func (h *Hub) Handle(kind string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[kind] = handler
}

// Run processes registrations until ctx is done, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, set := range h.clients {
				for client := range set {
					close(client.Send)
				}
			}
			h.clients = make(map[uint]map[*Client]struct{})
			h.mu.Unlock()
			log.Printf("🔌 WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.ProfileID] == nil {
				h.clients[client.ProfileID] = make(map[*Client]struct{})
			}
			h.clients[client.ProfileID][client] = struct{}{}
			h.mu.Unlock()
			log.Printf("🔌 Client registered: profile=%d role=%s", client.ProfileID, client.Role)

		case client := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[client.ProfileID]; ok {
				if _, ok := set[client]; ok {
					delete(set, client)
					close(client.Send)
				}
				if len(set) == 0 {
					delete(h.clients, client.ProfileID)
				}
			}
			h.mu.Unlock()
			log.Printf("🔌 Client unregistered: profile=%d", client.ProfileID)
		}
	}
}

func (h *Hub) handler(kind string) (MessageHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.handlers[kind]
	return fn, ok
}

// SendToProfile delivers message to every connection of a profile
func (h *Hub) SendToProfile(profileID uint, message *Message) int {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Error marshaling message: %v", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.clients[profileID] {
		select {
		case client.Send <- data:
			sent++
		default:
			log.Printf("⚠️ Profile %d's send buffer is full, dropping %s", profileID, message.Type)
		}
	}
	return sent
}

// BroadcastToRole delivers message to every connected profile with role
func (h *Hub) BroadcastToRole(role models.Role, message *Message) int {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Error marshaling message: %v", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, set := range h.clients {
		for client := range set {
			if client.Role != role {
				continue
			}
			select {
			case client.Send <- data:
				sent++
			default:
				log.Printf("⚠️ Profile %d's send buffer is full, dropping %s", client.ProfileID, message.Type)
			}
		}
	}
	return sent
}

// PushNotification sends a stored notification to the profile's open connections
func (h *Hub) PushNotification(profileID uint, n *models.Notification) {
	if sent := h.SendToProfile(profileID, &Message{Type: "notification", Data: n, Timestamp: time.Now()}); sent > 0 {
		log.Printf("📡 Notification %d pushed to profile %d (%d connections)", n.ID, profileID, sent)
	}
}

// IsConnected reports whether a profile has at least one open connection
func (h *Hub) IsConnected(profileID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[profileID]) > 0
}

func (h *Hub) ConnectedProfiles() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) handlePing(client *Client, _ *Message) error {
	return client.SendMessage(&Message{Type: "pong", Timestamp: time.Now()})
}
