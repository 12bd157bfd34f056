package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// WireMessage is the JSON envelope for every frame sent to a client.
type WireMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Conn is the subset of the WebSocket connection the hub needs. Narrowed to
// an interface so tests can substitute an in-memory connection.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a connected WebSocket client. RoomID and UserName are
// set while the client is joined to a room, and cleared together.
type Client struct {
	ID       string
	UserName string
	RoomID   string
	Conn     Conn

	wmu sync.Mutex
}

// Send writes a wire message to the client. Safe for concurrent use; the
// hub loop and the connection's own handler both write here.
func (c *Client) Send(event string, payload any) error {
	data, err := json.Marshal(WireMessage{Event: event, Data: payload})
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages WebSocket connections, their room subscriptions, and message
// fan-out. All subscription state is owned by the Run loop; within a room,
// deliveries happen in the order broadcasts were enqueued.
type Hub struct {
	clients    map[string]*Client         // clientID -> Client
	rooms      map[string]map[string]bool // roomID -> set of clientIDs
	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomMessage
	done       chan struct{}
	mu         sync.RWMutex
}

// roomMessage is a queued fan-out. ExcludeID, when set, is skipped so edits
// and typing signals are not echoed back to their sender.
type roomMessage struct {
	RoomID    string
	ExcludeID string
	Event     string
	Payload   any
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It accepts a context for graceful shutdown.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Println("[hub] Shutting down...")
			h.closeAllClients()
			close(h.done)
			return
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case msg := <-h.broadcast:
			h.handleBroadcast(msg)
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub and its room subscription.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastAll queues an event for every client subscribed to a room,
// including the sender.
func (h *Hub) BroadcastAll(roomID, event string, payload any) {
	h.broadcast <- &roomMessage{RoomID: roomID, Event: event, Payload: payload}
}

// BroadcastOthers queues an event for every client subscribed to a room
// except the one identified by excludeID.
func (h *Hub) BroadcastOthers(roomID, excludeID, event string, payload any) {
	h.broadcast <- &roomMessage{RoomID: roomID, ExcludeID: excludeID, Event: event, Payload: payload}
}

// Subscribe adds a client to a room's broadcast group and reports whether
// the client is known to the hub. Registration travels through the register
// channel, so a caller racing the Run loop can observe false and must fail
// the join rather than leave the member unsubscribed. A client subscribes to
// at most one room; any previous subscription is dropped first.
func (h *Hub) Subscribe(clientID, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		log.Printf("[hub] Subscribe for unknown client %s", clientID)
		return false
	}

	if client.RoomID != "" {
		h.dropSubscription(client)
	}

	client.RoomID = roomID
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]bool)
	}
	h.rooms[roomID][clientID] = true
	return true
}

// Unsubscribe removes a client from its current broadcast group.
func (h *Hub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok || client.RoomID == "" {
		return
	}
	h.dropSubscription(client)
	client.RoomID = ""
	client.UserName = ""
}

// dropSubscription removes the client from its room's set, pruning the room
// entry when it empties. Callers hold h.mu.
func (h *Hub) dropSubscription(client *Client) {
	if h.rooms[client.RoomID] != nil {
		delete(h.rooms[client.RoomID], client.ID)
		if len(h.rooms[client.RoomID]) == 0 {
			delete(h.rooms, client.RoomID)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	log.Printf("[hub] Client %s registered", client.ID)
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		if client.RoomID != "" {
			h.dropSubscription(client)
		}
		delete(h.clients, client.ID)
		log.Printf("[hub] Client %s unregistered", client.ID)
	}
}

func (h *Hub) handleBroadcast(msg *roomMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clientIDs, ok := h.rooms[msg.RoomID]
	if !ok {
		return
	}
	for clientID := range clientIDs {
		if clientID == msg.ExcludeID {
			continue
		}
		if client, ok := h.clients[clientID]; ok {
			if err := client.Send(msg.Event, msg.Payload); err != nil {
				log.Printf("[hub] Failed to send %s to client %s: %v", msg.Event, clientID, err)
			}
		}
	}
}

// closeAllClients closes all connected client connections.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		_ = client.Conn.Close()
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]bool)
}

// GetClient returns a client by ID.
func (h *Hub) GetClient(clientID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[clientID]
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomClientCount returns the number of clients subscribed to a room.
func (h *Hub) RoomClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.rooms[roomID]; ok {
		return len(clients)
	}
	return 0
}
