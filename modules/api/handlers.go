package api

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/code-collab-demo/events"
	"github.com/example/code-collab-demo/modules/broadcast"
	"github.com/example/code-collab-demo/modules/collab"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes() {
	// Health check
	m.app.Get("/health", m.healthHandler)

	// WebSocket endpoint
	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	m.app.Get("/ws", websocket.New(m.handleWebSocket))

	// REST API v1
	api := m.app.Group("/api/v1")
	api.Get("/rooms", m.listRooms)
	api.Get("/rooms/:id", m.getRoom)
	api.Get("/runtimes", m.listRuntimes)

	// Browser client
	m.app.Static("/", m.staticDir)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": m.hub.ClientCount(),
		},
	})
}

// listRooms handles GET /api/v1/rooms.
func (m *APIModule) listRooms(c *fiber.Ctx) error {
	resp, err := m.collabPort.ListRooms(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list rooms",
		})
	}

	response := RoomListResponse{
		Rooms: make([]RoomSummary, 0, len(resp.Rooms)),
	}
	for _, room := range resp.Rooms {
		response.Rooms = append(response.Rooms, RoomSummary{
			ID:      room.ID,
			Members: room.MemberCount,
		})
	}

	return c.JSON(response)
}

// getRoom handles GET /api/v1/rooms/:id.
func (m *APIModule) getRoom(c *fiber.Ctx) error {
	resp, err := m.collabPort.GetRoom(c.UserContext(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "lookup_failed",
			Message: "Failed to look up room",
		})
	}
	if !resp.Found {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Room not found",
		})
	}

	return c.JSON(RoomDetailResponse{
		ID:      resp.RoomID,
		Members: resp.Members,
	})
}

// listRuntimes handles GET /api/v1/runtimes. The catalog is relayed from the
// execution service as-is.
func (m *APIModule) listRuntimes(c *fiber.Ctx) error {
	catalog, err := m.runtimes.Runtimes(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{
			Error:   "runtimes_unavailable",
			Message: "Failed to fetch runtime catalog",
		})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(catalog)
}

// handleWebSocket handles WebSocket connections at /ws.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	clientID := uuid.New().String()
	client := &broadcast.Client{
		ID:   clientID,
		Conn: c,
	}

	m.hub.Register(client)
	defer func() {
		m.closeSession(client)
		log.Printf("[api] WebSocket client disconnected: %s", clientID)
	}()

	log.Printf("[api] WebSocket client connected: %s", clientID)

	// Message loop
	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[api] Client %s closed connection", clientID)
			} else {
				log.Printf("[api] Read error from %s: %v", clientID, err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			m.sendError(client, "Invalid message format")
			continue
		}

		switch msg.Event {
		case EventJoin:
			m.handleJoin(client, msg.Data)
		case EventLeaveRoom:
			m.handleLeave(client)
		case EventCodeChange:
			m.handleCodeChange(client, msg.Data)
		case EventLanguageChange:
			m.handleLanguageChange(client, msg.Data)
		case EventTyping:
			m.handleTyping(client)
		case EventChatMessage:
			m.handleChatMessage(client, msg.Data)
		case EventCompileCode:
			m.handleCompileCode(client, msg.Data)
		default:
			m.sendError(client, "Unknown event: "+msg.Event)
		}
	}
}

// handleJoin subscribes the connection to the room's broadcasts, then adds
// the user to the room. Subscribing first means the joiner receives its own
// userJoined event, which is how the client learns the full member list.
func (m *APIModule) handleJoin(client *broadcast.Client, data json.RawMessage) {
	var p JoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		m.sendError(client, "Invalid join payload")
		return
	}
	if p.RoomID == "" || p.UserName == "" {
		m.sendError(client, "roomId and userName are required")
		return
	}

	// Switching rooms leaves the current one first
	if client.RoomID != "" {
		m.leaveCurrentRoom(client)
	}

	client.UserName = p.UserName
	if !m.hub.Subscribe(client.ID, p.RoomID) {
		client.UserName = ""
		m.sendError(client, "Connection is not registered")
		return
	}

	resp, err := m.collabPort.JoinRoom(context.Background(), collab.JoinRoomRequest{
		RoomID:   p.RoomID,
		UserName: p.UserName,
		SenderID: client.ID,
	})
	if err != nil {
		m.hub.Unsubscribe(client.ID)
		m.sendError(client, "Failed to join room")
		return
	}
	if resp.Error != "" {
		m.hub.Unsubscribe(client.ID)
		m.sendError(client, resp.Error)
		return
	}

	// Bring the late joiner up to date with the room's buffer
	if resp.Code != "" {
		_ = client.Send(broadcast.EventCodeUpdate, resp.Code)
	}
	if resp.Language != "" {
		_ = client.Send(broadcast.EventLanguageUpdate, resp.Language)
	}
}

// handleLeave removes the connection from its current room. The room and
// user come from the session, not the frame.
func (m *APIModule) handleLeave(client *broadcast.Client) {
	if client.RoomID == "" {
		m.sendError(client, "Not in a room")
		return
	}
	m.leaveCurrentRoom(client)
}

func (m *APIModule) handleCodeChange(client *broadcast.Client, data json.RawMessage) {
	var p CodeChangePayload
	if err := json.Unmarshal(data, &p); err != nil {
		m.sendError(client, "Invalid codeChange payload")
		return
	}
	if client.RoomID == "" {
		m.sendError(client, "Join a room first")
		return
	}

	ack, err := m.collabPort.CodeChange(context.Background(), collab.CodeChangeRequest{
		RoomID:   client.RoomID,
		UserName: client.UserName,
		SenderID: client.ID,
		Code:     p.Code,
	})
	if err != nil {
		m.sendError(client, "Failed to relay edit")
		return
	}
	if !ack.OK {
		m.sendError(client, ack.Error)
	}
}

func (m *APIModule) handleLanguageChange(client *broadcast.Client, data json.RawMessage) {
	var p LanguageChangePayload
	if err := json.Unmarshal(data, &p); err != nil {
		m.sendError(client, "Invalid languageChange payload")
		return
	}
	if client.RoomID == "" {
		m.sendError(client, "Join a room first")
		return
	}
	if p.Language == "" {
		m.sendError(client, "language is required")
		return
	}

	ack, err := m.collabPort.LanguageChange(context.Background(), collab.LanguageChangeRequest{
		RoomID:   client.RoomID,
		UserName: client.UserName,
		Language: p.Language,
	})
	if err != nil {
		m.sendError(client, "Failed to change language")
		return
	}
	if !ack.OK {
		m.sendError(client, ack.Error)
	}
}

func (m *APIModule) handleTyping(client *broadcast.Client) {
	if client.RoomID == "" {
		m.sendError(client, "Join a room first")
		return
	}

	ack, err := m.collabPort.Typing(context.Background(), collab.TypingRequest{
		RoomID:   client.RoomID,
		UserName: client.UserName,
		SenderID: client.ID,
	})
	if err != nil {
		m.sendError(client, "Failed to signal typing")
		return
	}
	if !ack.OK {
		m.sendError(client, ack.Error)
	}
}

func (m *APIModule) handleChatMessage(client *broadcast.Client, data json.RawMessage) {
	var p ChatMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		m.sendError(client, "Invalid chatMessage payload")
		return
	}
	if client.RoomID == "" {
		m.sendError(client, "Join a room first")
		return
	}

	ack, err := m.collabPort.ChatMessage(context.Background(), collab.ChatMessageRequest{
		RoomID:   client.RoomID,
		UserName: client.UserName,
		Message:  p.Message,
	})
	if err != nil {
		m.sendError(client, "Failed to send message")
		return
	}
	if !ack.OK {
		m.sendError(client, ack.Error)
	}
}

// handleCompileCode publishes an execution request for the runner module.
// The result arrives asynchronously as a codeResponse broadcast to the room,
// so the only direct reply here is a validation error.
func (m *APIModule) handleCompileCode(client *broadcast.Client, data json.RawMessage) {
	var p CompileCodePayload
	if err := json.Unmarshal(data, &p); err != nil {
		m.sendError(client, "Invalid compileCode payload")
		return
	}
	if client.RoomID == "" {
		m.sendError(client, "Join a room first")
		return
	}
	if p.Language == "" {
		m.sendError(client, "language is required")
		return
	}
	// Same bound the edit path enforces; oversized buffers stop here
	// instead of riding to the execution service.
	if err := collab.ValidateCode(p.Code); err != nil {
		m.sendError(client, err.Error())
		return
	}

	if err := events.ExecutionRequestedV1.Publish(m.eventBus, events.ExecutionRequestedEvent{
		RoomID:   client.RoomID,
		Code:     p.Code,
		Language: p.Language,
		Version:  p.Version,
		Stdin:    p.Stdin,
	}, nil); err != nil {
		log.Printf("[api] Failed to publish ExecutionRequested for room %s: %v", client.RoomID, err)
		m.sendError(client, "Failed to submit code for execution")
	}
}

// closeSession tears a connection's session down. An active room membership
// is left first, so the rest of the room hears userLeft; a connection that
// never joined produces no broadcast at all.
func (m *APIModule) closeSession(client *broadcast.Client) {
	if client.RoomID != "" {
		m.leaveCurrentRoom(client)
	}
	m.hub.Unregister(client)
}

// leaveCurrentRoom unsubscribes the connection before removing the user, so
// the leaver does not receive its own userLeft event.
func (m *APIModule) leaveCurrentRoom(client *broadcast.Client) {
	roomID := client.RoomID
	userName := client.UserName
	m.hub.Unsubscribe(client.ID)

	if _, err := m.collabPort.LeaveRoom(context.Background(), collab.LeaveRoomRequest{
		RoomID:   roomID,
		UserName: userName,
	}); err != nil {
		log.Printf("[api] Failed to leave room %s for client %s: %v", roomID, client.ID, err)
	}
}

func (m *APIModule) sendError(client *broadcast.Client, message string) {
	if err := client.Send(broadcast.EventError, ErrorPayload{Message: message}); err != nil {
		log.Printf("[api] Failed to send error to client %s: %v", client.ID, err)
	}
}
