package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/example/code-collab-demo/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Module is the room coordinator. It owns the registry of room memberships
// and document snapshots, exposes request-reply services for every room
// operation, and publishes one event per successful mutation for the
// broadcast module to fan out.
type Module struct {
	registry *Registry
	eventBus mono.EventBus

	// mu serializes each registry mutation with its event publish. The
	// registry lock alone is not enough: two joins could update the member
	// set in one order and publish in the other, leaving every client
	// rendering a stale list. The bus preserves per-subject order, so
	// publishing under mu keeps broadcasts in registry order.
	mu sync.Mutex
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new collab module.
func NewModule() *Module {
	return &Module{
		registry: NewRegistry(),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "collab"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.UserJoinedV1.ToBase(),
		events.UserLeftV1.ToBase(),
		events.CodeChangedV1.ToBase(),
		events.LanguageChangedV1.ToBase(),
		events.UserTypingV1.ToBase(),
		events.ChatMessageV1.ToBase(),
	}
}

// RegisterServices registers the coordinator's request-reply services.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	services := map[string]func(mono.ServiceContainer) error{
		ServiceJoinRoom: func(c mono.ServiceContainer) error {
			return helper.RegisterTypedRequestReplyService(c, ServiceJoinRoom,
				json.Unmarshal, json.Marshal, m.handleJoinRoom)
		},
		ServiceLeaveRoom: func(c mono.ServiceContainer) error {
			return helper.RegisterTypedRequestReplyService(c, ServiceLeaveRoom,
				json.Unmarshal, json.Marshal, m.handleLeaveRoom)
		},
		ServiceCodeChange: func(c mono.ServiceContainer) error {
			return helper.RegisterTypedRequestReplyService(c, ServiceCodeChange,
				json.Unmarshal, json.Marshal, m.handleCodeChange)
		},
		ServiceLanguageChange: func(c mono.ServiceContainer) error {
			return helper.RegisterTypedRequestReplyService(c, ServiceLanguageChange,
				json.Unmarshal, json.Marshal, m.handleLanguageChange)
		},
		ServiceTyping: func(c mono.ServiceContainer) error {
			return helper.RegisterTypedRequestReplyService(c, ServiceTyping,
				json.Unmarshal, json.Marshal, m.handleTyping)
		},
		ServiceChatMessage: func(c mono.ServiceContainer) error {
			return helper.RegisterTypedRequestReplyService(c, ServiceChatMessage,
				json.Unmarshal, json.Marshal, m.handleChatMessage)
		},
		ServiceListRooms: func(c mono.ServiceContainer) error {
			return helper.RegisterTypedRequestReplyService(c, ServiceListRooms,
				json.Unmarshal, json.Marshal, m.handleListRooms)
		},
		ServiceGetRoom: func(c mono.ServiceContainer) error {
			return helper.RegisterTypedRequestReplyService(c, ServiceGetRoom,
				json.Unmarshal, json.Marshal, m.handleGetRoom)
		},
	}

	for name, register := range services {
		if err := register(container); err != nil {
			return fmt.Errorf("failed to register %s service: %w", name, err)
		}
	}

	log.Printf("[collab] Registered %d services", len(services))
	return nil
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	log.Println("[collab] Module started")
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	log.Println("[collab] Module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"active_rooms": m.registry.RoomCount(),
		},
	}
}

// handleJoinRoom adds a member to a room and broadcasts the new membership.
// The reply carries the room's last-known buffer for the joining client.
func (m *Module) handleJoinRoom(_ context.Context, req JoinRoomRequest, _ *mono.Msg) (JoinRoomResponse, error) {
	if err := ValidateRoomID(req.RoomID); err != nil {
		return JoinRoomResponse{Error: err.Error()}, nil
	}
	if err := ValidateUserName(req.UserName); err != nil {
		return JoinRoomResponse{Error: err.Error()}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, _ := m.registry.Snapshot(req.RoomID)
	members := m.registry.Join(req.RoomID, req.UserName)

	m.publishEvent("UserJoined", func() error {
		return events.UserJoinedV1.Publish(m.eventBus, events.UserJoinedEvent{
			RoomID:   req.RoomID,
			UserName: req.UserName,
			Members:  members,
		}, nil)
	})

	log.Printf("[collab] %s joined room %s (%d members)", req.UserName, req.RoomID, len(members))
	return JoinRoomResponse{Members: members, Code: doc.Code, Language: doc.Language}, nil
}

// handleLeaveRoom removes a member and broadcasts the new membership.
// Leaving an unknown room or one the user is not in is a no-op: the reply
// succeeds and nothing is broadcast.
func (m *Module) handleLeaveRoom(_ context.Context, req LeaveRoomRequest, _ *mono.Msg) (LeaveRoomResponse, error) {
	if err := ValidateRoomID(req.RoomID); err != nil {
		return LeaveRoomResponse{Error: err.Error()}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	members, removed := m.registry.Leave(req.RoomID, req.UserName)
	if !removed {
		return LeaveRoomResponse{Members: members}, nil
	}

	m.publishEvent("UserLeft", func() error {
		return events.UserLeftV1.Publish(m.eventBus, events.UserLeftEvent{
			RoomID:   req.RoomID,
			UserName: req.UserName,
			Members:  members,
		}, nil)
	})

	log.Printf("[collab] %s left room %s (%d members)", req.UserName, req.RoomID, len(members))
	return LeaveRoomResponse{Members: members}, nil
}

// handleCodeChange records the buffer snapshot and relays the edit to the
// rest of the room. Only current members may edit.
func (m *Module) handleCodeChange(_ context.Context, req CodeChangeRequest, _ *mono.Msg) (Ack, error) {
	if err := ValidateCode(req.Code); err != nil {
		return Ack{Error: err.Error()}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registry.HasMember(req.RoomID, req.UserName) {
		return Ack{Error: ErrNotInRoom.Error()}, nil
	}

	m.registry.SetCode(req.RoomID, req.Code)

	m.publishEvent("CodeChanged", func() error {
		return events.CodeChangedV1.Publish(m.eventBus, events.CodeChangedEvent{
			RoomID:   req.RoomID,
			SenderID: req.SenderID,
			Code:     req.Code,
		}, nil)
	})

	return Ack{OK: true}, nil
}

// handleLanguageChange records the language and broadcasts it room-wide.
func (m *Module) handleLanguageChange(_ context.Context, req LanguageChangeRequest, _ *mono.Msg) (Ack, error) {
	if req.Language == "" {
		return Ack{Error: "language is required"}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registry.HasMember(req.RoomID, req.UserName) {
		return Ack{Error: ErrNotInRoom.Error()}, nil
	}

	m.registry.SetLanguage(req.RoomID, req.Language)

	m.publishEvent("LanguageChanged", func() error {
		return events.LanguageChangedV1.Publish(m.eventBus, events.LanguageChangedEvent{
			RoomID:   req.RoomID,
			Language: req.Language,
		}, nil)
	})

	return Ack{OK: true}, nil
}

// handleTyping relays a typing signal to everyone but the sender.
func (m *Module) handleTyping(_ context.Context, req TypingRequest, _ *mono.Msg) (Ack, error) {
	if !m.registry.HasMember(req.RoomID, req.UserName) {
		return Ack{Error: ErrNotInRoom.Error()}, nil
	}

	m.publishEvent("UserTyping", func() error {
		return events.UserTypingV1.Publish(m.eventBus, events.UserTypingEvent{
			RoomID:   req.RoomID,
			SenderID: req.SenderID,
			UserName: req.UserName,
		}, nil)
	})

	return Ack{OK: true}, nil
}

// handleChatMessage broadcasts a chat message room-wide. Messages are never
// stored.
func (m *Module) handleChatMessage(_ context.Context, req ChatMessageRequest, _ *mono.Msg) (Ack, error) {
	if err := ValidateMessage(req.Message); err != nil {
		return Ack{Error: err.Error()}, nil
	}
	if !m.registry.HasMember(req.RoomID, req.UserName) {
		return Ack{Error: ErrNotInRoom.Error()}, nil
	}

	m.publishEvent("ChatMessage", func() error {
		return events.ChatMessageV1.Publish(m.eventBus, events.ChatMessageEvent{
			RoomID:  req.RoomID,
			User:    req.UserName,
			Message: req.Message,
		}, nil)
	})

	return Ack{OK: true}, nil
}

// handleListRooms returns the active room directory.
func (m *Module) handleListRooms(_ context.Context, _ ListRoomsRequest, _ *mono.Msg) (ListRoomsResponse, error) {
	active := m.registry.Rooms()
	rooms := make([]RoomInfo, 0, len(active))
	for _, room := range active {
		rooms = append(rooms, RoomInfo{ID: room.ID, MemberCount: len(room.Members)})
	}
	return ListRoomsResponse{Rooms: rooms}, nil
}

// handleGetRoom returns one room's membership.
func (m *Module) handleGetRoom(_ context.Context, req GetRoomRequest, _ *mono.Msg) (GetRoomResponse, error) {
	members := m.registry.Members(req.RoomID)
	return GetRoomResponse{
		RoomID:  req.RoomID,
		Members: members,
		Found:   len(members) > 0,
	}, nil
}

// publishEvent publishes an event, logging instead of failing the operation
// when the bus rejects it. The registry mutation already happened; a lost
// broadcast is preferable to an inconsistent reply.
func (m *Module) publishEvent(name string, publish func() error) {
	if m.eventBus == nil {
		return
	}
	if err := publish(); err != nil {
		log.Printf("[collab] Failed to publish %s event: %v", name, err)
	}
}
