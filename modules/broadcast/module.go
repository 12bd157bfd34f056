package broadcast

import (
	"context"
	"fmt"
	"log"

	"github.com/example/code-collab-demo/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Wire event names sent to clients. These match the browser client's
// listeners and must not be renamed.
const (
	EventUserJoined     = "userJoined"
	EventUserLeft       = "userLeft"
	EventCodeUpdate     = "codeUpdate"
	EventLanguageUpdate = "languageUpdate"
	EventUserTyping     = "userTyping"
	EventChatMessage    = "chatMessage"
	EventCodeResponse   = "codeResponse"
	EventError          = "error"
)

// PresencePayload is the wire payload for userJoined and userLeft.
type PresencePayload struct {
	Members  []string `json:"members"`
	UserName string   `json:"userName"`
}

// ChatPayload is the wire payload for chatMessage.
type ChatPayload struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

// Module consumes collab and runner events and fans them out to WebSocket
// clients. Presence, language, chat and execution results go to the whole
// room; edits and typing signals go to everyone but the sender.
type Module struct {
	hub       *Hub
	cancelHub context.CancelFunc
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new broadcast module.
func NewModule() *Module {
	return &Module{
		hub: NewHub(),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "broadcast"
}

// Start initializes the module and starts the hub.
func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(ctx)
	log.Println("[broadcast] Module started - WebSocket hub running")
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait()
	}
	log.Printf("[broadcast] Module stopped - %d clients were connected", clientCount)
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// GetHub returns the WebSocket hub for the api module to use.
func (m *Module) GetHub() *Hub {
	return m.hub
}

// RegisterEventConsumers registers event handlers.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserJoinedV1, m.handleUserJoined, m,
	); err != nil {
		return fmt.Errorf("failed to register UserJoined consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserLeftV1, m.handleUserLeft, m,
	); err != nil {
		return fmt.Errorf("failed to register UserLeft consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.CodeChangedV1, m.handleCodeChanged, m,
	); err != nil {
		return fmt.Errorf("failed to register CodeChanged consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.LanguageChangedV1, m.handleLanguageChanged, m,
	); err != nil {
		return fmt.Errorf("failed to register LanguageChanged consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserTypingV1, m.handleUserTyping, m,
	); err != nil {
		return fmt.Errorf("failed to register UserTyping consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.ChatMessageV1, m.handleChatMessage, m,
	); err != nil {
		return fmt.Errorf("failed to register ChatMessage consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.ExecutionFinishedV1, m.handleExecutionFinished, m,
	); err != nil {
		return fmt.Errorf("failed to register ExecutionFinished consumer: %w", err)
	}

	log.Println("[broadcast] Registered event consumers: UserJoined, UserLeft, CodeChanged, LanguageChanged, UserTyping, ChatMessage, ExecutionFinished")
	return nil
}

func (m *Module) handleUserJoined(_ context.Context, event events.UserJoinedEvent, _ *mono.Msg) error {
	m.hub.BroadcastAll(event.RoomID, EventUserJoined, PresencePayload{
		Members:  event.Members,
		UserName: event.UserName,
	})
	return nil
}

func (m *Module) handleUserLeft(_ context.Context, event events.UserLeftEvent, _ *mono.Msg) error {
	m.hub.BroadcastAll(event.RoomID, EventUserLeft, PresencePayload{
		Members:  event.Members,
		UserName: event.UserName,
	})
	return nil
}

func (m *Module) handleCodeChanged(_ context.Context, event events.CodeChangedEvent, _ *mono.Msg) error {
	m.hub.BroadcastOthers(event.RoomID, event.SenderID, EventCodeUpdate, event.Code)
	return nil
}

func (m *Module) handleLanguageChanged(_ context.Context, event events.LanguageChangedEvent, _ *mono.Msg) error {
	m.hub.BroadcastAll(event.RoomID, EventLanguageUpdate, event.Language)
	return nil
}

func (m *Module) handleUserTyping(_ context.Context, event events.UserTypingEvent, _ *mono.Msg) error {
	m.hub.BroadcastOthers(event.RoomID, event.SenderID, EventUserTyping, event.UserName)
	return nil
}

func (m *Module) handleChatMessage(_ context.Context, event events.ChatMessageEvent, _ *mono.Msg) error {
	m.hub.BroadcastAll(event.RoomID, EventChatMessage, ChatPayload{
		User:    event.User,
		Message: event.Message,
	})
	return nil
}

func (m *Module) handleExecutionFinished(_ context.Context, event events.ExecutionFinishedEvent, _ *mono.Msg) error {
	log.Printf("[broadcast] Broadcasting execution result to room %s", event.RoomID)
	m.hub.BroadcastAll(event.RoomID, EventCodeResponse, event.Result)
	return nil
}
