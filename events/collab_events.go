package events

import (
	"encoding/json"

	"github.com/go-monolith/mono/pkg/helper"
)

// UserJoinedEvent is emitted after a user is added to a room's member set.
type UserJoinedEvent struct {
	RoomID   string   `json:"room_id"`
	UserName string   `json:"user_name"`
	Members  []string `json:"members"`
}

// UserLeftEvent is emitted after a user is removed from a room's member set,
// whether by an explicit leave, a room switch, or a disconnect.
type UserLeftEvent struct {
	RoomID   string   `json:"room_id"`
	UserName string   `json:"user_name"`
	Members  []string `json:"members"`
}

// CodeChangedEvent carries a new document snapshot. SenderID identifies the
// connection that produced the edit so the broadcast can exclude it.
type CodeChangedEvent struct {
	RoomID   string `json:"room_id"`
	SenderID string `json:"sender_id"`
	Code     string `json:"code"`
}

// LanguageChangedEvent is emitted when a room's language selection changes.
type LanguageChangedEvent struct {
	RoomID   string `json:"room_id"`
	Language string `json:"language"`
}

// UserTypingEvent is an ephemeral typing signal, excluded from the sender.
type UserTypingEvent struct {
	RoomID   string `json:"room_id"`
	SenderID string `json:"sender_id"`
	UserName string `json:"user_name"`
}

// ChatMessageEvent carries a chat message for room-wide delivery.
type ChatMessageEvent struct {
	RoomID  string `json:"room_id"`
	User    string `json:"user"`
	Message string `json:"message"`
}

// ExecutionRequestedEvent asks the runner to execute a room's buffer.
type ExecutionRequestedEvent struct {
	RoomID   string `json:"room_id"`
	Code     string `json:"code"`
	Language string `json:"language"`
	Version  string `json:"version"`
	Stdin    string `json:"stdin,omitempty"`
}

// ExecutionFinishedEvent carries the execution outcome back for broadcast.
// Result is either the execution service's response body, relayed verbatim,
// or a synthesized failure payload. Exactly one of these is published per
// ExecutionRequestedEvent.
type ExecutionFinishedEvent struct {
	RoomID string          `json:"room_id"`
	Result json.RawMessage `json:"result"`
}

// Event definitions for the collab domain.
var (
	UserJoinedV1 = helper.EventDefinition[UserJoinedEvent](
		"collab",
		"UserJoined",
		"v1",
	)

	UserLeftV1 = helper.EventDefinition[UserLeftEvent](
		"collab",
		"UserLeft",
		"v1",
	)

	CodeChangedV1 = helper.EventDefinition[CodeChangedEvent](
		"collab",
		"CodeChanged",
		"v1",
	)

	LanguageChangedV1 = helper.EventDefinition[LanguageChangedEvent](
		"collab",
		"LanguageChanged",
		"v1",
	)

	UserTypingV1 = helper.EventDefinition[UserTypingEvent](
		"collab",
		"UserTyping",
		"v1",
	)

	ChatMessageV1 = helper.EventDefinition[ChatMessageEvent](
		"collab",
		"ChatMessage",
		"v1",
	)

	ExecutionRequestedV1 = helper.EventDefinition[ExecutionRequestedEvent](
		"api",
		"ExecutionRequested",
		"v1",
	)

	ExecutionFinishedV1 = helper.EventDefinition[ExecutionFinishedEvent](
		"runner",
		"ExecutionFinished",
		"v1",
	)
)
