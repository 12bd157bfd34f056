package api

import "encoding/json"

// Inbound wire event names. These match the browser client's emits and must
// not be renamed.
const (
	EventJoin           = "join"
	EventLeaveRoom      = "leaveRoom"
	EventCodeChange     = "codeChange"
	EventLanguageChange = "languageChange"
	EventTyping         = "typing"
	EventChatMessage    = "chatMessage"
	EventCompileCode    = "compileCode"
)

// ClientMessage is the envelope for every inbound WebSocket frame.
type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinPayload is the data for a join event.
type JoinPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

// LeavePayload is the data for a leaveRoom event. The server resolves the
// room and user from the connection's session, so the fields are advisory.
type LeavePayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

// CodeChangePayload is the data for a codeChange event.
type CodeChangePayload struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// LanguageChangePayload is the data for a languageChange event.
type LanguageChangePayload struct {
	RoomID   string `json:"roomId"`
	Language string `json:"language"`
}

// TypingPayload is the data for a typing event.
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

// ChatMessagePayload is the data for a chatMessage event.
type ChatMessagePayload struct {
	RoomID  string `json:"roomId"`
	User    string `json:"user"`
	Message string `json:"message"`
}

// CompileCodePayload is the data for a compileCode event.
type CompileCodePayload struct {
	Code     string `json:"code"`
	RoomID   string `json:"roomId"`
	Language string `json:"language"`
	Version  string `json:"version"`
	Stdin    string `json:"stdin"`
}

// ErrorPayload is the data for an error event sent back to one client.
type ErrorPayload struct {
	Message string `json:"message"`
}

// RoomSummary is the API response entry for one active room.
type RoomSummary struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
}

// RoomListResponse is the API response for listing active rooms.
type RoomListResponse struct {
	Rooms []RoomSummary `json:"rooms"`
}

// RoomDetailResponse is the API response for a single room.
type RoomDetailResponse struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
