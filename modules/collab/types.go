package collab

import (
	"errors"
	"unicode/utf8"
)

// Validation constants
const (
	MaxUserNameLength = 50
	MaxRoomIDLength   = 100
	MaxMessageLength  = 5000
	MaxCodeLength     = 256 * 1024
)

// Validation errors
var (
	ErrUserNameEmpty   = errors.New("user name cannot be empty")
	ErrUserNameTooLong = errors.New("user name exceeds maximum length")
	ErrUserNameInvalid = errors.New("user name contains invalid characters")
	ErrRoomIDEmpty     = errors.New("room id cannot be empty")
	ErrRoomIDTooLong   = errors.New("room id exceeds maximum length")
	ErrRoomIDInvalid   = errors.New("room id contains invalid characters")
	ErrMessageEmpty    = errors.New("message cannot be empty")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
	ErrCodeTooLong     = errors.New("code exceeds maximum length")
	ErrNotInRoom       = errors.New("not a member of the room")
)

// Service names registered by the collab module.
const (
	ServiceJoinRoom       = "join-room"
	ServiceLeaveRoom      = "leave-room"
	ServiceCodeChange     = "code-change"
	ServiceLanguageChange = "language-change"
	ServiceTyping         = "typing"
	ServiceChatMessage    = "chat-message"
	ServiceListRooms      = "list-rooms"
	ServiceGetRoom        = "get-room"
)

// JoinRoomRequest asks to add a user to a room. SenderID is the requesting
// connection, carried through to broadcasts that exclude the sender.
type JoinRoomRequest struct {
	RoomID   string `json:"room_id"`
	UserName string `json:"user_name"`
	SenderID string `json:"sender_id"`
}

// JoinRoomResponse returns the updated membership plus the room's last-known
// buffer so a late joiner can be brought up to date.
type JoinRoomResponse struct {
	Members  []string `json:"members"`
	Code     string   `json:"code"`
	Language string   `json:"language"`
	Error    string   `json:"error,omitempty"`
}

// LeaveRoomRequest asks to remove a user from a room.
type LeaveRoomRequest struct {
	RoomID   string `json:"room_id"`
	UserName string `json:"user_name"`
}

// LeaveRoomResponse returns the membership after removal.
type LeaveRoomResponse struct {
	Members []string `json:"members"`
	Error   string   `json:"error,omitempty"`
}

// CodeChangeRequest relays a document edit from one member to the rest.
type CodeChangeRequest struct {
	RoomID   string `json:"room_id"`
	UserName string `json:"user_name"`
	SenderID string `json:"sender_id"`
	Code     string `json:"code"`
}

// LanguageChangeRequest switches the room's language selection.
type LanguageChangeRequest struct {
	RoomID   string `json:"room_id"`
	UserName string `json:"user_name"`
	Language string `json:"language"`
}

// TypingRequest signals that a member is typing.
type TypingRequest struct {
	RoomID   string `json:"room_id"`
	UserName string `json:"user_name"`
	SenderID string `json:"sender_id"`
}

// ChatMessageRequest sends a chat message to a room.
type ChatMessageRequest struct {
	RoomID   string `json:"room_id"`
	UserName string `json:"user_name"`
	Message  string `json:"message"`
}

// Ack is the reply for operations that only succeed or fail.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ListRoomsRequest asks for the active room directory.
type ListRoomsRequest struct{}

// RoomInfo summarizes one active room.
type RoomInfo struct {
	ID          string `json:"id"`
	MemberCount int    `json:"member_count"`
}

// ListRoomsResponse is the active room directory.
type ListRoomsResponse struct {
	Rooms []RoomInfo `json:"rooms"`
}

// GetRoomRequest asks for one room's membership.
type GetRoomRequest struct {
	RoomID string `json:"room_id"`
}

// GetRoomResponse returns a room's membership. Found is false for rooms
// with no current members; such rooms do not exist.
type GetRoomResponse struct {
	RoomID  string   `json:"room_id"`
	Members []string `json:"members"`
	Found   bool     `json:"found"`
}

// ValidateUserName validates a display name supplied at join time.
func ValidateUserName(userName string) error {
	if userName == "" {
		return ErrUserNameEmpty
	}
	if len(userName) > MaxUserNameLength {
		return ErrUserNameTooLong
	}
	if !utf8.ValidString(userName) {
		return ErrUserNameInvalid
	}
	return nil
}

// ValidateRoomID validates a client-supplied room identifier. Room IDs are
// opaque, case-sensitive tokens; there is no server-side creation step.
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return ErrRoomIDEmpty
	}
	if len(roomID) > MaxRoomIDLength {
		return ErrRoomIDTooLong
	}
	if !utf8.ValidString(roomID) {
		return ErrRoomIDInvalid
	}
	return nil
}

// ValidateMessage validates chat message content.
func ValidateMessage(message string) error {
	if message == "" {
		return ErrMessageEmpty
	}
	if len(message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ValidateCode bounds the size of a relayed buffer.
func ValidateCode(code string) error {
	if len(code) > MaxCodeLength {
		return ErrCodeTooLong
	}
	return nil
}
