package collab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// CollabPort defines the interface for room coordinator operations.
type CollabPort interface {
	JoinRoom(ctx context.Context, req JoinRoomRequest) (JoinRoomResponse, error)
	LeaveRoom(ctx context.Context, req LeaveRoomRequest) (LeaveRoomResponse, error)
	CodeChange(ctx context.Context, req CodeChangeRequest) (Ack, error)
	LanguageChange(ctx context.Context, req LanguageChangeRequest) (Ack, error)
	Typing(ctx context.Context, req TypingRequest) (Ack, error)
	ChatMessage(ctx context.Context, req ChatMessageRequest) (Ack, error)
	ListRooms(ctx context.Context) (ListRoomsResponse, error)
	GetRoom(ctx context.Context, roomID string) (GetRoomResponse, error)
}

// Adapter implements CollabPort using the service container.
type Adapter struct {
	container mono.ServiceContainer
}

// NewAdapter creates a new Adapter.
func NewAdapter(container mono.ServiceContainer) CollabPort {
	if container == nil {
		panic("collab: ServiceContainer is nil")
	}
	return &Adapter{container: container}
}

// JoinRoom adds a user to a room and returns the updated membership plus
// the room's last-known buffer.
func (a *Adapter) JoinRoom(ctx context.Context, req JoinRoomRequest) (JoinRoomResponse, error) {
	var resp JoinRoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceJoinRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to join room: %w", err)
	}
	return resp, nil
}

// LeaveRoom removes a user from a room.
func (a *Adapter) LeaveRoom(ctx context.Context, req LeaveRoomRequest) (LeaveRoomResponse, error) {
	var resp LeaveRoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceLeaveRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return LeaveRoomResponse{}, fmt.Errorf("failed to leave room: %w", err)
	}
	return resp, nil
}

// CodeChange relays a document edit.
func (a *Adapter) CodeChange(ctx context.Context, req CodeChangeRequest) (Ack, error) {
	return a.callAck(ctx, ServiceCodeChange, &req)
}

// LanguageChange switches a room's language.
func (a *Adapter) LanguageChange(ctx context.Context, req LanguageChangeRequest) (Ack, error) {
	return a.callAck(ctx, ServiceLanguageChange, &req)
}

// Typing relays a typing signal.
func (a *Adapter) Typing(ctx context.Context, req TypingRequest) (Ack, error) {
	return a.callAck(ctx, ServiceTyping, &req)
}

// ChatMessage sends a chat message to a room.
func (a *Adapter) ChatMessage(ctx context.Context, req ChatMessageRequest) (Ack, error) {
	return a.callAck(ctx, ServiceChatMessage, &req)
}

// ListRooms returns the active room directory.
func (a *Adapter) ListRooms(ctx context.Context) (ListRoomsResponse, error) {
	req := ListRoomsRequest{}
	var resp ListRoomsResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListRooms,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return ListRoomsResponse{}, fmt.Errorf("failed to list rooms: %w", err)
	}
	return resp, nil
}

// GetRoom returns one room's membership.
func (a *Adapter) GetRoom(ctx context.Context, roomID string) (GetRoomResponse, error) {
	req := GetRoomRequest{RoomID: roomID}
	var resp GetRoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return GetRoomResponse{}, fmt.Errorf("failed to get room: %w", err)
	}
	return resp, nil
}

func (a *Adapter) callAck(ctx context.Context, service string, req any) (Ack, error) {
	var resp Ack
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		&resp,
	); err != nil {
		return Ack{}, fmt.Errorf("failed to call %s: %w", service, err)
	}
	return resp, nil
}
