package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/code-collab-demo/modules/broadcast"
	"github.com/example/code-collab-demo/modules/collab"
	"github.com/gofiber/fiber/v2"
)

// fakeCollab is a CollabPort that replies with canned responses and records
// the room operations it saw, in order.
type fakeCollab struct {
	listResp collab.ListRoomsResponse
	getResp  collab.GetRoomResponse
	joinResp collab.JoinRoomResponse
	err      error

	mu     sync.Mutex
	joins  []collab.JoinRoomRequest
	leaves []collab.LeaveRoomRequest
	edits  []collab.CodeChangeRequest
	ops    []string
}

func (f *fakeCollab) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *fakeCollab) JoinRoom(_ context.Context, req collab.JoinRoomRequest) (collab.JoinRoomResponse, error) {
	f.record("join:" + req.RoomID)
	f.mu.Lock()
	f.joins = append(f.joins, req)
	f.mu.Unlock()
	return f.joinResp, f.err
}

func (f *fakeCollab) LeaveRoom(_ context.Context, req collab.LeaveRoomRequest) (collab.LeaveRoomResponse, error) {
	f.record("leave:" + req.RoomID)
	f.mu.Lock()
	f.leaves = append(f.leaves, req)
	f.mu.Unlock()
	return collab.LeaveRoomResponse{}, f.err
}

func (f *fakeCollab) CodeChange(_ context.Context, req collab.CodeChangeRequest) (collab.Ack, error) {
	f.record("codeChange:" + req.RoomID)
	f.mu.Lock()
	f.edits = append(f.edits, req)
	f.mu.Unlock()
	return collab.Ack{OK: true}, f.err
}

func (f *fakeCollab) LanguageChange(context.Context, collab.LanguageChangeRequest) (collab.Ack, error) {
	return collab.Ack{OK: true}, f.err
}

func (f *fakeCollab) Typing(context.Context, collab.TypingRequest) (collab.Ack, error) {
	return collab.Ack{OK: true}, f.err
}

func (f *fakeCollab) ChatMessage(context.Context, collab.ChatMessageRequest) (collab.Ack, error) {
	return collab.Ack{OK: true}, f.err
}

func (f *fakeCollab) ListRooms(context.Context) (collab.ListRoomsResponse, error) {
	return f.listResp, f.err
}

func (f *fakeCollab) GetRoom(context.Context, string) (collab.GetRoomResponse, error) {
	return f.getResp, f.err
}

// fakeRuntimes is a canned RuntimeSource.
type fakeRuntimes struct {
	catalog json.RawMessage
	err     error
}

func (f *fakeRuntimes) Runtimes(context.Context) (json.RawMessage, error) {
	return f.catalog, f.err
}

// newTestModule builds an APIModule with routes mounted but no listener.
func newTestModule(t *testing.T, port *fakeCollab, runtimes *fakeRuntimes) *APIModule {
	t.Helper()
	m := &APIModule{
		collabPort: port,
		hub:        broadcast.NewHub(),
		runtimes:   runtimes,
		staticDir:  t.TempDir(),
	}
	m.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
	})
	m.setupRoutes()
	return m
}

func decodeJSON(t *testing.T, body io.Reader, dest any) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(dest); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestHealthHandler(t *testing.T) {
	m := newTestModule(t, &fakeCollab{}, &fakeRuntimes{})

	resp, err := m.app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var health HealthResponse
	decodeJSON(t, resp.Body, &health)
	if health.Status != "healthy" {
		t.Errorf("status = %q, want healthy", health.Status)
	}
}

func TestListRooms(t *testing.T) {
	m := newTestModule(t, &fakeCollab{
		listResp: collab.ListRoomsResponse{
			Rooms: []collab.RoomInfo{
				{ID: "room-1", MemberCount: 2},
				{ID: "room-2", MemberCount: 1},
			},
		},
	}, &fakeRuntimes{})

	resp, err := m.app.Test(httptest.NewRequest("GET", "/api/v1/rooms", nil))
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var list RoomListResponse
	decodeJSON(t, resp.Body, &list)
	if len(list.Rooms) != 2 {
		t.Fatalf("rooms = %d, want 2", len(list.Rooms))
	}
	if list.Rooms[0].ID == "" || list.Rooms[0].Members == 0 {
		t.Errorf("room entry not populated: %+v", list.Rooms[0])
	}
}

func TestListRooms_Error(t *testing.T) {
	m := newTestModule(t, &fakeCollab{err: errors.New("bus down")}, &fakeRuntimes{})

	resp, err := m.app.Test(httptest.NewRequest("GET", "/api/v1/rooms", nil))
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestGetRoom(t *testing.T) {
	m := newTestModule(t, &fakeCollab{
		getResp: collab.GetRoomResponse{
			RoomID:  "room-1",
			Members: []string{"alice", "bob"},
			Found:   true,
		},
	}, &fakeRuntimes{})

	resp, err := m.app.Test(httptest.NewRequest("GET", "/api/v1/rooms/room-1", nil))
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var detail RoomDetailResponse
	decodeJSON(t, resp.Body, &detail)
	if detail.ID != "room-1" {
		t.Errorf("id = %q, want room-1", detail.ID)
	}
	if len(detail.Members) != 2 {
		t.Errorf("members = %v, want 2 entries", detail.Members)
	}
}

func TestGetRoom_NotFound(t *testing.T) {
	m := newTestModule(t, &fakeCollab{getResp: collab.GetRoomResponse{Found: false}}, &fakeRuntimes{})

	resp, err := m.app.Test(httptest.NewRequest("GET", "/api/v1/rooms/ghost", nil))
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	var errResp ErrorResponse
	decodeJSON(t, resp.Body, &errResp)
	if errResp.Error != "not_found" {
		t.Errorf("error = %q, want not_found", errResp.Error)
	}
}

func TestListRuntimes(t *testing.T) {
	const catalog = `[{"language":"python","version":"3.12.0"}]`
	m := newTestModule(t, &fakeCollab{}, &fakeRuntimes{catalog: json.RawMessage(catalog)})

	resp, err := m.app.Test(httptest.NewRequest("GET", "/api/v1/runtimes", nil))
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != fiber.MIMEApplicationJSON {
		t.Errorf("content type = %q, want %q", ct, fiber.MIMEApplicationJSON)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != catalog {
		t.Errorf("body = %s, want catalog verbatim", body)
	}
}

func TestListRuntimes_Unavailable(t *testing.T) {
	m := newTestModule(t, &fakeCollab{}, &fakeRuntimes{err: errors.New("piston down")})

	resp, err := m.app.Test(httptest.NewRequest("GET", "/api/v1/runtimes", nil))
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestClientMessage_EnvelopeDecoding(t *testing.T) {
	raw := []byte(`{"event":"join","data":{"roomId":"room-1","userName":"alice"}}`)

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if msg.Event != EventJoin {
		t.Errorf("event = %q, want join", msg.Event)
	}

	var p JoinPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		t.Fatalf("payload Unmarshal() error = %v", err)
	}
	if p.RoomID != "room-1" || p.UserName != "alice" {
		t.Errorf("payload = %+v, want room-1/alice", p)
	}
}

// fakeWSConn records the frames a session handler writes to the client.
type fakeWSConn struct {
	mu     sync.Mutex
	frames []broadcast.WireMessage
}

func (f *fakeWSConn) WriteMessage(_ int, data []byte) error {
	var msg broadcast.WireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, msg)
	return nil
}

func (f *fakeWSConn) Close() error { return nil }

func (f *fakeWSConn) errorMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var msgs []string
	for _, frame := range f.frames {
		if frame.Event != broadcast.EventError {
			continue
		}
		if data, ok := frame.Data.(map[string]any); ok {
			if msg, ok := data["message"].(string); ok {
				msgs = append(msgs, msg)
			}
		}
	}
	return msgs
}

// newSessionModule builds an APIModule with a running hub, enough to drive
// the WebSocket session handlers directly.
func newSessionModule(t *testing.T, port *fakeCollab) *APIModule {
	t.Helper()
	m := &APIModule{
		collabPort: port,
		hub:        broadcast.NewHub(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	go m.hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		m.hub.Wait()
	})
	return m
}

// openSession registers a client with the hub and waits for the Run loop to
// pick it up, mirroring what handleWebSocket does on connect.
func openSession(t *testing.T, m *APIModule, id string) (*broadcast.Client, *fakeWSConn) {
	t.Helper()
	conn := &fakeWSConn{}
	client := &broadcast.Client{ID: id, Conn: conn}
	m.hub.Register(client)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.hub.GetClient(id) != nil {
			return client, conn
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("client %s never registered", id)
	return nil, nil
}

func waitForSessionGone(t *testing.T, m *APIModule, id string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.hub.GetClient(id) == nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("client %s never unregistered", id)
}

func joinData(roomID, userName string) json.RawMessage {
	return json.RawMessage(`{"roomId":"` + roomID + `","userName":"` + userName + `"}`)
}

func TestSession_SwitchingRoomsLeavesPrevious(t *testing.T) {
	port := &fakeCollab{}
	m := newSessionModule(t, port)
	client, _ := openSession(t, m, "c-alice")

	m.handleJoin(client, joinData("room-1", "alice"))
	if client.RoomID != "room-1" {
		t.Fatalf("RoomID = %q, want room-1", client.RoomID)
	}

	m.handleJoin(client, joinData("room-2", "alice"))

	wantOps := []string{"join:room-1", "leave:room-1", "join:room-2"}
	port.mu.Lock()
	ops := append([]string(nil), port.ops...)
	leaves := append([]collab.LeaveRoomRequest(nil), port.leaves...)
	port.mu.Unlock()
	if strings.Join(ops, ",") != strings.Join(wantOps, ",") {
		t.Errorf("ops = %v, want %v", ops, wantOps)
	}
	if len(leaves) != 1 || leaves[0].RoomID != "room-1" || leaves[0].UserName != "alice" {
		t.Errorf("leaves = %+v, want one leave of alice from room-1", leaves)
	}

	if m.hub.RoomClientCount("room-1") != 0 {
		t.Errorf("room-1 count = %d, want 0", m.hub.RoomClientCount("room-1"))
	}
	if m.hub.RoomClientCount("room-2") != 1 {
		t.Errorf("room-2 count = %d, want 1", m.hub.RoomClientCount("room-2"))
	}
}

func TestSession_DisconnectLeavesRoom(t *testing.T) {
	port := &fakeCollab{}
	m := newSessionModule(t, port)
	client, _ := openSession(t, m, "c-bob")

	m.handleJoin(client, joinData("room-1", "bob"))
	m.closeSession(client)
	waitForSessionGone(t, m, "c-bob")

	port.mu.Lock()
	leaves := append([]collab.LeaveRoomRequest(nil), port.leaves...)
	port.mu.Unlock()
	if len(leaves) != 1 || leaves[0].RoomID != "room-1" || leaves[0].UserName != "bob" {
		t.Errorf("leaves = %+v, want one leave of bob from room-1", leaves)
	}
	if m.hub.RoomClientCount("room-1") != 0 {
		t.Errorf("room-1 count = %d, want 0", m.hub.RoomClientCount("room-1"))
	}
}

func TestSession_DisconnectWithoutJoinIsNoop(t *testing.T) {
	port := &fakeCollab{}
	m := newSessionModule(t, port)
	client, _ := openSession(t, m, "c-lurker")

	m.closeSession(client)
	waitForSessionGone(t, m, "c-lurker")

	port.mu.Lock()
	defer port.mu.Unlock()
	if len(port.ops) != 0 {
		t.Errorf("ops = %v, want none", port.ops)
	}
}

func TestSession_EventsBeforeJoinRejected(t *testing.T) {
	port := &fakeCollab{}
	m := newSessionModule(t, port)
	client, conn := openSession(t, m, "c-early")

	m.handleCodeChange(client, json.RawMessage(`{"code":"x = 1"}`))

	msgs := conn.errorMessages()
	if len(msgs) != 1 || msgs[0] != "Join a room first" {
		t.Errorf("error messages = %v, want [Join a room first]", msgs)
	}
	port.mu.Lock()
	defer port.mu.Unlock()
	if len(port.edits) != 0 {
		t.Errorf("edits = %+v, want none", port.edits)
	}
}

func TestSession_JoinFailureUnsubscribes(t *testing.T) {
	port := &fakeCollab{joinResp: collab.JoinRoomResponse{Error: "room id contains invalid characters"}}
	m := newSessionModule(t, port)
	client, conn := openSession(t, m, "c-alice")

	m.handleJoin(client, joinData("bad room", "alice"))

	if client.RoomID != "" {
		t.Errorf("RoomID = %q, want empty after rejected join", client.RoomID)
	}
	if m.hub.RoomClientCount("bad room") != 0 {
		t.Errorf("room count = %d, want 0", m.hub.RoomClientCount("bad room"))
	}
	if msgs := conn.errorMessages(); len(msgs) != 1 {
		t.Errorf("error messages = %v, want exactly one", msgs)
	}
}

func TestHandleCompileCode_EnforcesCodeBound(t *testing.T) {
	port := &fakeCollab{}
	m := newSessionModule(t, port)
	client, conn := openSession(t, m, "c-alice")
	m.handleJoin(client, joinData("room-1", "alice"))

	payload, err := json.Marshal(CompileCodePayload{
		Code:     strings.Repeat("a", collab.MaxCodeLength+1),
		Language: "python",
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	m.handleCompileCode(client, payload)

	msgs := conn.errorMessages()
	if len(msgs) != 1 || msgs[0] != collab.ErrCodeTooLong.Error() {
		t.Errorf("error messages = %v, want [%s]", msgs, collab.ErrCodeTooLong)
	}
}

func TestCompileCodePayload_Decoding(t *testing.T) {
	raw := []byte(`{"event":"compileCode","data":{"code":"print(42)","roomId":"room-1","language":"python","version":"3.12.0","stdin":"x"}}`)

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	var p CompileCodePayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		t.Fatalf("payload Unmarshal() error = %v", err)
	}
	if p.Language != "python" || p.Version != "3.12.0" || p.Stdin != "x" {
		t.Errorf("payload = %+v", p)
	}
	if p.Code != "print(42)" {
		t.Errorf("code = %q", p.Code)
	}
}
