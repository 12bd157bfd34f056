package broadcast

import (
	"context"
	"reflect"
	"testing"

	"github.com/example/code-collab-demo/events"
)

// startModule starts a broadcast module for the duration of the test and
// returns it with its hub.
func startModule(t *testing.T) (*Module, *Hub) {
	t.Helper()
	m := NewModule()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		if err := m.Stop(context.Background()); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})
	return m, m.GetHub()
}

func TestModule_UserJoinedGoesToWholeRoom(t *testing.T) {
	m, hub := startModule(t)
	_, aliceConn := connect(t, hub, "c-alice", "room-1")
	_, bobConn := connect(t, hub, "c-bob", "room-1")

	err := m.handleUserJoined(context.Background(), events.UserJoinedEvent{
		RoomID:   "room-1",
		UserName: "bob",
		Members:  []string{"alice", "bob"},
	}, nil)
	if err != nil {
		t.Fatalf("handleUserJoined() error = %v", err)
	}

	for _, conn := range []*fakeConn{aliceConn, bobConn} {
		msg := conn.waitFrame(t)
		if msg.Event != EventUserJoined {
			t.Errorf("event = %q, want %q", msg.Event, EventUserJoined)
		}
		payload, ok := msg.Data.(map[string]any)
		if !ok {
			t.Fatalf("data type = %T, want object", msg.Data)
		}
		if payload["userName"] != "bob" {
			t.Errorf("userName = %v, want bob", payload["userName"])
		}
		members, _ := payload["members"].([]any)
		if !reflect.DeepEqual(members, []any{"alice", "bob"}) {
			t.Errorf("members = %v, want [alice bob]", members)
		}
	}
}

func TestModule_CodeChangedSkipsSender(t *testing.T) {
	m, hub := startModule(t)
	_, aliceConn := connect(t, hub, "c-alice", "room-1")
	_, bobConn := connect(t, hub, "c-bob", "room-1")

	err := m.handleCodeChanged(context.Background(), events.CodeChangedEvent{
		RoomID:   "room-1",
		SenderID: "c-alice",
		Code:     "print('hi')",
	}, nil)
	if err != nil {
		t.Fatalf("handleCodeChanged() error = %v", err)
	}

	msg := bobConn.waitFrame(t)
	if msg.Event != EventCodeUpdate {
		t.Errorf("event = %q, want %q", msg.Event, EventCodeUpdate)
	}
	if msg.Data != "print('hi')" {
		t.Errorf("data = %v, want code string", msg.Data)
	}
	if aliceConn.frameCount() != 0 {
		t.Errorf("sender frame count = %d, want 0", aliceConn.frameCount())
	}
}

func TestModule_TypingSkipsSenderCarriesName(t *testing.T) {
	m, hub := startModule(t)
	_, aliceConn := connect(t, hub, "c-alice", "room-1")
	_, bobConn := connect(t, hub, "c-bob", "room-1")

	err := m.handleUserTyping(context.Background(), events.UserTypingEvent{
		RoomID:   "room-1",
		SenderID: "c-bob",
		UserName: "bob",
	}, nil)
	if err != nil {
		t.Fatalf("handleUserTyping() error = %v", err)
	}

	msg := aliceConn.waitFrame(t)
	if msg.Event != EventUserTyping {
		t.Errorf("event = %q, want %q", msg.Event, EventUserTyping)
	}
	if msg.Data != "bob" {
		t.Errorf("data = %v, want bob", msg.Data)
	}
	if bobConn.frameCount() != 0 {
		t.Errorf("sender frame count = %d, want 0", bobConn.frameCount())
	}
}

func TestModule_LanguageChangedGoesToWholeRoom(t *testing.T) {
	m, hub := startModule(t)
	_, aliceConn := connect(t, hub, "c-alice", "room-1")
	_, bobConn := connect(t, hub, "c-bob", "room-1")

	err := m.handleLanguageChanged(context.Background(), events.LanguageChangedEvent{
		RoomID:   "room-1",
		Language: "python",
	}, nil)
	if err != nil {
		t.Fatalf("handleLanguageChanged() error = %v", err)
	}

	for _, conn := range []*fakeConn{aliceConn, bobConn} {
		msg := conn.waitFrame(t)
		if msg.Event != EventLanguageUpdate {
			t.Errorf("event = %q, want %q", msg.Event, EventLanguageUpdate)
		}
		if msg.Data != "python" {
			t.Errorf("data = %v, want python", msg.Data)
		}
	}
}

func TestModule_ChatMessageGoesToWholeRoom(t *testing.T) {
	m, hub := startModule(t)
	_, aliceConn := connect(t, hub, "c-alice", "room-1")

	err := m.handleChatMessage(context.Background(), events.ChatMessageEvent{
		RoomID:  "room-1",
		User:    "alice",
		Message: "hello",
	}, nil)
	if err != nil {
		t.Fatalf("handleChatMessage() error = %v", err)
	}

	msg := aliceConn.waitFrame(t)
	if msg.Event != EventChatMessage {
		t.Errorf("event = %q, want %q", msg.Event, EventChatMessage)
	}
	payload, ok := msg.Data.(map[string]any)
	if !ok {
		t.Fatalf("data type = %T, want object", msg.Data)
	}
	if payload["user"] != "alice" || payload["message"] != "hello" {
		t.Errorf("payload = %v, want alice/hello", payload)
	}
}

func TestModule_ExecutionFinishedRelayedVerbatim(t *testing.T) {
	m, hub := startModule(t)
	_, aliceConn := connect(t, hub, "c-alice", "room-1")
	_, bobConn := connect(t, hub, "c-bob", "room-1")

	err := m.handleExecutionFinished(context.Background(), events.ExecutionFinishedEvent{
		RoomID: "room-1",
		Result: []byte(`{"run":{"output":"42\n","code":0}}`),
	}, nil)
	if err != nil {
		t.Fatalf("handleExecutionFinished() error = %v", err)
	}

	// Both members receive the result, requester included
	for _, conn := range []*fakeConn{aliceConn, bobConn} {
		msg := conn.waitFrame(t)
		if msg.Event != EventCodeResponse {
			t.Errorf("event = %q, want %q", msg.Event, EventCodeResponse)
		}
		payload, ok := msg.Data.(map[string]any)
		if !ok {
			t.Fatalf("data type = %T, want object", msg.Data)
		}
		run, _ := payload["run"].(map[string]any)
		if run["output"] != "42\n" {
			t.Errorf("run.output = %v, want 42\\n", run["output"])
		}
	}
}
