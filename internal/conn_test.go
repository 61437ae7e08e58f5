package internal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lexware/chatsync/testutil"
)

// waitFor polls until the condition holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// frameRecorder collects frames delivered by a ConnectionManager
type frameRecorder struct {
	mu     sync.Mutex
	frames []Frame
	bySess map[int64]int
}

func newFrameRecorder() *frameRecorder {
	return &frameRecorder{bySess: make(map[int64]int)}
}

func (r *frameRecorder) handle(sessionID int64, frame Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
	r.bySess[sessionID]++
}

func (r *frameRecorder) count(sessionID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bySess[sessionID]
}

func (r *frameRecorder) all() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

func writeFrame(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to encode frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}
}

func TestConnectionManager_ConnectDeliversFramesInOrder(t *testing.T) {
	server := testutil.NewFakeChatServer(t)
	recorder := newFrameRecorder()
	cm := NewConnectionManager(NewAPIClient(server.URL, "tok"), recorder.handle, nil)
	defer cm.Disconnect()

	if err := cm.Connect(context.Background(), 1); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if cm.State() != StateConnected {
		t.Errorf("State() = %v, want connected", cm.State())
	}
	if id, ok := cm.SessionID(); !ok || id != 1 {
		t.Errorf("SessionID() = %d, %v; want 1, true", id, ok)
	}

	conn := <-server.WSConns
	for _, delta := range []string{"a", "b", "c"} {
		writeFrame(t, conn, map[string]interface{}{
			"type": "stream_response", "session_id": 1, "content": delta,
			"data": map[string]interface{}{"message_id": "m1", "is_complete": false},
		})
	}

	// Welcome frame plus three stream frames.
	waitFor(t, "frames", func() bool { return recorder.count(1) >= 4 })

	frames := recorder.all()
	if _, ok := frames[0].(ConnectedFrame); !ok {
		t.Errorf("frames[0] = %T, want ConnectedFrame", frames[0])
	}
	got := ""
	for _, frame := range frames[1:] {
		if sf, ok := frame.(StreamFrame); ok {
			got += sf.Delta
		}
	}
	if got != "abc" {
		t.Errorf("deltas arrived as %q, want %q", got, "abc")
	}
}

func TestConnectionManager_CredentialFailure(t *testing.T) {
	server := testutil.NewFakeChatServer(t)
	server.FailCredential = true
	cm := NewConnectionManager(NewAPIClient(server.URL, "tok"), nil, nil)

	err := cm.Connect(context.Background(), 1)
	if err == nil {
		t.Fatal("Connect() error = nil, want CredentialError")
	}
	var credErr *CredentialError
	if !errors.As(err, &credErr) {
		t.Errorf("error = %T, want *CredentialError", err)
	}
	if cm.State() != StateDisconnected {
		t.Errorf("State() = %v after failed credential, want disconnected", cm.State())
	}
}

func TestConnectionManager_SendRequiresConnected(t *testing.T) {
	server := testutil.NewFakeChatServer(t)
	cm := NewConnectionManager(NewAPIClient(server.URL, "tok"), nil, nil)

	err := cm.Send("hello")
	if err == nil {
		t.Fatal("Send() while disconnected should fail")
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("error = %T, want *ValidationError", err)
	}
}

func TestConnectionManager_SendWritesOutboundFrame(t *testing.T) {
	server := testutil.NewFakeChatServer(t)
	cm := NewConnectionManager(NewAPIClient(server.URL, "tok"), nil, nil)
	defer cm.Disconnect()

	if err := cm.Connect(context.Background(), 9); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	<-server.WSConns

	if err := cm.Send("review clause 7"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case payload := <-server.Outbound:
		var decoded map[string]interface{}
		if err := json.Unmarshal(payload, &decoded); err != nil {
			t.Fatalf("outbound is not JSON: %v", err)
		}
		if decoded["type"] != "message" || decoded["content"] != "review clause 7" || decoded["session_id"] != float64(9) {
			t.Errorf("outbound = %v", decoded)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the outbound frame")
	}
}

func TestConnectionManager_SwitchClosesPreviousConnection(t *testing.T) {
	server := testutil.NewFakeChatServer(t)
	recorder := newFrameRecorder()
	cm := NewConnectionManager(NewAPIClient(server.URL, "tok"), recorder.handle, nil)
	defer cm.Disconnect()

	if err := cm.Connect(context.Background(), 1); err != nil {
		t.Fatalf("Connect(1) error = %v", err)
	}
	connA := <-server.WSConns
	waitFor(t, "session 1 handshake", func() bool { return recorder.count(1) >= 1 })

	if err := cm.Connect(context.Background(), 2); err != nil {
		t.Fatalf("Connect(2) error = %v", err)
	}
	<-server.WSConns
	waitFor(t, "session 2 handshake", func() bool { return recorder.count(2) >= 1 })

	if id, _ := cm.SessionID(); id != 2 {
		t.Errorf("SessionID() = %d after switch, want 2", id)
	}

	// A frame still in flight on the old connection must never be
	// delivered into the new session's stream.
	before := recorder.count(1)
	connA.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"stream_response","session_id":1,"content":"stale","data":{"message_id":"m1","is_complete":false}}`))
	time.Sleep(100 * time.Millisecond)

	if after := recorder.count(1); after != before {
		t.Errorf("stale connection delivered %d frame(s) after switch", after-before)
	}
}

func TestConnectionManager_TransportLossReported(t *testing.T) {
	server := testutil.NewFakeChatServer(t)
	recorder := newFrameRecorder()

	var mu sync.Mutex
	var lost []int64
	onDisconnect := func(sessionID int64, err error) {
		mu.Lock()
		defer mu.Unlock()
		lost = append(lost, sessionID)
	}

	cm := NewConnectionManager(NewAPIClient(server.URL, "tok"), recorder.handle, onDisconnect)
	if err := cm.Connect(context.Background(), 4); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := <-server.WSConns

	conn.Close()

	waitFor(t, "disconnect callback", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lost) == 1 && lost[0] == 4
	})
	if cm.State() != StateDisconnected {
		t.Errorf("State() = %v after transport loss, want disconnected", cm.State())
	}
}

func TestConnectionManager_WriteFailureDisconnects(t *testing.T) {
	server := testutil.NewFakeChatServer(t)

	var mu sync.Mutex
	var lost int
	onDisconnect := func(sessionID int64, err error) {
		mu.Lock()
		defer mu.Unlock()
		lost++
	}

	cm := NewConnectionManager(NewAPIClient(server.URL, "tok"), nil, onDisconnect)
	if err := cm.Connect(context.Background(), 3); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	<-server.WSConns

	// Kill the transport underneath the websocket so the next write
	// fails even though no close handshake ran.
	cm.mu.Lock()
	l := cm.active
	cm.mu.Unlock()
	l.conn.UnderlyingConn().Close()

	if err := cm.Send("doomed"); err == nil {
		t.Fatal("Send() on a dead transport should fail")
	}

	waitFor(t, "disconnected state", func() bool { return cm.State() == StateDisconnected })
	waitFor(t, "single disconnect report", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return lost == 1
	})

	// The loss must not be reported a second time by the read loop.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if lost != 1 {
		t.Errorf("disconnect reported %d times, want 1", lost)
	}
}
