package internal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState is the connection lifecycle state
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// FrameHandler receives inbound frames for the session a connection is
// bound to. Frames for one connection are delivered in arrival order.
type FrameHandler func(sessionID int64, frame Frame)

// DisconnectHandler is invoked when the active connection is lost for
// any reason other than an explicit local close.
type DisconnectHandler func(sessionID int64, err error)

// link is one live socket bound to one session. Once closed is set its
// read loop discards everything, so a torn-down connection can never
// deliver frames into a newly selected session's transcript.
type link struct {
	sessionID int64
	conn      *websocket.Conn
	closed    atomic.Bool
}

// ConnectionManager owns at most one active bidirectional connection,
// bound to the currently selected session. Selecting a new session
// tears the previous connection down before dialing.
type ConnectionManager struct {
	api          *APIClient
	dialer       *websocket.Dialer
	onFrame      FrameHandler
	onDisconnect DisconnectHandler

	mu     sync.Mutex
	state  ConnState
	active *link
}

// NewConnectionManager creates a manager using the API client for
// credentials and endpoint construction.
func NewConnectionManager(api *APIClient, onFrame FrameHandler, onDisconnect DisconnectHandler) *ConnectionManager {
	return &ConnectionManager{
		api:          api,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		onFrame:      onFrame,
		onDisconnect: onDisconnect,
		state:        StateDisconnected,
	}
}

// Connect binds a connection to the given session. Any existing
// connection is cleanly closed first, returning the manager to
// Disconnected before the new attempt begins. A credential failure
// terminates the attempt and leaves the manager Disconnected.
func (cm *ConnectionManager) Connect(ctx context.Context, sessionID int64) error {
	cm.Disconnect()

	cm.mu.Lock()
	cm.state = StateConnecting
	cm.mu.Unlock()

	credential, err := cm.api.ConnectionCredential(ctx)
	if err != nil {
		cm.mu.Lock()
		cm.state = StateDisconnected
		cm.mu.Unlock()
		return err
	}

	conn, _, err := cm.dialer.DialContext(ctx, cm.api.SocketURL(sessionID, credential), nil)
	if err != nil {
		cm.mu.Lock()
		cm.state = StateDisconnected
		cm.mu.Unlock()
		return &TransportError{SessionID: sessionID, Op: "dial", Err: err}
	}

	l := &link{sessionID: sessionID, conn: conn}

	cm.mu.Lock()
	cm.active = l
	cm.state = StateConnected
	cm.mu.Unlock()

	go cm.readLoop(l)

	LogInfo("Connected to session %d", sessionID)
	return nil
}

// Disconnect cleanly closes the active connection, if any
func (cm *ConnectionManager) Disconnect() {
	cm.mu.Lock()
	l := cm.active
	cm.active = nil
	cm.state = StateDisconnected
	cm.mu.Unlock()

	if l == nil {
		return
	}
	l.closed.Store(true)
	deadline := time.Now().Add(time.Second)
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = l.conn.Close()
	LogInfo("Disconnected from session %d", l.sessionID)
}

// Send writes a user message frame. Sends are rejected unless the
// manager is Connected; there is no outbound queueing.
func (cm *ConnectionManager) Send(content string) error {
	cm.mu.Lock()
	l := cm.active
	state := cm.state
	cm.mu.Unlock()

	if state != StateConnected || l == nil {
		return &ValidationError{Reason: "not connected to a session"}
	}

	payload, err := EncodeOutbound(l.sessionID, content)
	if err != nil {
		return err
	}
	if err := l.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		// A failed write means the transport is gone even when reads
		// still hang on a half-closed socket.
		terr := &TransportError{SessionID: l.sessionID, Op: "write", Err: err}
		cm.teardown(l, terr)
		return terr
	}
	return nil
}

// teardown closes a link after a transport failure, demotes state if
// the link is still active, and reports the loss exactly once.
func (cm *ConnectionManager) teardown(l *link, err error) {
	if l.closed.Swap(true) {
		return
	}
	_ = l.conn.Close()

	cm.mu.Lock()
	if cm.active == l {
		cm.active = nil
		cm.state = StateDisconnected
	}
	cm.mu.Unlock()

	if cm.onDisconnect != nil {
		cm.onDisconnect(l.sessionID, err)
	}
}

// State returns the current connection state
func (cm *ConnectionManager) State() ConnState {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.state
}

// SessionID returns the session the active connection is bound to
func (cm *ConnectionManager) SessionID() (int64, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.active == nil {
		return 0, false
	}
	return cm.active.sessionID, true
}

func (cm *ConnectionManager) readLoop(l *link) {
	for {
		_, raw, err := l.conn.ReadMessage()
		if err != nil {
			if l.closed.Load() {
				return
			}
			cm.teardown(l, &TransportError{SessionID: l.sessionID, Op: "read", Err: err})
			return
		}

		if l.closed.Load() {
			return
		}

		frame, perr := ParseFrame(raw)
		if perr != nil {
			LogWarn("Dropping frame: %v", perr)
			continue
		}
		if cm.onFrame != nil {
			cm.onFrame(l.sessionID, frame)
		}
	}
}
