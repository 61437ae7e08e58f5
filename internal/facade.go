package internal

import (
	"context"
	"strings"
	"sync"
)

// Events are the presentation-side callbacks. All are optional; they
// are invoked from the connection's read loop or from the calling
// goroutine and must be short.
type Events struct {
	// OnMessage fires when a message is appended or a streaming reply
	// changes (including its finalization).
	OnMessage func(sessionID int64, msg ChatMessage)
	// OnTyping fires when the assistant typing indicator toggles.
	OnTyping func(sessionID int64, typing bool)
	// OnNotice surfaces user-visible errors. Network and protocol
	// failures never propagate past the facade uncaught.
	OnNotice func(message string)
	// OnSelectionCleared fires when the selected session is deleted.
	OnSelectionCleared func(sessionID int64)
}

// ChatFacade composes the sync engine into the contract consumed by
// presentation code: send, switch session, connection/typing status.
// All collaborating state objects are injected at construction and
// torn down with Close; nothing is ambient.
type ChatFacade struct {
	api       *APIClient
	store     *TranscriptStore
	directory *SessionDirectory
	assembler *StreamAssembler
	conn      *ConnectionManager
	namer     *TitleAutoNamer
	events    Events

	mu       sync.Mutex
	selected int64
	typing   bool
}

// NewChatFacade wires the engine together
func NewChatFacade(api *APIClient, store *TranscriptStore, directory *SessionDirectory, events Events) *ChatFacade {
	f := &ChatFacade{
		api:       api,
		store:     store,
		directory: directory,
		assembler: NewStreamAssembler(store),
		namer:     NewTitleAutoNamer(directory),
		events:    events,
	}
	f.conn = NewConnectionManager(api, f.handleFrame, f.handleDisconnect)
	return f
}

// Sessions returns the cached session list (refreshing in background)
func (f *ChatFacade) Sessions() []ChatSession {
	return f.directory.List()
}

// RefreshSessions forces a synchronous directory resync
func (f *ChatFacade) RefreshSessions(ctx context.Context) error {
	return f.directory.Refresh(ctx)
}

// SelectSession makes a session current: the previous connection is
// torn down first, the transcript is loaded (falling back to the
// server when the durable cache is empty), and a new connection is
// established. On failure the facade stays Disconnected; a later
// SelectSession or explicit retry is the only reconnect path.
func (f *ChatFacade) SelectSession(ctx context.Context, sessionID int64) ([]ChatMessage, error) {
	f.conn.Disconnect()

	f.mu.Lock()
	prior := f.selected
	f.selected = sessionID
	f.typing = false
	f.mu.Unlock()
	if prior != 0 && prior != sessionID {
		f.assembler.Abort(prior)
	}

	messages, err := f.store.Load(sessionID)
	if err != nil {
		f.notify("Failed to load local transcript: " + err.Error())
		messages = nil
	}
	if len(messages) == 0 {
		if remote, rerr := f.api.LoadTranscript(ctx, sessionID); rerr == nil && len(remote) > 0 {
			for _, msg := range remote {
				if aerr := f.store.Append(sessionID, msg); aerr != nil {
					LogWarn("Failed to cache fetched message: %v", aerr)
				}
			}
			messages = remote
		}
	}

	if err := f.conn.Connect(ctx, sessionID); err != nil {
		f.notify("Connection failed: " + err.Error())
		return messages, err
	}
	return messages, nil
}

// Send transmits a user message on the active connection. The message
// is validated client-side, echoed into the transcript, then written
// to the socket. The first user message in a fresh session triggers
// auto-naming exactly once.
func (f *ChatFacade) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return &ValidationError{Reason: "message is empty"}
	}

	f.mu.Lock()
	sessionID := f.selected
	f.mu.Unlock()

	if f.conn.State() != StateConnected || sessionID == 0 {
		return &ValidationError{Reason: "not connected to a session"}
	}

	hadUser, err := f.store.HasUserMessages(sessionID)
	if err != nil {
		LogWarn("Failed to inspect transcript before send: %v", err)
	}

	msg := NewUserMessage(content)
	if err := f.store.Append(sessionID, msg); err != nil {
		return err
	}
	f.emitMessage(sessionID, msg)

	if err := f.conn.Send(content); err != nil {
		f.notify("Send failed: " + err.Error())
		return err
	}

	f.namer.MaybeName(ctx, sessionID, content, hadUser)
	return nil
}

// Messages returns the durable transcript for a session
func (f *ChatFacade) Messages(sessionID int64) ([]ChatMessage, error) {
	return f.store.Load(sessionID)
}

// CreateSession creates a session and returns the confirmed entry
func (f *ChatFacade) CreateSession(ctx context.Context, title string, documentID *int64) (*ChatSession, error) {
	session, err := f.directory.Create(ctx, title, documentID)
	if err != nil {
		f.notify("Failed to create session: " + err.Error())
		return nil, err
	}
	return session, nil
}

// RenameSession updates a session's title
func (f *ChatFacade) RenameSession(ctx context.Context, sessionID int64, title string) error {
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Reason: "title is empty"}
	}
	if _, err := f.directory.Update(ctx, sessionID, SessionPatch{Title: &title}); err != nil {
		f.notify("Failed to rename session: " + err.Error())
		return err
	}
	return nil
}

// LinkDocument binds a document to a session, switching its type
func (f *ChatFacade) LinkDocument(ctx context.Context, sessionID, documentID int64) error {
	docType := SessionDocument
	patch := SessionPatch{DocumentID: &documentID, SessionType: &docType}
	if _, err := f.directory.Update(ctx, sessionID, patch); err != nil {
		f.notify("Failed to link document: " + err.Error())
		return err
	}
	return nil
}

// DeleteSession removes a session and purges its transcript. Deleting
// the currently selected session clears the selection and drops the
// connection.
func (f *ChatFacade) DeleteSession(ctx context.Context, sessionID int64) error {
	if err := f.directory.Remove(ctx, sessionID); err != nil {
		f.notify("Failed to delete session: " + err.Error())
		return err
	}

	f.mu.Lock()
	wasSelected := f.selected == sessionID
	if wasSelected {
		f.selected = 0
		f.typing = false
	}
	f.mu.Unlock()

	if wasSelected {
		f.conn.Disconnect()
		f.assembler.Abort(sessionID)
		if f.events.OnSelectionCleared != nil {
			f.events.OnSelectionCleared(sessionID)
		}
	}
	return nil
}

// ConnectionState reports the connection lifecycle state
func (f *ChatFacade) ConnectionState() ConnState {
	return f.conn.State()
}

// Typing reports whether the assistant typing indicator is on
func (f *ChatFacade) Typing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.typing
}

// Selected returns the currently selected session id, 0 if none
func (f *ChatFacade) Selected() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selected
}

// Close tears the facade down: the connection is dropped and the
// typing indicator cleared. The injected store remains owned by the
// caller.
func (f *ChatFacade) Close() {
	f.conn.Disconnect()
	f.mu.Lock()
	f.typing = false
	f.selected = 0
	f.mu.Unlock()
}

// handleFrame is the single dispatch point for inbound frames. Frames
// from a connection no longer bound to the selected session are
// dropped before touching any transcript.
func (f *ChatFacade) handleFrame(sessionID int64, frame Frame) {
	f.mu.Lock()
	selected := f.selected
	f.mu.Unlock()
	if sessionID != selected {
		LogWarn("Dropping frame for session %d (selected %d)", sessionID, selected)
		return
	}

	switch fr := frame.(type) {
	case ConnectedFrame:
		LogDebug("Handshake acknowledged for session %d", sessionID)

	case MessageFrame:
		if err := f.store.Append(sessionID, fr.Message); err != nil {
			LogError("Failed to append message: %v", err)
			return
		}
		f.emitMessage(sessionID, fr.Message)

	case StreamFrame:
		if fr.Err != "" {
			f.notify("Assistant error: " + fr.Err)
		}
		finalized, err := f.assembler.Apply(fr)
		if err != nil {
			// Protocol errors drop the frame, state is preserved.
			LogWarn("Dropping stream frame: %v", err)
			return
		}
		if finalized {
			f.setTyping(sessionID, false)
		}
		f.emitStreamUpdate(sessionID, fr.MessageID)

	case TypingFrame:
		f.setTyping(sessionID, fr.Typing)

	case ErrorFrame:
		f.notify(fr.Message)
	}
}

// handleDisconnect reacts to transport loss. No automatic reconnect is
// attempted; the typing indicator and in-flight stream state for the
// session are cleared.
func (f *ChatFacade) handleDisconnect(sessionID int64, err error) {
	f.setTyping(sessionID, false)
	f.assembler.Abort(sessionID)
	f.notify("Connection lost: " + err.Error())
}

func (f *ChatFacade) setTyping(sessionID int64, typing bool) {
	f.mu.Lock()
	changed := f.typing != typing
	f.typing = typing
	f.mu.Unlock()
	if changed && f.events.OnTyping != nil {
		f.events.OnTyping(sessionID, typing)
	}
}

func (f *ChatFacade) emitMessage(sessionID int64, msg ChatMessage) {
	if f.events.OnMessage != nil {
		f.events.OnMessage(sessionID, msg)
	}
}

func (f *ChatFacade) emitStreamUpdate(sessionID int64, messageID string) {
	if f.events.OnMessage == nil {
		return
	}
	messages, err := f.store.Load(sessionID)
	if err != nil {
		return
	}
	for _, msg := range messages {
		if msg.ID == messageID {
			f.events.OnMessage(sessionID, msg)
			return
		}
	}
}

func (f *ChatFacade) notify(message string) {
	if f.events.OnNotice != nil {
		f.events.OnNotice(message)
	} else {
		LogError("%s", message)
	}
}
