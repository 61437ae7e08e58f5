package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// TestCredential is the websocket token the fake server hands out
const TestCredential = "test-ws-token"

// UpdateCall records one PUT /sessions/{id} request
type UpdateCall struct {
	SessionID int64
	Body      map[string]interface{}
}

// FakeChatServer implements the slice of the chat backend the sync
// engine talks to: session CRUD, conversation fetch, the websocket
// token endpoint, and the websocket itself. Tests drive assistant
// frames through the server-side connection handed out on WSConns.
type FakeChatServer struct {
	*httptest.Server

	mu            sync.Mutex
	nextID        int64
	sessions      []map[string]interface{}
	conversations map[int64][]json.RawMessage
	updateCalls   []UpdateCall

	// FailCredential makes the token endpoint return 500.
	FailCredential bool
	// FailMutations makes create/update/delete return 500.
	FailMutations bool

	// WSConns receives the server side of each accepted websocket.
	WSConns chan *websocket.Conn
	// Outbound receives every raw payload a client writes.
	Outbound chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewFakeChatServer starts a fake backend; it is stopped via t.Cleanup
func NewFakeChatServer(t *testing.T) *FakeChatServer {
	t.Helper()
	s := &FakeChatServer{
		nextID:        0,
		conversations: make(map[int64][]json.RawMessage),
		WSConns:       make(chan *websocket.Conn, 4),
		Outbound:      make(chan []byte, 64),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.route))
	t.Cleanup(s.Server.Close)
	return s
}

// AddSession seeds a session and returns its id
func (s *FakeChatServer) AddSession(title string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.sessions = append([]map[string]interface{}{{
		"id":            s.nextID,
		"title":         title,
		"session_type":  "general",
		"message_count": 0,
		"created_at":    time.Now().UTC().Format(time.RFC3339),
	}}, s.sessions...)
	return s.nextID
}

// AddHistory seeds conversation messages returned by the fallback fetch
func (s *FakeChatServer) AddHistory(sessionID int64, messages ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range messages {
		data, _ := json.Marshal(msg)
		s.conversations[sessionID] = append(s.conversations[sessionID], data)
	}
}

// UpdateCalls returns the recorded session update requests
func (s *FakeChatServer) UpdateCalls() []UpdateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UpdateCall, len(s.updateCalls))
	copy(out, s.updateCalls)
	return out
}

// SessionCount returns how many sessions the server holds
func (s *FakeChatServer) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *FakeChatServer) route(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/auth/ws-token" && r.Method == http.MethodPost:
		if s.FailCredential {
			http.Error(w, "token issuance unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"token": TestCredential})

	case path == "/api/chat/sessions" && r.Method == http.MethodGet:
		s.mu.Lock()
		sessions := append([]map[string]interface{}{}, s.sessions...)
		s.mu.Unlock()
		writeJSON(w, sessions)

	case path == "/api/chat/sessions" && r.Method == http.MethodPost:
		if s.FailMutations {
			http.Error(w, "create failed", http.StatusInternalServerError)
			return
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		title, _ := body["title"].(string)
		id := s.AddSession(title)
		s.mu.Lock()
		entry := s.sessions[0]
		if docID, ok := body["document_id"]; ok && docID != nil {
			entry["document_id"] = docID
			entry["session_type"] = "document"
		}
		s.mu.Unlock()
		_ = id
		writeJSON(w, entry)

	case strings.HasPrefix(path, "/api/chat/sessions/") && strings.HasSuffix(path, "/conversation"):
		id := parseID(strings.TrimSuffix(strings.TrimPrefix(path, "/api/chat/sessions/"), "/conversation"))
		s.mu.Lock()
		entry := s.find(id)
		messages := append([]json.RawMessage{}, s.conversations[id]...)
		s.mu.Unlock()
		if entry == nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]interface{}{"session": entry, "messages": messages})

	case strings.HasPrefix(path, "/api/chat/ws/"):
		s.handleWS(w, r, parseID(strings.TrimPrefix(path, "/api/chat/ws/")))

	case strings.HasPrefix(path, "/api/chat/sessions/"):
		id := parseID(strings.TrimPrefix(path, "/api/chat/sessions/"))
		switch r.Method {
		case http.MethodPut:
			if s.FailMutations {
				http.Error(w, "update failed", http.StatusInternalServerError)
				return
			}
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			s.mu.Lock()
			entry := s.find(id)
			if entry != nil {
				s.updateCalls = append(s.updateCalls, UpdateCall{SessionID: id, Body: body})
				for key, value := range body {
					if value != nil {
						entry[key] = value
					}
				}
				entry["updated_at"] = time.Now().UTC().Format(time.RFC3339)
			}
			s.mu.Unlock()
			if entry == nil {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			writeJSON(w, entry)

		case http.MethodDelete:
			if s.FailMutations {
				http.Error(w, "delete failed", http.StatusInternalServerError)
				return
			}
			s.mu.Lock()
			kept := s.sessions[:0]
			for _, entry := range s.sessions {
				if parseID(jsonNumber(entry["id"])) != id {
					kept = append(kept, entry)
				}
			}
			s.sessions = kept
			s.mu.Unlock()
			writeJSON(w, map[string]string{"message": "deleted"})

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}

	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *FakeChatServer) handleWS(w http.ResponseWriter, r *http.Request, sessionID int64) {
	if r.URL.Query().Get("token") != TestCredential {
		http.Error(w, "bad token", http.StatusForbidden)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	welcome, _ := json.Marshal(map[string]interface{}{
		"type":       "connected",
		"session_id": sessionID,
	})
	conn.WriteMessage(websocket.TextMessage, welcome)

	s.WSConns <- conn

	go func() {
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case s.Outbound <- payload:
			default:
			}
		}
	}()
}

func (s *FakeChatServer) find(id int64) map[string]interface{} {
	for _, entry := range s.sessions {
		if parseID(jsonNumber(entry["id"])) == id {
			return entry
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func parseID(raw string) int64 {
	id, _ := strconv.ParseInt(raw, 10, 64)
	return id
}

func jsonNumber(v interface{}) string {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatInt(int64(n), 10)
	case json.Number:
		return n.String()
	case string:
		return n
	default:
		return ""
	}
}
