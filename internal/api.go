package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIClient talks to the chat backend's REST surface. It covers only
// the collaborator interfaces the sync engine consumes: session CRUD,
// transcript fallback fetch, and connection credentials.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPIClient creates a client for the given backend base URL
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// conversationResponse mirrors the backend's conversation payload
type conversationResponse struct {
	Session  ChatSession   `json:"session"`
	Messages []ChatMessage `json:"messages"`
}

type credentialResponse struct {
	Token string `json:"token"`
}

type createSessionRequest struct {
	Title       string      `json:"title"`
	SessionType SessionType `json:"session_type"`
	DocumentID  *int64      `json:"document_id,omitempty"`
}

// ListSessions fetches the user's sessions, newest first
func (c *APIClient) ListSessions(ctx context.Context) ([]ChatSession, error) {
	var sessions []ChatSession
	if err := c.do(ctx, http.MethodGet, "/api/chat/sessions", nil, &sessions); err != nil {
		return nil, &MutationError{Op: "list", Err: err}
	}
	return sessions, nil
}

// CreateSession requests a new server-assigned session
func (c *APIClient) CreateSession(ctx context.Context, title string, documentID *int64) (*ChatSession, error) {
	req := createSessionRequest{Title: title, SessionType: SessionGeneral, DocumentID: documentID}
	if documentID != nil {
		req.SessionType = SessionDocument
	}
	var session ChatSession
	if err := c.do(ctx, http.MethodPost, "/api/chat/sessions", req, &session); err != nil {
		return nil, &MutationError{Op: "create", Err: err}
	}
	return &session, nil
}

// UpdateSession sends a partial update and returns the confirmed entry
func (c *APIClient) UpdateSession(ctx context.Context, id int64, patch SessionPatch) (*ChatSession, error) {
	var session ChatSession
	path := fmt.Sprintf("/api/chat/sessions/%d", id)
	if err := c.do(ctx, http.MethodPut, path, patch, &session); err != nil {
		return nil, &MutationError{Op: "update", SessionID: id, Err: err}
	}
	return &session, nil
}

// DeleteSession deletes a session server-side
func (c *APIClient) DeleteSession(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/api/chat/sessions/%d", id)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return &MutationError{Op: "delete", SessionID: id, Err: err}
	}
	return nil
}

// LoadTranscript fetches historical messages for a session. Used as a
// fallback when the durable local cache is empty.
func (c *APIClient) LoadTranscript(ctx context.Context, id int64) ([]ChatMessage, error) {
	var conv conversationResponse
	path := fmt.Sprintf("/api/chat/sessions/%d/conversation", id)
	if err := c.do(ctx, http.MethodGet, path, nil, &conv); err != nil {
		return nil, &MutationError{Op: "load", SessionID: id, Err: err}
	}
	return conv.Messages, nil
}

// ConnectionCredential obtains a short-lived token for the websocket
func (c *APIClient) ConnectionCredential(ctx context.Context) (string, error) {
	var cred credentialResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/ws-token", nil, &cred); err != nil {
		return "", &CredentialError{Err: err}
	}
	if cred.Token == "" {
		return "", &CredentialError{Err: fmt.Errorf("server returned an empty token")}
	}
	return cred.Token, nil
}

// SocketURL builds the websocket endpoint for a session
func (c *APIClient) SocketURL(sessionID int64, credential string) string {
	ws := strings.Replace(c.baseURL, "https://", "wss://", 1)
	ws = strings.Replace(ws, "http://", "ws://", 1)
	return fmt.Sprintf("%s/api/chat/ws/%d?token=%s", ws, sessionID, url.QueryEscape(credential))
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
