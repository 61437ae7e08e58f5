package internal

import (
	"encoding/json"
	"fmt"
)

// Wire frame type discriminators
const (
	frameConnected = "connected"
	frameMessage   = "message"
	frameStream    = "stream_response"
	frameTyping    = "typing"
	frameError     = "error"
)

// Envelope is the raw JSON envelope carried on the socket.
// Data is frame-type specific and decoded by ParseFrame.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID int64           `json:"session_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Frame is an inbound wire frame, one concrete type per envelope type
type Frame interface {
	frame()
}

// ConnectedFrame acknowledges the websocket handshake
type ConnectedFrame struct {
	SessionID int64
}

// MessageFrame carries one complete, non-streamed message
type MessageFrame struct {
	SessionID int64
	Message   ChatMessage
}

// StreamFrame carries one delta of a streamed assistant reply
type StreamFrame struct {
	SessionID  int64
	MessageID  string
	Delta      string
	Complete   bool
	Confidence *float64
	Sources    []Source
	Err        string
}

// TypingFrame toggles the assistant typing indicator
type TypingFrame struct {
	SessionID int64
	Typing    bool
}

// ErrorFrame carries a human-readable server error
type ErrorFrame struct {
	SessionID int64
	Message   string
}

func (ConnectedFrame) frame() {}
func (MessageFrame) frame()   {}
func (StreamFrame) frame()    {}
func (TypingFrame) frame()    {}
func (ErrorFrame) frame()     {}

// replyID accepts either a string or numeric message_id on the wire.
// The backend assigns numeric database ids; in-flight streams may use
// opaque string ids.
type replyID string

func (r *replyID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = replyID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*r = replyID(n.String())
	return nil
}

// streamData is the data payload of a stream_response envelope
type streamData struct {
	MessageID  replyID  `json:"message_id"`
	IsComplete bool     `json:"is_complete"`
	Confidence *float64 `json:"confidence_score,omitempty"`
	Sources    []Source `json:"sources,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// typingData is the data payload of a typing envelope
type typingData struct {
	IsTyping bool `json:"is_typing"`
}

// ParseFrame decodes a raw socket payload into a typed frame.
// Malformed envelopes and unknown types return a ProtocolError.
func ParseFrame(raw []byte) (Frame, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("malformed envelope: %v", err)}
	}

	switch env.Type {
	case frameConnected:
		return ConnectedFrame{SessionID: env.SessionID}, nil

	case frameMessage:
		var msg ChatMessage
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &msg); err != nil {
				return nil, &ProtocolError{Reason: fmt.Sprintf("malformed message data: %v", err)}
			}
		}
		if msg.Content == "" {
			msg.Content = env.Content
		}
		if msg.ID == "" {
			return nil, &ProtocolError{Reason: "message frame without id"}
		}
		return MessageFrame{SessionID: env.SessionID, Message: msg}, nil

	case frameStream:
		var data streamData
		if len(env.Data) == 0 {
			return nil, &ProtocolError{Reason: "stream_response without data"}
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("malformed stream data: %v", err)}
		}
		if data.MessageID == "" {
			return nil, &ProtocolError{Reason: "stream_response without message_id"}
		}
		return StreamFrame{
			SessionID:  env.SessionID,
			MessageID:  string(data.MessageID),
			Delta:      env.Content,
			Complete:   data.IsComplete,
			Confidence: data.Confidence,
			Sources:    data.Sources,
			Err:        data.Error,
		}, nil

	case frameTyping:
		var data typingData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return nil, &ProtocolError{Reason: fmt.Sprintf("malformed typing data: %v", err)}
			}
		}
		return TypingFrame{SessionID: env.SessionID, Typing: data.IsTyping}, nil

	case frameError:
		return ErrorFrame{SessionID: env.SessionID, Message: env.Content}, nil

	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown frame type %q", env.Type)}
	}
}

// outboundMessage is the only frame the client sends
type outboundMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	SessionID int64  `json:"session_id"`
}

// EncodeOutbound builds the wire payload for a user message
func EncodeOutbound(sessionID int64, content string) ([]byte, error) {
	return json.Marshal(outboundMessage{
		Type:      frameMessage,
		Content:   content,
		SessionID: sessionID,
	})
}
