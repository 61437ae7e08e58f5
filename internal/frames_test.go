package internal

import (
	"encoding/json"
	"testing"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    func(t *testing.T, frame Frame)
		wantErr bool
	}{
		{
			name: "connected",
			raw:  `{"type":"connected","session_id":7,"data":{"user_id":3,"session_id":7}}`,
			want: func(t *testing.T, frame Frame) {
				f, ok := frame.(ConnectedFrame)
				if !ok {
					t.Fatalf("ParseFrame() = %T, want ConnectedFrame", frame)
				}
				if f.SessionID != 7 {
					t.Errorf("SessionID = %d, want 7", f.SessionID)
				}
			},
		},
		{
			name: "stream delta",
			raw:  `{"type":"stream_response","session_id":1,"content":"Hello","data":{"message_id":"m1","is_complete":false}}`,
			want: func(t *testing.T, frame Frame) {
				f, ok := frame.(StreamFrame)
				if !ok {
					t.Fatalf("ParseFrame() = %T, want StreamFrame", frame)
				}
				if f.MessageID != "m1" || f.Delta != "Hello" || f.Complete {
					t.Errorf("StreamFrame = %+v, want m1/Hello/incomplete", f)
				}
			},
		},
		{
			name: "stream final with metadata",
			raw:  `{"type":"stream_response","session_id":1,"content":" world","data":{"message_id":"m1","is_complete":true,"confidence_score":0.9,"sources":[{"page_number":4,"excerpt":"clause 4","relevance_score":0.8}]}}`,
			want: func(t *testing.T, frame Frame) {
				f := frame.(StreamFrame)
				if !f.Complete {
					t.Error("Complete = false, want true")
				}
				if f.Confidence == nil || *f.Confidence != 0.9 {
					t.Errorf("Confidence = %v, want 0.9", f.Confidence)
				}
				if len(f.Sources) != 1 || f.Sources[0].PageNumber != 4 {
					t.Errorf("Sources = %+v, want one page-4 citation", f.Sources)
				}
			},
		},
		{
			name: "stream numeric message id",
			raw:  `{"type":"stream_response","session_id":1,"content":"x","data":{"message_id":42,"is_complete":false}}`,
			want: func(t *testing.T, frame Frame) {
				f := frame.(StreamFrame)
				if f.MessageID != "42" {
					t.Errorf("MessageID = %q, want \"42\"", f.MessageID)
				}
			},
		},
		{
			name: "typing on",
			raw:  `{"type":"typing","session_id":2,"data":{"is_typing":true}}`,
			want: func(t *testing.T, frame Frame) {
				f := frame.(TypingFrame)
				if !f.Typing {
					t.Error("Typing = false, want true")
				}
			},
		},
		{
			name: "server error",
			raw:  `{"type":"error","session_id":2,"content":"Error processing message"}`,
			want: func(t *testing.T, frame Frame) {
				f := frame.(ErrorFrame)
				if f.Message != "Error processing message" {
					t.Errorf("Message = %q", f.Message)
				}
			},
		},
		{
			name: "complete message",
			raw:  `{"type":"message","session_id":3,"data":{"id":"a1","type":"assistant","content":"done","is_complete":true}}`,
			want: func(t *testing.T, frame Frame) {
				f := frame.(MessageFrame)
				if f.Message.ID != "a1" || f.Message.Type != RoleAssistant || f.Message.Content != "done" {
					t.Errorf("Message = %+v", f.Message)
				}
			},
		},
		{name: "malformed json", raw: `{"type":`, wantErr: true},
		{name: "unknown type", raw: `{"type":"pong","session_id":1}`, wantErr: true},
		{name: "stream without data", raw: `{"type":"stream_response","session_id":1}`, wantErr: true},
		{name: "stream without message id", raw: `{"type":"stream_response","session_id":1,"data":{"is_complete":false}}`, wantErr: true},
		{name: "message without id", raw: `{"type":"message","session_id":1,"data":{"content":"x"}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ParseFrame([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseFrame() error = nil, want ProtocolError")
				}
				if _, ok := err.(*ProtocolError); !ok {
					t.Errorf("ParseFrame() error = %T, want *ProtocolError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFrame() error = %v", err)
			}
			tt.want(t, frame)
		})
	}
}

func TestEncodeOutbound(t *testing.T) {
	payload, err := EncodeOutbound(12, "what changed in clause 4?")
	if err != nil {
		t.Fatalf("EncodeOutbound() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("outbound payload is not valid JSON: %v", err)
	}
	if decoded["type"] != "message" {
		t.Errorf("type = %v, want message", decoded["type"])
	}
	if decoded["content"] != "what changed in clause 4?" {
		t.Errorf("content = %v", decoded["content"])
	}
	if decoded["session_id"] != float64(12) {
		t.Errorf("session_id = %v, want 12", decoded["session_id"])
	}
}
