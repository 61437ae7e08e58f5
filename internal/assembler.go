package internal

// streamKey identifies one in-flight reply reconstruction
type streamKey struct {
	sessionID int64
	replyID   string
}

// StreamAssembler reconstructs logical assistant replies from ordered
// content deltas. Per reply id it is a three-state machine: pending
// (no frame yet), streaming (deltas accumulate), finalized (immutable).
// Frames are trusted to arrive in send order; the assembler never
// reorders, it only routes by reply id.
type StreamAssembler struct {
	store *TranscriptStore
	open  map[streamKey]bool
	done  map[streamKey]bool
}

// NewStreamAssembler creates an assembler writing into the given store
func NewStreamAssembler(store *TranscriptStore) *StreamAssembler {
	return &StreamAssembler{
		store: store,
		open:  make(map[streamKey]bool),
		done:  make(map[streamKey]bool),
	}
}

// Apply feeds one stream frame through the state machine. It returns
// whether the reply finalized with this frame. Frames referencing an
// already finalized reply are rejected with a ProtocolError and leave
// the transcript untouched.
func (a *StreamAssembler) Apply(f StreamFrame) (finalized bool, err error) {
	key := streamKey{sessionID: f.SessionID, replyID: f.MessageID}

	if a.done[key] {
		return false, &ProtocolError{ReplyID: f.MessageID, Reason: "delta after finalize"}
	}

	if !a.open[key] {
		// Entering Streaming. A second concurrent stream in the same
		// session is a protocol violation that must be reported, but
		// the new reply still gets its own independent message. Only
		// replies open in this process count; a partial row persisted
		// by an earlier run is history, not a live stream.
		if a.Streaming(f.SessionID) {
			LogWarn("Protocol violation: second stream %s started in session %d before prior reply finalized",
				f.MessageID, f.SessionID)
		}
		a.open[key] = true
	}

	err = a.store.ReplaceStreaming(f.SessionID, f.MessageID, func(m *ChatMessage) {
		m.Content += f.Delta
		if f.Complete {
			// The final frame carries authoritative metadata which
			// overwrites any placeholder values.
			if f.Confidence != nil {
				m.Confidence = f.Confidence
			}
			if len(f.Sources) > 0 {
				m.Sources = f.Sources
			}
			m.Complete = true
		}
	})
	if err != nil {
		return false, err
	}

	if f.Complete {
		delete(a.open, key)
		a.done[key] = true
		return true, nil
	}
	return false, nil
}

// Streaming reports whether any reply is still open for a session
func (a *StreamAssembler) Streaming(sessionID int64) bool {
	for key := range a.open {
		if key.sessionID == sessionID {
			return true
		}
	}
	return false
}

// Abort drops all in-flight reconstruction state for a session. Used
// when its connection goes away; the partial content already persisted
// stays in the transcript.
func (a *StreamAssembler) Abort(sessionID int64) {
	for key := range a.open {
		if key.sessionID == sessionID {
			delete(a.open, key)
		}
	}
}
