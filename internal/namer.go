package internal

import (
	"context"
	"strings"
)

const (
	titleMaxLen      = 50
	titleMinBoundary = 20
)

// TitleAutoNamer derives a session title from the first user message
// and commits it exactly once per session for this process lifetime.
type TitleAutoNamer struct {
	directory *SessionDirectory
	named     map[int64]bool
}

// NewTitleAutoNamer creates a namer committing through the directory
func NewTitleAutoNamer(directory *SessionDirectory) *TitleAutoNamer {
	return &TitleAutoNamer{
		directory: directory,
		named:     make(map[int64]bool),
	}
}

// MaybeName auto-names the session from its first user message.
// hasPriorUser reflects the transcript before this message. The
// session is marked named whether or not the update succeeds, so a
// failed rename is not retried on every subsequent message.
func (n *TitleAutoNamer) MaybeName(ctx context.Context, sessionID int64, message string, hasPriorUser bool) {
	if hasPriorUser || n.named[sessionID] {
		return
	}
	n.named[sessionID] = true

	title := DeriveTitle(message)
	if title == "" {
		return
	}

	if _, err := n.directory.Update(ctx, sessionID, SessionPatch{Title: &title}); err != nil {
		LogWarn("Auto-naming session %d failed: %v", sessionID, err)
		return
	}
	LogInfo("Auto-named session %d: %s", sessionID, title)
}

// DeriveTitle trims and collapses whitespace, then truncates to at
// most 50 characters at the nearest word boundary beyond 20 characters
// (hard-truncating if there is none), appending an ellipsis when
// truncated.
func DeriveTitle(message string) string {
	collapsed := strings.Join(strings.Fields(message), " ")
	runes := []rune(collapsed)
	if len(runes) <= titleMaxLen {
		return collapsed
	}

	cut := runes[:titleMaxLen]
	boundary := -1
	for i, r := range cut {
		if r == ' ' {
			boundary = i
		}
	}
	if boundary > titleMinBoundary {
		cut = cut[:boundary]
	}
	return strings.TrimSpace(string(cut)) + "…"
}
