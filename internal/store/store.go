package store

import (
	"context"
	"errors"

	"taxquery-backend/internal/conversation"
)

// ErrInvalidSessionID is returned for session IDs that cannot be persisted.
var ErrInvalidSessionID = errors.New("invalid session id")

// TranscriptStore persists conversation entries so a session can be restored
// after it is evicted from memory or the process restarts.
type TranscriptStore interface {
	// AppendEntry records the entry at the given position. Re-recording a
	// position that already exists is a no-op.
	AppendEntry(ctx context.Context, sessionID string, position int, e conversation.Entry) error
	// LoadEntries returns the transcript in position order, or nil when the
	// session is unknown.
	LoadEntries(ctx context.Context, sessionID string) ([]conversation.Entry, error)
}

func validSessionID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
