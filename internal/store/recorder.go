package store

import (
	"context"
	"fmt"
	"log/slog"

	"taxquery-backend/internal/conversation"
)

// Record persists every entry appended to state. The returned function stops
// recording.
func Record(ctx context.Context, ts TranscriptStore, sessionID string, state *conversation.State, logger *slog.Logger) func() {
	return state.Subscribe(func(ev conversation.Event) {
		if ev.Kind != conversation.EventEntryAppended || ev.Entry == nil {
			return
		}
		if err := ts.AppendEntry(ctx, sessionID, ev.Index, *ev.Entry); err != nil {
			logger.Error("failed to record conversation entry", "session", sessionID, "position", ev.Index, "error", err)
		}
	})
}

// LoadState rebuilds the conversation state of a session from its transcript.
// Unknown sessions get an empty state.
func LoadState(ctx context.Context, ts TranscriptStore, sessionID string) (*conversation.State, error) {
	entries, err := ts.LoadEntries(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript %s: %w", sessionID, err)
	}
	if len(entries) == 0 {
		return conversation.NewState(), nil
	}
	return conversation.Restore(entries), nil
}
