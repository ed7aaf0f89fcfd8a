package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"taxquery-backend/internal/conversation"
)

// FileTranscriptStore keeps one JSON document per session on disk.
type FileTranscriptStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileTranscriptStore(dir string) *FileTranscriptStore {
	return &FileTranscriptStore{dir: dir}
}

func (f *FileTranscriptStore) path(sessionID string) string {
	return filepath.Join(f.dir, sessionID+".json")
}

func (f *FileTranscriptStore) LoadEntries(_ context.Context, sessionID string) ([]conversation.Entry, error) {
	if !validSessionID(sessionID) {
		return nil, ErrInvalidSessionID
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readLocked(sessionID)
}

func (f *FileTranscriptStore) AppendEntry(_ context.Context, sessionID string, position int, e conversation.Entry) error {
	if !validSessionID(sessionID) {
		return ErrInvalidSessionID
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.readLocked(sessionID)
	if err != nil {
		return err
	}
	switch {
	case position < len(entries):
		return nil
	case position > len(entries):
		return fmt.Errorf("transcript %s: position %d leaves a gap after %d entries", sessionID, position, len(entries))
	}
	entries = append(entries, e)
	return f.writeLocked(sessionID, entries)
}

func (f *FileTranscriptStore) readLocked(sessionID string) ([]conversation.Entry, error) {
	b, err := os.ReadFile(f.path(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var entries []conversation.Entry
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", sessionID, err)
	}
	return entries, nil
}

func (f *FileTranscriptStore) writeLocked(sessionID string, entries []conversation.Entry) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	target := f.path(sessionID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}
