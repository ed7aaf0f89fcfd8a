package conversation

import "sync"

type EventKind string

const (
	EventEntryAppended EventKind = "entry"
	EventBusyChanged   EventKind = "busy"
)

// Event describes a single change to a State. Index and Entry are set for
// EventEntryAppended, Busy for EventBusyChanged.
type Event struct {
	Kind  EventKind `json:"kind"`
	Index int       `json:"index"`
	Entry *Entry    `json:"entry,omitempty"`
	Busy  bool      `json:"busy"`
}

type Observer func(Event)

type subscription struct {
	id int
	fn Observer
}

// State is the transcript of one session: an append-only list of entries,
// the last query that was answered by the analytics service and whether a
// remote call is in flight. Observers are notified synchronously after each
// change, in the order changes happen.
type State struct {
	mu        sync.RWMutex
	history   []Entry
	lastQuery string
	busy      bool

	obsMu     sync.Mutex
	observers []subscription
	nextObsID int
}

func NewState() *State {
	return &State{}
}

// Restore rebuilds a State from a persisted transcript.
func Restore(entries []Entry) *State {
	return &State{
		history:   cloneEntries(entries),
		lastQuery: RecoverLastQuery(entries),
	}
}

// RecoverLastQuery finds the most recent user entry that was answered by the
// analytics service, i.e. one directly followed by an answer entry.
func RecoverLastQuery(entries []Entry) string {
	for i := len(entries) - 1; i > 0; i-- {
		if entries[i].Source == SourceAnswer && entries[i-1].Role == RoleUser {
			return entries[i-1].Text
		}
	}
	return ""
}

// Append adds an entry to the end of the history.
func (s *State) Append(e Entry) {
	stored := e.Clone()
	s.mu.Lock()
	s.history = append(s.history, stored)
	idx := len(s.history) - 1
	s.mu.Unlock()

	published := stored.Clone()
	s.notify(Event{Kind: EventEntryAppended, Index: idx, Entry: &published})
}

func (s *State) SetBusy(busy bool) {
	s.mu.Lock()
	changed := s.busy != busy
	s.busy = busy
	s.mu.Unlock()

	if changed {
		s.notify(Event{Kind: EventBusyChanged, Busy: busy})
	}
}

func (s *State) SetLastSubstantiveQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuery = q
}

// History returns a copy of the transcript in display order.
func (s *State) History() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEntries(s.history)
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

func (s *State) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}

// LastSubstantiveQuery returns "" when no query has been answered yet.
func (s *State) LastSubstantiveQuery() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastQuery
}

// LastAssistantText returns the text of the most recent assistant entry.
func (s *State) LastAssistantText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Role == RoleAssistant {
			return s.history[i].Text
		}
	}
	return ""
}

// Subscribe registers an observer and returns a function that removes it.
func (s *State) Subscribe(fn Observer) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObsID
	s.nextObsID++
	s.observers = append(s.observers, subscription{id: id, fn: fn})
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *State) notify(ev Event) {
	s.obsMu.Lock()
	subs := append([]subscription(nil), s.observers...)
	s.obsMu.Unlock()
	for _, sub := range subs {
		sub.fn(ev)
	}
}
