package conversation

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source records which path of a turn produced an entry.
type Source string

const (
	SourceUtterance   Source = "utterance"
	SourceCanned      Source = "canned"
	SourceAnswer      Source = "answer"
	SourceExplanation Source = "explanation"
	SourceFallback    Source = "fallback"
)

// Entry is one message in the transcript. Analytic fields are only set on
// assistant entries built from an analytics answer.
type Entry struct {
	ID                string    `json:"id"`
	Role              Role      `json:"role"`
	Text              string    `json:"text"`
	Source            Source    `json:"source"`
	MetricLabel       *string   `json:"metricLabel,omitempty"`
	MetricValue       any       `json:"metricValue,omitempty"`
	DetailedBreakdown *string   `json:"detailedBreakdown,omitempty"`
	Year              *int      `json:"year,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

func NewUserEntry(text string) Entry {
	return newEntry(RoleUser, SourceUtterance, text)
}

func NewAssistantEntry(source Source, text string) Entry {
	return newEntry(RoleAssistant, source, text)
}

func newEntry(role Role, source Source, text string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a copy of e that shares no pointers with it. MetricValue is
// a decoded JSON scalar and is copied by value.
func (e Entry) Clone() Entry {
	if e.MetricLabel != nil {
		v := *e.MetricLabel
		e.MetricLabel = &v
	}
	if e.DetailedBreakdown != nil {
		v := *e.DetailedBreakdown
		e.DetailedBreakdown = &v
	}
	if e.Year != nil {
		v := *e.Year
		e.Year = &v
	}
	return e
}
