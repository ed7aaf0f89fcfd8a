package analytics

import "fmt"

// MetricKeys are the metric fields the analytics service may attach to an
// answer, in the order they are looked up.
var MetricKeys = []string{"tax demand", "property efficiency", "tax collection", "collection gap"}

// Answer is the normalized result of AnswerQuery.
type Answer struct {
	ResponseText      string
	MetricKey         string
	MetricValue       any
	DetailedBreakdown *string
	Year              *int
}

type queryRequest struct {
	Query string `json:"query"`
}

type followUpRequest struct {
	Query        string `json:"query"`
	LastResponse string `json:"last_response"`
}

type sqlResponse struct {
	SQLQuery string `json:"sql_query"`
}

type breakdownResponse struct {
	Breakdown string `json:"breakdown"`
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analytics api %s failed with status %d: %s", e.Path, e.Status, e.Body)
}
