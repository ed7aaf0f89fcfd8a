package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const DefaultBaseURL = "https://pratyush770.pythonanywhere.com/api"

const (
	pathAnswer    = "/get_response"
	pathSQL       = "/get_sql_query"
	pathBreakdown = "/get_breakdown"
)

// Texts substituted when the service omits a field or cannot be reached.
const (
	DefaultAnswerText     = "Sorry, I couldn't understand the question."
	MissingSQLText        = "Couldn't generate SQL for the last query."
	MissingBreakdownText  = "Couldn't provide a breakdown for the last query."
	SQLErrorText          = "An error occurred while fetching the SQL query."
	BreakdownErrorText    = "An error occurred while fetching the breakdown."
	maxErrorBodyLogLength = 512
)

// Client talks to the property-tax analytics service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient builds a client for baseURL. A zero timeout leaves requests
// bounded only by their context.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// AnswerQuery forwards a free-text question. Transport failures, non-2xx
// statuses and undecodable bodies are returned as errors.
func (c *Client) AnswerQuery(ctx context.Context, query string) (Answer, error) {
	var raw map[string]any
	if err := c.postJSON(ctx, pathAnswer, queryRequest{Query: query}, &raw); err != nil {
		return Answer{}, err
	}
	if raw == nil {
		return Answer{}, fmt.Errorf("analytics api %s: empty body", pathAnswer)
	}

	ans := Answer{ResponseText: DefaultAnswerText}
	if text, ok := raw["response"].(string); ok && text != "" {
		ans.ResponseText = text
	}
	if bd, ok := raw["detailed_breakdown"].(string); ok && bd != "" {
		ans.DetailedBreakdown = &bd
	}
	ans.Year = yearFrom(raw["year"])
	// Only one metric is surfaced per answer even if the service sends more.
	for _, key := range MetricKeys {
		if v, ok := raw[key]; ok {
			ans.MetricKey = key
			ans.MetricValue = v
			break
		}
	}
	return ans, nil
}

// ExplainSQL asks for the SQL behind previousQuery. Failures are logged and
// turned into a displayable message.
func (c *Client) ExplainSQL(ctx context.Context, previousQuery, lastAssistantText string) string {
	var out sqlResponse
	req := followUpRequest{Query: previousQuery, LastResponse: lastAssistantText}
	if err := c.postJSON(ctx, pathSQL, req, &out); err != nil {
		c.logger.Error("fetching sql query failed", "error", err)
		return SQLErrorText
	}
	if out.SQLQuery == "" {
		return MissingSQLText
	}
	return out.SQLQuery
}

// ExplainBreakdown asks for a detailed breakdown of previousQuery. Failures
// are logged and turned into a displayable message.
func (c *Client) ExplainBreakdown(ctx context.Context, previousQuery, lastAssistantText string) string {
	var out breakdownResponse
	req := followUpRequest{Query: previousQuery, LastResponse: lastAssistantText}
	if err := c.postJSON(ctx, pathBreakdown, req, &out); err != nil {
		c.logger.Error("fetching breakdown failed", "error", err)
		return BreakdownErrorText
	}
	if out.Breakdown == "" {
		return MissingBreakdownText
	}
	return out.Breakdown
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analytics api %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		if len(msg) > maxErrorBodyLogLength {
			msg = msg[:maxErrorBodyLogLength]
		}
		return &StatusError{Path: path, Status: resp.StatusCode, Body: msg}
	}

	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func yearFrom(v any) *int {
	var year int
	switch y := v.(type) {
	case json.Number:
		if n, err := y.Int64(); err == nil {
			year = int(n)
		} else if f, err := y.Float64(); err == nil {
			year = int(f)
		} else {
			return nil
		}
	case float64:
		year = int(y)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(y))
		if err != nil {
			return nil
		}
		year = n
	default:
		return nil
	}
	return &year
}
