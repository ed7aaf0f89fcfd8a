package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 5*time.Second, discardLogger())
}

func TestAnswerQuery_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathAnswer, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, map[string]any{"query": "What was the total tax collection in 2013-14 residential for Pune city?"}, req)

		_, _ = io.WriteString(w, `{"response":"₹12.3 Cr","tax collection":123000000,"year":2013,"detailed_breakdown":"Ward wise totals"}`)
	})

	ans, err := c.AnswerQuery(context.Background(), "What was the total tax collection in 2013-14 residential for Pune city?")
	require.NoError(t, err)
	assert.Equal(t, "₹12.3 Cr", ans.ResponseText)
	assert.Equal(t, "tax collection", ans.MetricKey)
	assert.Equal(t, json.Number("123000000"), ans.MetricValue)
	require.NotNil(t, ans.Year)
	assert.Equal(t, 2013, *ans.Year)
	require.NotNil(t, ans.DetailedBreakdown)
	assert.Equal(t, "Ward wise totals", *ans.DetailedBreakdown)
}

func TestAnswerQuery_FirstMetricKeyWins(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":"ok","collection gap":4.2,"tax demand":10.5,"tax collection":6.3}`)
	})

	ans, err := c.AnswerQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "tax demand", ans.MetricKey)
	assert.Equal(t, json.Number("10.5"), ans.MetricValue)
}

func TestAnswerQuery_Defaults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":""}`)
	})

	ans, err := c.AnswerQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, DefaultAnswerText, ans.ResponseText)
	assert.Empty(t, ans.MetricKey)
	assert.Nil(t, ans.MetricValue)
	assert.Nil(t, ans.Year)
	assert.Nil(t, ans.DetailedBreakdown)
}

func TestAnswerQuery_Errors(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		_, err := c.AnswerQuery(context.Background(), "q")
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusInternalServerError, statusErr.Status)
		assert.Equal(t, "boom", statusErr.Body)
	})

	t.Run("malformed body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `<html>oops</html>`)
		})
		_, err := c.AnswerQuery(context.Background(), "q")
		require.Error(t, err)
	})

	t.Run("null body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `null`)
		})
		_, err := c.AnswerQuery(context.Background(), "q")
		require.Error(t, err)
	})

	t.Run("transport failure", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()
		c := NewClient(url, time.Second, discardLogger())
		_, err := c.AnswerQuery(context.Background(), "q")
		require.Error(t, err)
	})
}

func TestExplainSQL(t *testing.T) {
	t.Run("returns sql_query", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, pathSQL, r.URL.Path)
			var req followUpRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "property tax in Pune", req.Query)
			assert.Equal(t, "₹12.3 Cr", req.LastResponse)
			_, _ = io.WriteString(w, `{"sql_query":"SELECT 1;"}`)
		})
		assert.Equal(t, "SELECT 1;", c.ExplainSQL(context.Background(), "property tax in Pune", "₹12.3 Cr"))
	})

	t.Run("missing field", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{}`)
		})
		assert.Equal(t, MissingSQLText, c.ExplainSQL(context.Background(), "q", ""))
	})

	t.Run("failure", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		assert.Equal(t, SQLErrorText, c.ExplainSQL(context.Background(), "q", ""))
	})
}

func TestExplainBreakdown(t *testing.T) {
	t.Run("returns breakdown", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, pathBreakdown, r.URL.Path)
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, map[string]string{"query": "q", "last_response": "last"}, req)
			_, _ = io.WriteString(w, `{"breakdown":"Zone 1: 4 Cr"}`)
		})
		assert.Equal(t, "Zone 1: 4 Cr", c.ExplainBreakdown(context.Background(), "q", "last"))
	})

	t.Run("missing field", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"breakdown":""}`)
		})
		assert.Equal(t, MissingBreakdownText, c.ExplainBreakdown(context.Background(), "q", ""))
	})

	t.Run("malformed body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"breakdown":`)
		})
		assert.Equal(t, BreakdownErrorText, c.ExplainBreakdown(context.Background(), "q", ""))
	})
}

func TestYearFrom(t *testing.T) {
	assert.Equal(t, 2015, *yearFrom(json.Number("2015")))
	assert.Equal(t, 2016, *yearFrom(json.Number("2016.0")))
	assert.Equal(t, 2017, *yearFrom("2017"))
	assert.Nil(t, yearFrom(nil))
	assert.Nil(t, yearFrom("2013-14"))
	assert.Nil(t, yearFrom(true))
}
