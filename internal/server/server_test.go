package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxquery-backend/internal/analytics"
	"taxquery-backend/internal/config"
	"taxquery-backend/internal/conversation"
	"taxquery-backend/internal/intent"
	"taxquery-backend/internal/store"
	"taxquery-backend/internal/types"
)

type fakeAnalyst struct{}

func (fakeAnalyst) AnswerQuery(_ context.Context, query string) (analytics.Answer, error) {
	year := 2013
	return analytics.Answer{
		ResponseText: "Tax collection for " + query,
		MetricKey:    "tax collection",
		MetricValue:  json.Number("123000000"),
		Year:         &year,
	}, nil
}

func (fakeAnalyst) ExplainSQL(_ context.Context, prev, _ string) string {
	return "SELECT 1 -- " + prev
}

func (fakeAnalyst) ExplainBreakdown(context.Context, string, string) string {
	return "broken down"
}

func newTestServer(t *testing.T) (*Server, store.TranscriptStore) {
	t.Helper()
	return newTestServerWithSessions(t, store.NewMemoryStore(time.Minute))
}

func newTestServerWithSessions(t *testing.T, sessions *store.MemoryStore) (*Server, store.TranscriptStore) {
	t.Helper()
	ts := store.NewFileTranscriptStore(t.TempDir())
	s, err := NewServer(config.Config{AllowedOrigins: []string{"*"}}, Deps{
		Sessions:    sessions,
		Transcripts: ts,
		Classifier:  intent.NewClassifier(intent.DefaultVocabulary()),
		Analyst:     fakeAnalyst{},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return s, ts
}

func postChat(t *testing.T, h http.Handler, sid, message string) (*httptest.ResponseRecorder, types.ChatResponse) {
	t.Helper()
	body := strings.NewReader(`{"message":` + mustJSON(t, message) + `}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	req.Header.Set("Content-Type", "application/json")
	if sid != "" {
		req.Header.Set("X-Session-Id", sid)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp types.ChatResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(config.Config{}, Deps{})
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp types.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestChatCreatesSessionCookie(t *testing.T) {
	s, _ := newTestServer(t)
	rec, resp := postChat(t, s.Router(), "", "hello")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(resp.SessionID, "s_"))
	assert.Equal(t, resp.SessionID, rec.Header().Get("X-Session-Id"))
	assert.Equal(t, string(intent.Greeting), resp.Intent)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "Hey! How's it going?", resp.Entries[1].Text)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, resp.SessionID, cookies[0].Value)
}

func TestChatConversationFlow(t *testing.T) {
	s, ts := newTestServer(t)
	h := s.Router()
	sid := "s_flow"

	_, resp := postChat(t, h, sid, "give me sql")
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "I couldn't find a previous query to generate SQL for.", resp.Entries[1].Text)

	_, resp = postChat(t, h, sid, "tax collection in Pune 2013")
	require.Len(t, resp.Entries, 2)
	answer := resp.Entries[1]
	assert.Equal(t, conversation.SourceAnswer, answer.Source)
	require.NotNil(t, answer.MetricLabel)
	assert.Equal(t, "Tax Collection", *answer.MetricLabel)
	require.NotNil(t, answer.Year)
	assert.Equal(t, 2013, *answer.Year)
	assert.False(t, resp.Busy)

	_, resp = postChat(t, h, sid, "show the sql query")
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "SELECT 1 -- tax collection in Pune 2013", resp.Entries[1].Text)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/chat/history?sessionId="+sid, nil)
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist types.HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	assert.Len(t, hist.History, 6)
	assert.Equal(t, "tax collection in Pune 2013", hist.LastQuery)

	persisted, err := ts.LoadEntries(context.Background(), sid)
	require.NoError(t, err)
	assert.Len(t, persisted, 6)
}

func TestChatBlankMessageIsDropped(t *testing.T) {
	s, _ := newTestServer(t)
	rec, resp := postChat(t, s.Router(), "s_blank", "   ")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp.Entries)
	assert.NotNil(t, resp.Entries)
	assert.Equal(t, string(intent.None), resp.Intent)
}

func TestChatRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = postChat(t, h, "../etc/passwd", "hello")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var e types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "invalid session id", e.Error)
}

func TestSessionRestoredFromTranscript(t *testing.T) {
	s, ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ts.AppendEntry(ctx, "s_old", 0, conversation.NewUserEntry("collection gap in Erode")))
	require.NoError(t, ts.AppendEntry(ctx, "s_old", 1, conversation.NewAssistantEntry(conversation.SourceAnswer, "₹2 Cr")))

	_, resp := postChat(t, s.Router(), "s_old", "give me a breakdown")
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "broken down", resp.Entries[1].Text)
}

func openEvents(t *testing.T, ctx context.Context, baseURL, sid string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/chat/events?sessionId="+sid, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return resp
}

func postChatHTTP(t *testing.T, baseURL, sid, message string) {
	t.Helper()
	resp, err := http.Post(baseURL+"/api/chat?sessionId="+sid, "application/json", strings.NewReader(`{"message":`+mustJSON(t, message)+`}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

// readEventKinds reads the stream until n events arrived or it ends.
func readEventKinds(body io.Reader, n int) []string {
	var kinds []string
	sc := bufio.NewScanner(body)
	for len(kinds) < n && sc.Scan() {
		if kind, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

func TestEventsStream(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp := openEvents(t, ctx, srv.URL, "s_sse")
	defer resp.Body.Close()

	postChatHTTP(t, srv.URL, "s_sse", "thanks")
	assert.Equal(t, []string{"entry", "entry"}, readEventKinds(resp.Body, 2))
}

func TestEventsStreamKeepsSessionAlive(t *testing.T) {
	sessions := store.NewMemoryStore(time.Millisecond)
	s, _ := newTestServerWithSessions(t, sessions)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp := openEvents(t, ctx, srv.URL, "s_idle")
	defer resp.Body.Close()

	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, sessions.Sweep())

	postChatHTTP(t, srv.URL, "s_idle", "hello")
	assert.Equal(t, []string{"entry", "entry"}, readEventKinds(resp.Body, 2))
}
