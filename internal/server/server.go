package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"taxquery-backend/internal/config"
	"taxquery-backend/internal/conversation"
	"taxquery-backend/internal/db"
	"taxquery-backend/internal/dispatch"
	"taxquery-backend/internal/events"
	"taxquery-backend/internal/intent"
	"taxquery-backend/internal/store"
	"taxquery-backend/internal/types"
)

const eventBuffer = 64

// Deps are the collaborators a Server drives. Database and Publisher are
// optional.
type Deps struct {
	Sessions    *store.MemoryStore
	Transcripts store.TranscriptStore
	Classifier  *intent.Classifier
	Analyst     dispatch.Analyst
	Database    *db.DB
	Publisher   *events.Publisher
	Logger      *slog.Logger
}

type Server struct {
	router *chi.Mux
	cfg    config.Config
	deps   Deps
	logger *slog.Logger
}

func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Sessions == nil || deps.Transcripts == nil || deps.Classifier == nil || deps.Analyst == nil {
		return nil, errors.New("server: sessions, transcripts, classifier and analyst are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", "X-Session-Id"},
		ExposedHeaders:   []string{"X-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{router: r, cfg: cfg, deps: deps, logger: logger}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Post("/api/chat", s.handleChat)
	s.router.Get("/api/chat/history", s.handleHistory)
	s.router.Get("/api/chat/events", s.handleEvents)
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := types.HealthResponse{Status: "ok", Sessions: s.deps.Sessions.Len()}
	code := http.StatusOK
	if s.deps.Database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Database.HealthCheck(ctx); err != nil {
			s.logger.Warn("database health check failed", "error", err)
			resp.Status = "degraded"
			resp.Database = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	// The turn outlives a disconnecting client so that its entries still
	// land in the transcript.
	ctx := context.WithoutCancel(r.Context())
	turn := sess.RunTurn(ctx, req.Message)

	entries := turn.Entries
	if entries == nil {
		entries = []conversation.Entry{}
	}
	w.Header().Set("X-Session-Id", sess.ID)
	writeJSON(w, http.StatusOK, types.ChatResponse{
		SessionID: sess.ID,
		Intent:    string(turn.Intent),
		Entries:   entries,
		Busy:      sess.Engine.State().Busy(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	state := sess.Engine.State()
	w.Header().Set("X-Session-Id", sess.ID)
	writeJSON(w, http.StatusOK, types.HistoryResponse{
		SessionID: sess.ID,
		History:   state.History(),
		Busy:      state.Busy(),
		LastQuery: state.LastSubstantiveQuery(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sid := s.getOrCreateSessionID(r, w)
	sess, release, err := s.deps.Sessions.Watch(r.Context(), sid, s.newSession)
	if err != nil {
		s.writeSessionError(w, sid, err)
		return
	}
	defer release()

	ch := make(chan conversation.Event, eventBuffer)
	unsubscribe := sess.Engine.State().Subscribe(func(ev conversation.Event) {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("event stream is full, dropping event", "session", sess.ID, "kind", ev.Kind)
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-Id", sess.ID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			if err := writeEvent(w, ev); err != nil {
				s.logger.Debug("event stream closed", "session", sess.ID, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev conversation.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}

// session resolves the live session for the request, restoring it from the
// transcript store or creating it. It writes the error response itself when
// it returns false.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*store.Session, bool) {
	sid := s.getOrCreateSessionID(r, w)
	sess, err := s.deps.Sessions.GetOrCreate(r.Context(), sid, s.newSession)
	if err != nil {
		s.writeSessionError(w, sid, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) writeSessionError(w http.ResponseWriter, sid string, err error) {
	if errors.Is(err, store.ErrInvalidSessionID) {
		s.writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	s.logger.Error("failed to open session", "session", sid, "error", err)
	s.writeError(w, http.StatusInternalServerError, "could not open session")
}

func (s *Server) newSession(ctx context.Context, id string) (*store.Session, error) {
	state, err := store.LoadState(ctx, s.deps.Transcripts, id)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("session", id)
	engine := dispatch.New(state, s.deps.Classifier, s.deps.Analyst, logger)
	sess := store.NewSession(id, engine)

	sess.OnClose(store.Record(context.Background(), s.deps.Transcripts, id, state, logger))
	if s.deps.Publisher != nil {
		sess.OnClose(s.deps.Publisher.Attach(id, state))
	}
	logger.Info("session opened", "restored_entries", state.Len())
	return sess, nil
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, types.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func newSessionID() string {
	return "s_" + uuid.NewString()
}

// getSessionID retrieves the session ID from cookie, header or query parameter
func getSessionID(r *http.Request) string {
	if cookie, err := GetSessionCookie(r); err == nil && cookie != "" {
		return cookie
	}
	if sid := strings.TrimSpace(r.Header.Get("X-Session-Id")); sid != "" {
		return sid
	}
	return strings.TrimSpace(r.URL.Query().Get("sessionId"))
}

func (s *Server) getOrCreateSessionID(r *http.Request, w http.ResponseWriter) string {
	sid := getSessionID(r)
	if sid == "" {
		sid = newSessionID()
		s.logger.Debug("creating new session", "session", sid, "path", r.URL.Path)
		SetSessionCookie(w, r, sid)
	}
	return sid
}
