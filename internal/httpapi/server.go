package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/ragchat/internal/chatstore"
	"github.com/ent0n29/ragchat/internal/config"
	"github.com/ent0n29/ragchat/internal/datalayer"
	"github.com/ent0n29/ragchat/internal/guards"
	"github.com/ent0n29/ragchat/internal/observability"
)

// DataLayer is the cache-aside orchestration surface the routes consume.
type DataLayer interface {
	CreateSession(ctx context.Context) (string, error)
	GetChatHistory(ctx context.Context, sessionID string) ([]chatstore.Message, error)
	GetKnowledgeContext(ctx context.Context, query string) (string, datalayer.Source, error)
	AppendChatMessages(ctx context.Context, sessionID string, drafts []chatstore.Draft) ([]chatstore.Message, error)
	ClearCache(ctx context.Context) error
	CacheStats(ctx context.Context) datalayer.Stats
}

// Generator produces assistant replies.
type Generator interface {
	GenerateReply(ctx context.Context, history []chatstore.Message, knowledgeContext, query string) (string, error)
	StreamReply(ctx context.Context, history []chatstore.Message, knowledgeContext, query string, emit func(delta string) error) error
}

// Guard validates inbound messages.
type Guard interface {
	Validate(ctx context.Context, message, clientID string, sessionMessageCount int) guards.Result
}

// Ingestor accepts documents into the knowledge store.
type Ingestor interface {
	IngestDocument(ctx context.Context, fullText string) (int, error)
}

type Server struct {
	cfg       config.Config
	data      DataLayer
	generator Generator
	guard     Guard
	ingestor  Ingestor
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, data DataLayer, generator Generator, guard Guard, ingestor Ingestor, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		data:      data,
		generator: generator,
		guard:     guard,
		ingestor:  ingestor,
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Get("/v1/sessions/{id}/messages", s.handleListMessages)
	r.Post("/v1/chat/message", s.handleChatMessage)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Post("/v1/knowledge/documents", s.handleIngestDocument)
	r.Get("/v1/cache/stats", s.handleCacheStats)
	r.Delete("/v1/cache", s.handleClearCache)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"cache":  s.data.CacheStats(r.Context()),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := s.data.CreateSession(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "session_create_failed", "could not create a session, try again later")
		return
	}
	s.metrics.SessionEvents.WithLabelValues("created").Inc()
	respondJSON(w, http.StatusCreated, map[string]any{"session_id": sessionID})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	history, err := s.data.GetChatHistory(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chatstore.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session_not_found", "no such session")
			return
		}
		respondError(w, http.StatusInternalServerError, "history_unavailable", "could not load messages, try again later")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": history})
}

type chatMessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatMessageResponse struct {
	Reply         string           `json:"reply"`
	ContextSource datalayer.Source `json:"context_source"`
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req chatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be JSON with session_id and message")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || req.Message == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id and message are required")
		return
	}

	ctx := r.Context()

	history, err := s.data.GetChatHistory(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, chatstore.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session_not_found", "no such session")
			return
		}
		respondError(w, http.StatusInternalServerError, "history_unavailable", "could not load history, try again later")
		return
	}

	if verdict := s.guard.Validate(ctx, req.Message, req.SessionID, len(history)); !verdict.OK {
		s.metrics.GuardRejections.WithLabelValues(verdict.Code).Inc()
		respondError(w, guardStatus(verdict.Code), verdict.Code, guardMessage(verdict.Code))
		return
	}

	knowledgeContext, source, err := s.data.GetKnowledgeContext(ctx, req.Message)
	if err != nil {
		respondError(w, http.StatusBadGateway, "retrieval_failed", "temporarily unable to answer, try again later")
		return
	}

	reply, err := s.generator.GenerateReply(ctx, history, knowledgeContext, req.Message)
	if err != nil {
		respondError(w, http.StatusBadGateway, "generation_failed", "temporarily unable to answer, try again later")
		return
	}

	if _, err := s.data.AppendChatMessages(ctx, req.SessionID, []chatstore.Draft{
		{Role: chatstore.RoleUser, Content: req.Message},
		{Role: chatstore.RoleBot, Content: reply},
	}); err != nil {
		respondError(w, http.StatusInternalServerError, "persist_failed", "could not record the exchange, try again later")
		return
	}

	s.metrics.ObserveTurnLatency(time.Since(started))
	respondJSON(w, http.StatusOK, chatMessageResponse{Reply: reply, ContextSource: source})
}

type ingestRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be JSON with a non-empty text field")
		return
	}

	chunks, err := s.ingestor.IngestDocument(r.Context(), req.Text)
	if err != nil {
		respondError(w, http.StatusBadGateway, "ingest_failed", "could not ingest the document, try again later")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.data.CacheStats(r.Context()))
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.data.ClearCache(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "cache_clear_failed", "could not clear the cache")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

func guardStatus(code string) int {
	switch code {
	case guards.CodeRateLimited:
		return http.StatusTooManyRequests
	case guards.CodeEmptyMessage, guards.CodeMessageTooLong:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

// guardMessage maps rejection codes to user-facing text. Internal reasons
// stay out of responses.
func guardMessage(code string) string {
	switch code {
	case guards.CodeEmptyMessage:
		return "message cannot be empty"
	case guards.CodeMessageTooLong:
		return "message is too long"
	case guards.CodeRateLimited:
		return "rate limit exceeded, please wait a moment"
	case guards.CodeSessionLimit:
		return "session limit reached, please start a new conversation"
	default:
		return "I can't help with that request, please rephrase your question"
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
