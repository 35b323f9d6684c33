package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/ragchat/internal/chatstore"
)

// Websocket chat protocol: the client sends {"message": "..."} frames; the
// server answers each with a sequence of {"type":"delta","content":...}
// frames followed by one {"type":"done","context_source":...} frame. Errors
// arrive as {"type":"error","code":...} and leave the connection open.

type wsClientMessage struct {
	Message string `json:"message"`
}

type wsServerEvent struct {
	Type          string `json:"type"`
	Content       string `json:"content,omitempty"`
	Code          string `json:"code,omitempty"`
	Error         string `json:"error,omitempty"`
	ContextSource string `json:"context_source,omitempty"`
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}

	// Reject unknown sessions before upgrading.
	if _, err := s.data.GetChatHistory(r.Context(), sessionID); err != nil {
		if errors.Is(err, chatstore.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session_not_found", "no such session")
			return
		}
		respondError(w, http.StatusInternalServerError, "history_unavailable", "could not load history, try again later")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	defer s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()

	conn.SetReadLimit(1 << 20)
	ctx := r.Context()

	for {
		var req wsClientMessage
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Message == "" {
			s.writeWSEvent(conn, wsServerEvent{Type: "error", Code: "invalid_client_message", Error: "message is required"})
			continue
		}

		history, err := s.data.GetChatHistory(ctx, sessionID)
		if err != nil {
			s.writeWSEvent(conn, wsServerEvent{Type: "error", Code: "history_unavailable", Error: "could not load history, try again later"})
			continue
		}

		if verdict := s.guard.Validate(ctx, req.Message, sessionID, len(history)); !verdict.OK {
			s.metrics.GuardRejections.WithLabelValues(verdict.Code).Inc()
			s.writeWSEvent(conn, wsServerEvent{Type: "error", Code: verdict.Code, Error: guardMessage(verdict.Code)})
			continue
		}

		knowledgeContext, source, err := s.data.GetKnowledgeContext(ctx, req.Message)
		if err != nil {
			s.writeWSEvent(conn, wsServerEvent{Type: "error", Code: "retrieval_failed", Error: "temporarily unable to answer, try again later"})
			continue
		}

		var reply strings.Builder
		err = s.generator.StreamReply(ctx, history, knowledgeContext, req.Message, func(delta string) error {
			reply.WriteString(delta)
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			return conn.WriteJSON(wsServerEvent{Type: "delta", Content: delta})
		})
		if err != nil {
			s.writeWSEvent(conn, wsServerEvent{Type: "error", Code: "generation_failed", Error: "temporarily unable to answer, try again later"})
			continue
		}

		if _, err := s.data.AppendChatMessages(ctx, sessionID, []chatstore.Draft{
			{Role: chatstore.RoleUser, Content: req.Message},
			{Role: chatstore.RoleBot, Content: reply.String()},
		}); err != nil {
			s.writeWSEvent(conn, wsServerEvent{Type: "error", Code: "persist_failed", Error: "could not record the exchange"})
			continue
		}

		s.writeWSEvent(conn, wsServerEvent{Type: "done", ContextSource: string(source)})
	}
}

func (s *Server) writeWSEvent(conn *websocket.Conn, ev wsServerEvent) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = conn.WriteJSON(ev)
}
