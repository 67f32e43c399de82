package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DrayChou/personal-ai-assistant/internal/sessions"
	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

func (s *wsSession) handleHealth(req request) {
	s.writeResponse(newResponse(req.ID, map[string]any{
		"status":    "ok",
		"version":   1,
		"timestamp": time.Now().UTC(),
	}))
}

type chatSendParams struct {
	Text       string          `json:"text"`
	SessionKey string          `json:"session_key"`
	Context    json.RawMessage `json:"context,omitempty"`
}

func (s *wsSession) handleChatSend(req request, stream bool) {
	var params chatSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeResponse(newErrorResponse(req.ID, CodeInvalidParams, "invalid params"))
		return
	}
	if strings.TrimSpace(params.Text) == "" {
		s.writeResponse(newErrorResponse(req.ID, CodeInvalidParams, "text is required"))
		return
	}

	agentID, channel, peerID, ok := sessions.ParseKey(params.SessionKey)
	if !ok {
		s.writeResponse(newErrorResponse(req.ID, CodeInvalidParams, "malformed session_key"))
		return
	}
	if _, err := s.server.Sessions.GetOrCreate(s.ctx, params.SessionKey, agentID, channel, peerID); err != nil {
		s.writeResponse(newErrorResponse(req.ID, CodeInternalError, "internal error"))
		return
	}

	messageID := uuid.NewString()
	if stream {
		s.writeEvent(newEvent(messageID, "chat.start", ""))
	}

	var finalText strings.Builder
	for chunk := range s.server.Loop.Run(s.ctx, params.SessionKey, params.Text) {
		if chunk.Err != nil {
			if stream {
				s.writeEvent(newEvent(messageID, "chat.end", ""))
			}
			s.writeResponse(newErrorResponse(req.ID, CodeInternalError, "internal error"))
			return
		}
		if chunk.Text != "" {
			finalText.WriteString(chunk.Text)
			if stream {
				s.writeEvent(newEvent(messageID, "chat.delta", chunk.Text))
			}
		}
	}

	if stream {
		s.writeEvent(newEvent(messageID, "chat.end", ""))
		s.writeResponse(newResponse(req.ID, map[string]any{
			"message_id": messageID,
			"stream":     true,
		}))
		return
	}

	s.writeResponse(newResponse(req.ID, map[string]any{
		"message_id":  messageID,
		"text":        finalText.String(),
		"session_key": params.SessionKey,
		"timestamp":   time.Now().UTC(),
	}))
}

type chatHistoryParams struct {
	SessionKey string `json:"session_key"`
	Limit      int    `json:"limit,omitempty"`
}

func (s *wsSession) handleChatHistory(req request) {
	var params chatHistoryParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeResponse(newErrorResponse(req.ID, CodeInvalidParams, "invalid params"))
		return
	}
	limit := params.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultHistory
	}

	messages, err := s.server.Sessions.GetHistory(s.ctx, params.SessionKey, limit)
	if err != nil {
		// spec.md §4.1: history for an unknown session returns an empty
		// list, not an error.
		messages = []models.Message{}
	}
	s.writeResponse(newResponse(req.ID, map[string]any{"messages": messages}))
}

type sessionsListParams struct {
	AgentID string `json:"agent_id,omitempty"`
}

func (s *wsSession) handleSessionsList(req request) {
	var params sessionsListParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeResponse(newErrorResponse(req.ID, CodeInvalidParams, "invalid params"))
		return
	}

	list, err := s.server.Sessions.List(s.ctx, params.AgentID, sessions.ListOptions{})
	if err != nil {
		s.writeResponse(newErrorResponse(req.ID, CodeInternalError, "internal error"))
		return
	}

	out := make([]map[string]any, 0, len(list))
	for _, sess := range list {
		out = append(out, map[string]any{
			"session_key": sess.Key,
			"updated_at":  sess.UpdatedAt,
			"agent_id":    sess.AgentID,
			"channel":     sess.Channel,
		})
	}
	s.writeResponse(newResponse(req.ID, map[string]any{"sessions": out}))
}

type sessionsDeleteParams struct {
	SessionKey string `json:"session_key"`
}

func (s *wsSession) handleSessionsDelete(req request) {
	var params sessionsDeleteParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeResponse(newErrorResponse(req.ID, CodeInvalidParams, "invalid params"))
		return
	}

	// Deleting an already-deleted (or never-existing) session is a
	// documented no-op, not an error.
	if err := s.server.Sessions.Delete(s.ctx, params.SessionKey); err != nil && err != sessions.ErrNotFound {
		s.writeResponse(newErrorResponse(req.ID, CodeInternalError, "internal error"))
		return
	}
	s.writeResponse(newResponse(req.ID, map[string]any{"deleted": true}))
}
