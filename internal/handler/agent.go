package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AlexZinkM/allowance-gate/internal/agent"
	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/model"
	"github.com/AlexZinkM/allowance-gate/internal/session"
)

// AgentHandler serves the chat agent and its session history.
type AgentHandler struct {
	agent    *agent.Agent
	sessions *session.Store
	logger   *slog.Logger
}

func NewAgentHandler(a *agent.Agent, sessions *session.Store, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{agent: a, sessions: sessions, logger: logger}
}

// Chat handles POST /agent
// @Summary      Ask the agent
// @Description  Classifies the message and returns a reply with user-confirmable action proposals
// @Tags         agent
// @Accept       json
// @Produce      json
// @Param        request  body      model.AgentRequest  true  "Agent request"
// @Success      200  {object}  model.AgentResponse
// @Failure      400  {object}  model.ErrorResponse
// @Router       /agent [post]
func (h *AgentHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req model.AgentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp, err := h.agent.Handle(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Messages handles GET /sessions/{id}/messages
// @Summary      Session history
// @Tags         agent
// @Produce      json
// @Param        id   path      string  true  "Session id"
// @Success      200  {object}  model.SessionMessagesResponse
// @Failure      400  {object}  model.ErrorResponse
// @Router       /sessions/{id}/messages [get]
func (h *AgentHandler) Messages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.sessions.Messages(r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, sessionError(err))
		return
	}
	writeJSON(w, http.StatusOK, model.SessionMessagesResponse{Messages: msgs})
}

// AppendMessage handles POST /sessions/{id}/messages
// @Summary      Append to session history
// @Tags         agent
// @Accept       json
// @Produce      json
// @Param        id       path      string                true  "Session id"
// @Param        request  body      model.SessionMessage  true  "Message (timestamp is set by the server)"
// @Success      200  {object}  model.SuccessResponse
// @Failure      400  {object}  model.ErrorResponse
// @Router       /sessions/{id}/messages [post]
func (h *AgentHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	var msg model.SessionMessage
	if err := decodeJSON(w, r, &msg); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if _, err := h.sessions.Append(r.PathValue("id"), msg.Role, msg.Content); err != nil {
		writeError(w, r, h.logger, sessionError(err))
		return
	}
	writeJSON(w, http.StatusOK, model.SuccessResponse{Success: true})
}

// Clear handles POST /sessions/{id}/clear
// @Summary      Clear session history
// @Tags         agent
// @Produce      json
// @Param        id   path      string  true  "Session id"
// @Success      200  {object}  model.SuccessResponse
// @Failure      400  {object}  model.ErrorResponse
// @Router       /sessions/{id}/clear [post]
func (h *AgentHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, sessionError(err))
		return
	}
	writeJSON(w, http.StatusOK, model.SuccessResponse{Success: true})
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrInvalidID):
		return apperr.Validation("invalid session id")
	case errors.Is(err, session.ErrInvalidMessage):
		return apperr.Validation("Invalid message format")
	}
	return err
}
