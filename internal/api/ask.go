package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/duckmesh/insightbot/internal/observability"
	"github.com/duckmesh/insightbot/internal/pipeline"
	"github.com/duckmesh/insightbot/internal/session"
)

const WelcomeMessage = "¡Hola! Soy tu asistente de análisis de datos. Puedo ayudarte con consultas sobre las tiendas, experimentos A/B, conversiones y métricas de negocio. ¿Qué te gustaría analizar?"

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

type sessionResponse struct {
	SessionID      string `json:"session_id"`
	WelcomeMessage string `json:"welcome_message"`
}

type historyResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []session.Turn `json:"turns"`
}

func handleNewSession(deps Dependencies, w http.ResponseWriter, _ *http.Request) {
	newID := deps.NewSessionID
	if newID == nil {
		newID = uuid.NewString
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: newID(), WelcomeMessage: WelcomeMessage})
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	sessionID := strings.TrimSpace(request.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(r.Header.Get(observability.SessionHeader))
	}

	response, err := deps.Pipeline.Ask(r.Context(), request.Question, sessionID)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyQuestion) {
			writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", err.Error(), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "ASK_FAILED", "failed to answer question", true, map[string]any{"details": err.Error()})
		return
	}
	if sessionID != "" {
		w.Header().Set(observability.SessionHeader, sessionID)
	}
	writeJSON(w, http.StatusOK, response)
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}
	sessionID := strings.TrimSpace(r.PathValue("session"))
	if sessionID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SESSION_REQUIRED", "session id is required", false, nil)
		return
	}
	turns := deps.Pipeline.History(sessionID)
	if turns == nil {
		turns = []session.Turn{}
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: sessionID, Turns: turns})
}
