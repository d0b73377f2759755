package sessions

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/studytrack/backend/internal/metrics"
	"github.com/studytrack/backend/internal/middleware"
	"github.com/studytrack/backend/internal/models"
)

type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.CreateFocusSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	fs, err := h.service.Create(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, "create", userID, err)
		return
	}

	metrics.RecordFocusAction("create", "ok")
	writeJSON(w, http.StatusCreated, models.CreateFocusSessionResponse{FocusSession: *fs})
}

func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.FocusActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	action := string(req.Action)
	if !models.ValidFocusActions[req.Action] {
		action = "unknown"
	}

	fs, err := h.service.Apply(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, action, userID, err)
		return
	}

	metrics.RecordFocusAction(action, "ok")
	writeJSON(w, http.StatusOK, models.FocusActionResponse{Success: true, FocusSession: fs})
}

func (h *Handler) GetActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	fs, err := h.service.Active(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "No active focus session"})
		return
	}
	if err != nil {
		h.log.Error("get active focus session", zap.Int64("user_id", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get focus session"})
		return
	}

	writeJSON(w, http.StatusOK, models.CreateFocusSessionResponse{FocusSession: *fs})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, action string, userID int64, err error) {
	var status int
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnknownAction):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrCompleted), errors.Is(err, ErrDeviceMismatch):
		status = http.StatusConflict
	default:
		h.log.Error("focus session action failed",
			zap.String("action", action),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		metrics.RecordFocusAction(action, "error")
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to update focus session"})
		return
	}

	metrics.RecordFocusAction(action, "rejected")
	writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
