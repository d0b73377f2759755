package subjects

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/studytrack/backend/internal/coach"
	"github.com/studytrack/backend/internal/middleware"
	"github.com/studytrack/backend/internal/models"
	"github.com/studytrack/backend/internal/progress"
	"github.com/studytrack/backend/internal/recommend"
)

// Planner writes a study plan from a recommendation result.
type Planner interface {
	Plan(ctx context.Context, in coach.Input) coach.Plan
}

type Handler struct {
	service  *Service
	planner  Planner
	examDate func() (time.Time, bool)
	now      func() time.Time
	log      *zap.Logger
}

// NewHandler wires the study tree endpoints. examDate supplies the default
// exam date used when a recommendation request has no days_left.
func NewHandler(service *Service, planner Planner, examDate func() (time.Time, bool), log *zap.Logger) *Handler {
	if examDate == nil {
		examDate = func() (time.Time, bool) { return time.Time{}, false }
	}
	return &Handler{service: service, planner: planner, examDate: examDate, now: time.Now, log: log}
}

type PlanResponse struct {
	Recommendations recommend.Result `json:"recommendations"`
	Plan            coach.Plan       `json:"plan"`
}

// ── Study Tree ──────────────────────────────────────────

func (h *Handler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	subjects, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.serverError(w, "list subjects", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"subjects": subjects})
}

func (h *Handler) CreateSubject(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.CreateSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	sub, err := h.service.CreateSubject(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, "create subject", userID, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *Handler) CreateChapter(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	subjectID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req models.CreateChapterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	ch, err := h.service.CreateChapter(r.Context(), userID, subjectID, req)
	if err != nil {
		h.writeServiceError(w, "create chapter", userID, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (h *Handler) CreateTopic(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	chapterID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req models.CreateTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	t, err := h.service.CreateTopic(r.Context(), userID, chapterID, req)
	if err != nil {
		h.writeServiceError(w, "create topic", userID, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) ToggleTopic(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	topicID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req models.ToggleTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	resp, err := h.service.ToggleTopic(r.Context(), userID, topicID, req)
	if err != nil {
		h.writeServiceError(w, "toggle topic", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateTest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	subjectID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req models.CreateTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	t, err := h.service.CreateTest(r.Context(), userID, subjectID, req)
	if err != nil {
		h.writeServiceError(w, "create test", userID, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ── Progress ────────────────────────────────────────────

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	dash, err := h.service.Dashboard(r.Context(), userID)
	if err != nil {
		h.serverError(w, "dashboard", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (h *Handler) GetFoundation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	f, err := h.service.Foundation(r.Context(), userID)
	if err != nil {
		h.serverError(w, "foundation", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// ── Recommendations ─────────────────────────────────────

func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	daysLeft, ok := h.daysLeft(w, r)
	if !ok {
		return
	}

	result, _, err := h.service.Recommend(r.Context(), userID, daysLeft)
	if err != nil {
		h.serverError(w, "recommendations", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	daysLeft, ok := h.daysLeft(w, r)
	if !ok {
		return
	}

	result, subjects, err := h.service.Recommend(r.Context(), userID, daysLeft)
	if err != nil {
		h.serverError(w, "recommendation plan", userID, err)
		return
	}

	in := coach.Input{DaysLeft: daysLeft, Result: result, Dashboard: progress.CalculateDashboardProgress(subjects)}
	var plan coach.Plan
	if h.planner != nil {
		plan = h.planner.Plan(r.Context(), in)
	} else {
		plan = coach.Fallback(in)
	}
	writeJSON(w, http.StatusOK, PlanResponse{Recommendations: result, Plan: plan})
}

// daysLeft reads ?days_left= or falls back to the configured exam date.
func (h *Handler) daysLeft(w http.ResponseWriter, r *http.Request) (int, bool) {
	if v := r.URL.Query().Get("days_left"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "days_left must be a non-negative integer"})
			return 0, false
		}
		return n, true
	}
	if exam, ok := h.examDate(); ok {
		return recommend.DaysUntil(exam, h.now()), true
	}
	writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "days_left is required when no exam date is configured"})
	return 0, false
}

// ── Helpers ─────────────────────────────────────────────

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, userID int64, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidToggle):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Not found"})
	default:
		h.serverError(w, op, userID, err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, op string, userID int64, err error) {
	h.log.Error(op, zap.Int64("user_id", userID), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
