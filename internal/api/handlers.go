// Package api exposes HTTP handlers for the study streak service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"example.com/studystreak/internal/auth"
	"example.com/studystreak/internal/domain"
)

var validate = validator.New()

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service  *domain.Service
	calendar domain.Calendar
	now      func() time.Time
	logger   logrus.FieldLogger
}

// Option customises a Handler.
type Option func(*Handler)

// WithClock overrides the wall clock used to derive "today".
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithLogger overrides the handler logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(h *Handler) { h.logger = logger }
}

// NewHandler builds a Handler. calendar decides which day a request falls on.
func NewHandler(service *domain.Service, calendar domain.Calendar, opts ...Option) *Handler {
	h := &Handler{
		service:  service,
		calendar: calendar,
		now:      time.Now,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/streak", h.streak)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.recordActivity(w, r)
	case http.MethodGet:
		h.listActivityDates(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) recordActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeStudyWrite)
	if !ok {
		return
	}

	var req RecordActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", validationDetail(err))
		return
	}

	activityType, err := domain.ParseActivityType(req.ActivityType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	today := h.calendar.Today(h.now())
	result, err := h.service.RecordActivity(r.Context(), domain.RecordInput{
		UserID:       claims.Subject,
		ActivityType: activityType,
		Date:         today,
		TextID:       req.TextID,
	})
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	case errors.Is(err, domain.ErrStorage):
		h.logger.WithError(err).WithField("user_id", claims.Subject).Error("record study activity failed")
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "activity could not be recorded")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, RecordActivityResponse{
		ActivityDate: domain.FormatDate(result.Key.Date),
		ActivityType: string(activityType),
		Created:      result.Created,
	})
}

func (h *Handler) listActivityDates(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeStudyRead, auth.ScopeStudyWrite)
	if !ok {
		return
	}

	dates, err := h.service.History(r.Context(), claims.Subject)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", claims.Subject).Error("list activity dates failed")
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "activity history is unavailable")
		return
	}

	resp := ActivityDatesResponse{Dates: make([]string, 0, len(dates))}
	for _, d := range dates {
		resp.Dates = append(resp.Dates, domain.FormatDate(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) streak(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeStudyRead, auth.ScopeStudyWrite)
	if !ok {
		return
	}

	today := h.calendar.Today(h.now())
	snapshot := h.service.Streak(r.Context(), claims.Subject, today)
	writeJSON(w, http.StatusOK, toStreakView(snapshot, today))
}

func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasAnyScope(scopes...) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+strings.Join(scopes, " or ")+" required")
		return nil, false
	}
	return claims, true
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
