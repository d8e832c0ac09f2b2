package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"example.com/studystreak/internal/auth"
	"example.com/studystreak/internal/domain"
	"example.com/studystreak/internal/persistence/memory"
)

// 20:30 UTC on 2024-03-09 is already 2024-03-10 in Tokyo.
var fixedNow = time.Date(2024, 3, 9, 20, 30, 0, 0, time.UTC)

type failingStore struct{}

func (failingStore) ListDistinctDates(context.Context, string) ([]time.Time, error) {
	return nil, errors.New("connection reset")
}

func (failingStore) Upsert(context.Context, domain.ActivityRecord) (bool, error) {
	return false, errors.New("connection reset")
}

func newHandler(t *testing.T, store domain.ActivityStore) (*Handler, *http.ServeMux) {
	t.Helper()
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	logger, _ := logtest.NewNullLogger()
	handler := NewHandler(
		domain.NewService(store, domain.WithLogger(logger)),
		domain.NewCalendar(tokyo),
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(logger),
	)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return handler, mux
}

func withClaims(req *http.Request, subject string, scopes ...string) *http.Request {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
		Subject:   subject,
		Scopes:    set,
		ExpiresAt: time.Now().Add(time.Hour),
	}))
}

func postActivity(t *testing.T, mux http.Handler, body string, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/activities", bytes.NewBufferString(body))
	req = withClaims(req, "user-1", scopes...)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestRecordActivityCreatesThenUpdates(t *testing.T) {
	store := memory.NewStore()
	_, mux := newHandler(t, store)

	rr := postActivity(t, mux, `{"activity_type":"read","text_id":"story-1"}`, auth.ScopeStudyWrite)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp RecordActivityResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "2024-03-10", resp.ActivityDate)
	require.True(t, resp.Created)

	rr = postActivity(t, mux, `{"activity_type":"quiz_completed"}`, auth.ScopeStudyWrite)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	record, ok := store.Get(domain.NewActivityKey("user-1", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)))
	require.True(t, ok)
	require.Equal(t, domain.ActivityTypeQuizCompleted, record.ActivityType)
	require.Nil(t, record.TextID)
}

func TestRecordActivityValidation(t *testing.T) {
	_, mux := newHandler(t, memory.NewStore())

	rr := postActivity(t, mux, `{"activity_type":"nap"}`, auth.ScopeStudyWrite)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "validation_failed")
	require.Contains(t, rr.Body.String(), domain.ErrInvalidActivityType.Error())

	// Surrounding whitespace is trimmed by the activity type parser.
	rr = postActivity(t, mux, `{"activity_type":" word_lookup "}`, auth.ScopeStudyWrite)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = postActivity(t, mux, `{}`, auth.ScopeStudyWrite)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "activitytype failed required")

	rr = postActivity(t, mux, `not json`, auth.ScopeStudyWrite)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "invalid_request")

	rr = postActivity(t, mux, `{"activity_type":"read"}`, auth.ScopeStudyRead)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRecordActivityStorageFailure(t *testing.T) {
	_, mux := newHandler(t, failingStore{})

	rr := postActivity(t, mux, `{"activity_type":"word_lookup"}`, auth.ScopeStudyWrite)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "storage_unavailable", body["type"])
}

func TestStreakEndpoint(t *testing.T) {
	store := memory.NewStore()
	rec := domain.NewRecorder(store)
	for i := range 7 {
		_, err := rec.Record(context.Background(), domain.RecordInput{
			UserID:       "user-1",
			ActivityType: domain.ActivityTypeRead,
			Date:         time.Date(2024, 3, 9-i, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}
	_, mux := newHandler(t, store)

	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/streak", nil), "user-1", auth.ScopeStudyRead)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var view StreakView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.Equal(t, 7, view.CurrentStreak)
	require.Equal(t, 7, view.LongestStreak)
	require.Equal(t, 7, view.TotalDays)
	require.Equal(t, "2024-03-09", *view.LastActivityDate)
	require.Equal(t, "2024-03-10", view.AsOf)
	require.Equal(t, []string{"week_warrior"}, view.Badges)
}

func TestStreakEndpointDegradesToZero(t *testing.T) {
	_, mux := newHandler(t, failingStore{})

	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/streak", nil), "user-1", auth.ScopeStudyWrite)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"current_streak":0,"longest_streak":0,"total_days":0,"last_activity_date":null,"badges":[],"as_of":"2024-03-10"}`, rr.Body.String())

	// The raw history endpoint does surface the failure.
	req = withClaims(httptest.NewRequest(http.MethodGet, "/v1/activities", nil), "user-1", auth.ScopeStudyRead)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestListActivityDates(t *testing.T) {
	store := memory.NewStore()
	_, mux := newHandler(t, store)
	require.Equal(t, http.StatusCreated, postActivity(t, mux, `{"activity_type":"read"}`, auth.ScopeStudyWrite).Code)

	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/activities", nil), "user-1", auth.ScopeStudyRead)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"dates":["2024-03-10"]}`, rr.Body.String())
}

func TestUnauthenticatedAndMethodErrors(t *testing.T) {
	_, mux := newHandler(t, memory.NewStore())

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/streak", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, withClaims(httptest.NewRequest(http.MethodDelete, "/v1/activities", nil), "user-1", auth.ScopeStudyWrite))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
