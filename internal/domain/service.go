// Package domain defines the study activity and streak logic.
package domain

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"example.com/studystreak/internal/observability"
)

// Service ties the recorder and the streak engine to one activity store.
type Service struct {
	store    ActivityStore
	recorder *Recorder
	logger   logrus.FieldLogger
}

// NewService constructs a Service.
func NewService(store ActivityStore, opts ...Option) *Service {
	o := buildOptions(opts)
	return &Service{
		store:    store,
		recorder: NewRecorder(store, opts...),
		logger:   o.logger,
	}
}

// Recorder exposes the underlying recorder for best-effort callers.
func (s *Service) Recorder() *Recorder {
	return s.recorder
}

// RecordActivity records a qualifying action for the reference day in input.
func (s *Service) RecordActivity(ctx context.Context, in RecordInput) (RecordResult, error) {
	return s.recorder.Record(ctx, in)
}

// History returns the user's distinct activity days, most recent first, and
// surfaces store failures.
func (s *Service) History(ctx context.Context, userID string) ([]time.Time, error) {
	dates, err := s.store.ListDistinctDates(ctx, userID)
	if err != nil {
		return nil, &StorageError{Op: "list distinct dates", Err: err}
	}
	return dates, nil
}

// Streak computes the user's streak as of today. A failed history read is
// logged and reported as the zero snapshot; use History to tell the two apart.
func (s *Service) Streak(ctx context.Context, userID string, today time.Time) StreakSnapshot {
	dates, err := s.History(ctx, userID)
	if err != nil {
		observability.RecordStreakReadFailure()
		s.logger.WithError(err).WithField("user_id", userID).Warn("streak history unavailable, reporting empty streak")
		return StreakSnapshot{}
	}
	snapshot := ComputeStreak(dates, today)
	observability.ObserveStreak(snapshot.CurrentStreak)
	return snapshot
}
