package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"example.com/studystreak/internal/domain"
	"example.com/studystreak/internal/events"
)

// HistoryReader returns a user's distinct activity days, most recent first.
type HistoryReader interface {
	History(ctx context.Context, userID string) ([]time.Time, error)
}

// MilestoneHandler reports when a user's first activity of a day brings the
// current streak exactly onto a badge threshold.
type MilestoneHandler struct {
	history HistoryReader
	logger  logrus.FieldLogger
}

// NewMilestoneHandler constructs a MilestoneHandler.
func NewMilestoneHandler(history HistoryReader, logger logrus.FieldLogger) *MilestoneHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MilestoneHandler{history: history, logger: logger.WithField("component", "milestones")}
}

// Handle implements Handler.
func (h *MilestoneHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.StudyActivityRecordedType {
		return nil
	}
	evt, day, err := decodeRecorded(msg)
	if err != nil {
		return err
	}
	// Later actions on the same day cannot change the streak length.
	if !evt.FirstOfDay {
		return nil
	}

	// The streak is evaluated as of the event's day; the user may have been
	// active on later days by the time a lagging consumer gets here.
	dates, err := h.history.History(ctx, evt.UserID)
	if err != nil {
		return fmt.Errorf("read history for %s: %w", evt.UserID, err)
	}
	upTo := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if !d.After(day) {
			upTo = append(upTo, d)
		}
	}

	snapshot := domain.ComputeStreak(upTo, day)
	badge, ok := domain.MilestoneFor(snapshot.CurrentStreak)
	if !ok {
		return nil
	}

	milestonesTotal.WithLabelValues(string(badge)).Inc()
	h.logger.WithFields(logrus.Fields{
		"user_id":        evt.UserID,
		"badge":          badge,
		"current_streak": snapshot.CurrentStreak,
		"activity_date":  evt.ActivityDate,
	}).Info("streak milestone reached")
	return nil
}

// Chain runs handlers in order and stops at the first error.
type Chain []Handler

// Handle implements Handler.
func (c Chain) Handle(ctx context.Context, msg Message) error {
	for _, h := range c {
		if err := h.Handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
