package api

import (
	"time"

	"example.com/studystreak/internal/domain"
)

// RecordActivityRequest is the payload for POST /v1/activities. The user is
// always the token subject.
type RecordActivityRequest struct {
	ActivityType string  `json:"activity_type" validate:"required"`
	TextID       *string `json:"text_id,omitempty" validate:"omitempty,max=128"`
}

// RecordActivityResponse describes the day row the request landed on.
type RecordActivityResponse struct {
	ActivityDate string `json:"activity_date"`
	ActivityType string `json:"activity_type"`
	Created      bool   `json:"created"`
}

// ActivityDatesResponse lists the user's distinct activity days, most recent first.
type ActivityDatesResponse struct {
	Dates []string `json:"dates"`
}

// StreakView is the response body for GET /v1/streak.
type StreakView struct {
	CurrentStreak    int      `json:"current_streak"`
	LongestStreak    int      `json:"longest_streak"`
	TotalDays        int      `json:"total_days"`
	LastActivityDate *string  `json:"last_activity_date"`
	Badges           []string `json:"badges"`
	AsOf             string   `json:"as_of"`
}

func toStreakView(s domain.StreakSnapshot, today time.Time) StreakView {
	view := StreakView{
		CurrentStreak: s.CurrentStreak,
		LongestStreak: s.LongestStreak,
		TotalDays:     s.TotalDays,
		Badges:        make([]string, 0, len(domain.BadgeThresholds)),
		AsOf:          domain.FormatDate(today),
	}
	if s.LastActivityDate != nil {
		last := domain.FormatDate(*s.LastActivityDate)
		view.LastActivityDate = &last
	}
	for _, b := range s.Badges() {
		view.Badges = append(view.Badges, string(b))
	}
	return view
}
