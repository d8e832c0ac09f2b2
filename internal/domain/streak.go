package domain

import (
	"slices"
	"time"
)

// StreakSnapshot is derived from the full activity history on every read and
// never persisted.
type StreakSnapshot struct {
	CurrentStreak    int
	LongestStreak    int
	TotalDays        int
	LastActivityDate *time.Time
}

// Badge is a milestone earned by keeping a streak alive.
type Badge string

const (
	BadgeWeekWarrior     Badge = "week_warrior"
	BadgeMonthMaster     Badge = "month_master"
	BadgeCenturyChampion Badge = "century_champion"
)

// BadgeThreshold pairs a badge with the streak length that earns it.
type BadgeThreshold struct {
	Badge Badge
	Days  int
}

// BadgeThresholds is ordered by ascending length.
var BadgeThresholds = []BadgeThreshold{
	{Badge: BadgeWeekWarrior, Days: 7},
	{Badge: BadgeMonthMaster, Days: 30},
	{Badge: BadgeCenturyChampion, Days: 100},
}

// Badges lists the milestones covered by the current streak.
func (s StreakSnapshot) Badges() []Badge {
	badges := make([]Badge, 0, len(BadgeThresholds))
	for _, th := range BadgeThresholds {
		if s.CurrentStreak >= th.Days {
			badges = append(badges, th.Badge)
		}
	}
	return badges
}

// MilestoneFor returns the badge whose threshold equals streak exactly.
func MilestoneFor(streak int) (Badge, bool) {
	for _, th := range BadgeThresholds {
		if th.Days == streak {
			return th.Badge, true
		}
	}
	return "", false
}

// ComputeStreak derives the streak snapshot for one user's activity dates.
//
// dates may arrive in any order and may contain the same calendar day more
// than once; duplicates collapse to one day. today is the caller's reference
// day and is never read from the clock here. The current streak is alive only
// if the most recent day is today or yesterday; from there it extends backward
// across consecutive days and stops at the first gap.
func ComputeStreak(dates []time.Time, today time.Time) StreakSnapshot {
	days := distinctDaysDesc(dates)
	if len(days) == 0 {
		return StreakSnapshot{}
	}

	last := time.Unix(days[0]*86400, 0).UTC()
	snapshot := StreakSnapshot{
		TotalDays:        len(days),
		LastActivityDate: &last,
	}

	todayN := dayNumber(today)
	if gap := todayN - days[0]; gap == 0 || gap == 1 {
		current := 1
		for i := 1; i < len(days); i++ {
			if days[i-1]-days[i] != 1 {
				break
			}
			current++
		}
		snapshot.CurrentStreak = current
	}

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i-1]-days[i] == 1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	snapshot.LongestStreak = longest

	return snapshot
}

// distinctDaysDesc converts dates to unique day numbers, most recent first.
func distinctDaysDesc(dates []time.Time) []int64 {
	if len(dates) == 0 {
		return nil
	}
	days := make([]int64, 0, len(dates))
	for _, d := range dates {
		days = append(days, dayNumber(d))
	}
	slices.Sort(days)
	days = slices.Compact(days)
	slices.Reverse(days)
	return days
}
