package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCalendarToday(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	now := time.Date(2024, 3, 9, 20, 30, 0, 0, time.UTC)

	require.Equal(t, "2024-03-09", FormatDate(NewCalendar(nil).Today(now)))
	require.Equal(t, "2024-03-10", FormatDate(NewCalendar(tokyo).Today(now)))
	require.Equal(t, time.UTC, Calendar{}.Location())
}

func TestDateOfKeepsLocalDay(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	local := time.Date(2024, 3, 10, 23, 0, 0, 0, la)
	d := DateOf(local)
	require.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), d)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	require.Equal(t, "2024-02-29", FormatDate(d))

	_, err = ParseDate("2024-13-01")
	require.Error(t, err)
}

func TestParseActivityType(t *testing.T) {
	got, err := ParseActivityType(" quiz_completed ")
	require.NoError(t, err)
	require.Equal(t, ActivityTypeQuizCompleted, got)

	_, err = ParseActivityType("sleep")
	require.ErrorIs(t, err, ErrInvalidActivityType)
	require.False(t, ActivityType("sleep").Valid())
}

func TestActivityKeyString(t *testing.T) {
	key := NewActivityKey("user-1", time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC))
	require.Equal(t, "user-1:2024-03-10", key.String())
}
