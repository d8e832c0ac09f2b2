package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/studystreak/internal/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "study.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func TestUpsertKeepsOneRowPerDay(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	first := time.Date(2024, 3, 10, 7, 30, 0, 0, time.UTC)

	created, err := store.Upsert(ctx, domain.ActivityRecord{
		UserID: "u1", ActivityDate: day, ActivityType: domain.ActivityTypeRead, CreatedAt: first, UpdatedAt: first,
	})
	require.NoError(t, err)
	require.True(t, created)

	textID := "story-3"
	later := first.Add(2 * time.Hour)
	created, err = store.Upsert(ctx, domain.ActivityRecord{
		UserID: "u1", ActivityDate: day, ActivityType: domain.ActivityTypeQuizCompleted, TextID: &textID,
		CreatedAt: later, UpdatedAt: later,
	})
	require.NoError(t, err)
	require.False(t, created)

	got, err := store.Get(ctx, domain.NewActivityKey("u1", day))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, domain.ActivityTypeQuizCompleted, got.ActivityType)
	require.Equal(t, "story-3", *got.TextID)
	require.True(t, got.CreatedAt.Equal(first))
	require.True(t, got.UpdatedAt.Equal(later))

	missing, err := store.Get(ctx, domain.NewActivityKey("u1", day.AddDate(0, 0, -1)))
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestListDistinctDatesRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	rec := domain.NewRecorder(store)

	for _, d := range []string{"2024-03-05", "2024-03-10", "2024-03-09", "2024-03-10"} {
		day, err := domain.ParseDate(d)
		require.NoError(t, err)
		_, err = rec.Record(ctx, domain.RecordInput{UserID: "u1", ActivityType: domain.ActivityTypeWordLookup, Date: day})
		require.NoError(t, err)
	}
	other, _ := domain.ParseDate("2024-03-08")
	_, err := rec.Record(ctx, domain.RecordInput{UserID: "u2", ActivityType: domain.ActivityTypeRead, Date: other})
	require.NoError(t, err)

	dates, err := store.ListDistinctDates(ctx, "u1")
	require.NoError(t, err)

	formatted := make([]string, 0, len(dates))
	for _, d := range dates {
		formatted = append(formatted, domain.FormatDate(d))
	}
	require.Equal(t, []string{"2024-03-10", "2024-03-09", "2024-03-05"}, formatted)

	today, _ := domain.ParseDate("2024-03-10")
	snapshot := domain.ComputeStreak(dates, today)
	require.Equal(t, 2, snapshot.CurrentStreak)
	require.Equal(t, 3, snapshot.TotalDays)
}

func TestClosedStoreReportsStorageError(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Close())

	_, err := store.ListDistinctDates(context.Background(), "u1")
	require.ErrorIs(t, err, domain.ErrStorage)

	_, err = store.Upsert(context.Background(), domain.ActivityRecord{UserID: "u1", ActivityDate: time.Now(), ActivityType: domain.ActivityTypeRead})
	require.ErrorIs(t, err, domain.ErrStorage)
}
