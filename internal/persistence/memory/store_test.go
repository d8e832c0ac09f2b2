package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/studystreak/internal/domain"
)

func TestConcurrentRecordsOnSameDayCreateOnce(t *testing.T) {
	store := NewStore()
	rec := domain.NewRecorder(store)
	today := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	var (
		wg      sync.WaitGroup
		creates atomic.Int32
	)
	types := []domain.ActivityType{domain.ActivityTypeRead, domain.ActivityTypeQuizCompleted, domain.ActivityTypeWordLookup}
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := rec.Record(context.Background(), domain.RecordInput{UserID: "u1", ActivityType: types[i%3], Date: today})
			if err == nil && res.Created {
				creates.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, creates.Load())
	dates, err := store.ListDistinctDates(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, dates, 1)
}

func TestUpsertPreservesCreatedAt(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	day := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	first := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

	_, err := store.Upsert(ctx, domain.ActivityRecord{UserID: "u1", ActivityDate: day, ActivityType: domain.ActivityTypeRead, CreatedAt: first, UpdatedAt: first})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, domain.ActivityRecord{UserID: "u1", ActivityDate: day, ActivityType: domain.ActivityTypeWordLookup, CreatedAt: first.Add(time.Hour), UpdatedAt: first.Add(time.Hour)})
	require.NoError(t, err)

	got, ok := store.Get(domain.NewActivityKey("u1", day))
	require.True(t, ok)
	require.Equal(t, domain.ActivityTypeWordLookup, got.ActivityType)
	require.Equal(t, first, got.CreatedAt)
	require.Equal(t, first.Add(time.Hour), got.UpdatedAt)
}

func TestCancelledContextIsStorageError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStore().ListDistinctDates(ctx, "u1")
	require.ErrorIs(t, err, domain.ErrStorage)
	require.ErrorIs(t, err, context.Canceled)
}
