//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/studystreak/internal/domain"
	"example.com/studystreak/internal/events"
	"example.com/studystreak/internal/testsupport"
)

func TestRepositoryUpsertIsIdempotentPerDay(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testsupport.StartPostgres(ctx, t))
	require.NoError(t, repo.Ping(ctx))

	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	first := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	created, err := repo.Upsert(ctx, domain.ActivityRecord{
		UserID: "u1", ActivityDate: day, ActivityType: domain.ActivityTypeRead, CreatedAt: first, UpdatedAt: first,
	})
	require.NoError(t, err)
	require.True(t, created)

	textID := "text-1"
	created, err = repo.Upsert(ctx, domain.ActivityRecord{
		UserID: "u1", ActivityDate: day, ActivityType: domain.ActivityTypeQuizCompleted, TextID: &textID,
		CreatedAt: first.Add(time.Hour), UpdatedAt: first.Add(time.Hour),
	})
	require.NoError(t, err)
	require.False(t, created)

	var (
		count        int
		activityType string
		storedText   *string
		createdAt    time.Time
	)
	require.NoError(t, repo.pool.QueryRow(ctx,
		`SELECT COUNT(*) OVER (), activity_type, text_id, created_at FROM study_activities WHERE user_id = 'u1'`,
	).Scan(&count, &activityType, &storedText, &createdAt))
	require.Equal(t, 1, count)
	require.Equal(t, "quiz_completed", activityType)
	require.Equal(t, "text-1", *storedText)
	require.True(t, createdAt.Equal(first))

	rows, err := repo.pool.Query(ctx, `SELECT payload FROM outbox WHERE event_type = $1 ORDER BY event_id`, events.StudyActivityRecordedType)
	require.NoError(t, err)
	var firstOfDay []bool
	for rows.Next() {
		var payload []byte
		require.NoError(t, rows.Scan(&payload))
		var evt events.StudyActivityRecorded
		require.NoError(t, json.Unmarshal(payload, &evt))
		firstOfDay = append(firstOfDay, evt.FirstOfDay)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []bool{true, false}, firstOfDay)
}

func TestRepositoryListDistinctDatesFeedsStreak(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testsupport.StartPostgres(ctx, t))
	svc := domain.NewService(repo)

	for _, d := range []string{"2024-03-08", "2024-03-09", "2024-03-10"} {
		day, err := domain.ParseDate(d)
		require.NoError(t, err)
		_, err = svc.RecordActivity(ctx, domain.RecordInput{UserID: "u1", ActivityType: domain.ActivityTypeRead, Date: day})
		require.NoError(t, err)
	}

	dates, err := repo.ListDistinctDates(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, dates, 3)
	require.Equal(t, "2024-03-10", domain.FormatDate(dates[0]))

	today, _ := domain.ParseDate("2024-03-10")
	snapshot := svc.Streak(ctx, "u1", today)
	require.Equal(t, 3, snapshot.CurrentStreak)
	require.Equal(t, 3, snapshot.TotalDays)

	empty, err := repo.ListDistinctDates(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestRepositoryConcurrentUpsertsCreateOneRow(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testsupport.StartPostgres(ctx, t))
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		creates int
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts := time.Date(2024, 3, 10, 9, 0, i, 0, time.UTC)
			created, err := repo.Upsert(ctx, domain.ActivityRecord{
				UserID: "u1", ActivityDate: day, ActivityType: domain.ActivityTypeWordLookup, CreatedAt: ts, UpdatedAt: ts,
			})
			assert.NoError(t, err)
			if created {
				mu.Lock()
				creates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, creates)
	dates, err := repo.ListDistinctDates(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, dates, 1)
}
