package quota

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTracker(t *testing.T, dailyQuota, monthlyQuota int64, now func() time.Time) *Tracker {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	tracker := NewTrackerWithMonthly(db, dailyQuota, monthlyQuota, now)
	require.NoError(t, tracker.AutoMigrate(context.Background()))
	return tracker
}

func TestConsume_AllowsUnderDailyQuota(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker := setupTracker(t, 3, 0, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		usage, err := tracker.Consume(context.Background(), "tenant-a")
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), usage.DayCount)
		assert.Equal(t, int64(3), usage.DayLimit)
	}
}

func TestConsume_RejectsOverDailyQuota(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker := setupTracker(t, 2, 0, func() time.Time { return now })

	ctx := context.Background()
	_, err := tracker.Consume(ctx, "tenant-a")
	require.NoError(t, err)
	_, err = tracker.Consume(ctx, "tenant-a")
	require.NoError(t, err)

	_, err = tracker.Consume(ctx, "tenant-a")
	require.Error(t, err)
	exceeded, ok := err.(*ErrQuotaExceeded)
	require.True(t, ok)
	assert.Equal(t, "day", exceeded.Period)
	assert.Equal(t, int64(2), exceeded.Limit)
	assert.Greater(t, exceeded.RetryAfter, time.Duration(0))
}

func TestConsume_RejectsOverMonthlyQuotaEvenUnderDaily(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker := setupTracker(t, 100, 1, func() time.Time { return now })

	ctx := context.Background()
	_, err := tracker.Consume(ctx, "tenant-a")
	require.NoError(t, err)

	_, err = tracker.Consume(ctx, "tenant-a")
	require.Error(t, err)
	exceeded, ok := err.(*ErrQuotaExceeded)
	require.True(t, ok)
	assert.Equal(t, "month", exceeded.Period)
}

func TestConsume_RollsOverDailyBucketOnNewDay(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	current := day1
	tracker := setupTracker(t, 1, 0, func() time.Time { return current })

	ctx := context.Background()
	_, err := tracker.Consume(ctx, "tenant-a")
	require.NoError(t, err)

	_, err = tracker.Consume(ctx, "tenant-a")
	require.Error(t, err)

	current = day2
	usage, err := tracker.Consume(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage.DayCount)
}

func TestConsume_NoopWhenBothQuotasDisabled(t *testing.T) {
	tracker := setupTracker(t, 0, 0, time.Now)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := tracker.Consume(ctx, "tenant-a")
		require.NoError(t, err)
	}
}

func TestNewTracker_DisablesMonthlyEnforcement(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	tracker := NewTracker(db, 1000, func() time.Time { return now })
	require.NoError(t, tracker.AutoMigrate(context.Background()))

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := tracker.Consume(ctx, "tenant-a")
		require.NoError(t, err)
	}
}
