package quota

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageRow tracks a tenant's cumulative operation count for both the
// current UTC day and the current UTC month, rolling each counter over
// lazily the first time a request lands in a new day_bucket/month_year.
type UsageRow struct {
	TenantID   string `gorm:"primaryKey;size:128"`
	DayBucket  string `gorm:"size:10"` // YYYY-MM-DD
	DayCount   int64
	MonthYear  string `gorm:"size:7"` // YYYY-MM
	MonthCount int64
	UpdatedAt  time.Time
}

func (UsageRow) TableName() string { return "api_tenant_usage" }

// ErrQuotaExceeded is returned when a tenant has hit its daily or monthly
// operation limit. RetryAfter reports how long the caller should wait
// before the exceeded bucket rolls over, for the response's Retry-After
// header.
type ErrQuotaExceeded struct {
	TenantID   string
	Limit      int64
	Period     string // "day" or "month"
	RetryAfter time.Duration
}

func (e *ErrQuotaExceeded) Error() string {
	return "tenant " + e.TenantID + " exceeded " + e.Period + "ly quota of operations"
}

// Tracker enforces per-tenant daily and monthly operation quotas using a
// row-locked read-increment-write cycle, so concurrent requests from the
// same tenant can't both squeeze through past the limit.
type Tracker struct {
	db           *gorm.DB
	dailyQuota   int64
	monthlyQuota int64
	now          func() time.Time
}

// NewTracker returns a Tracker enforcing dailyQuota operations per tenant
// per UTC day. A non-positive dailyQuota disables daily enforcement.
func NewTracker(db *gorm.DB, dailyQuota int64, now func() time.Time) *Tracker {
	return NewTrackerWithMonthly(db, dailyQuota, 0, now)
}

// NewTrackerWithMonthly is like NewTracker but also enforces monthlyQuota
// operations per tenant per UTC calendar month. A non-positive monthlyQuota
// disables monthly enforcement.
func NewTrackerWithMonthly(db *gorm.DB, dailyQuota, monthlyQuota int64, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{db: db, dailyQuota: dailyQuota, monthlyQuota: monthlyQuota, now: now}
}

// AutoMigrate creates the usage table.
func (t *Tracker) AutoMigrate(ctx context.Context) error {
	return t.db.WithContext(ctx).AutoMigrate(&UsageRow{})
}

// ConsumeResult reports the tenant's usage counters after a successful
// Consume call, so callers can populate X-RateLimit-* response headers.
type ConsumeResult struct {
	DayCount   int64
	DayLimit   int64
	DayReset   time.Time
	MonthCount int64
	MonthLimit int64
	MonthReset time.Time
}

// Consume increments today's and this month's usage counters for tenantID,
// rolling either bucket over if it belongs to a prior day/month, and
// returns ErrQuotaExceeded if either counter would exceed its configured
// limit.
func (t *Tracker) Consume(ctx context.Context, tenantID string) (ConsumeResult, error) {
	now := t.now().UTC()
	if t.dailyQuota <= 0 && t.monthlyQuota <= 0 {
		return ConsumeResult{DayReset: now.Add(durationUntilNextUTCDay(now)), MonthReset: now.Add(durationUntilNextUTCMonth(now))}, nil
	}
	day := now.Format("2006-01-02")
	monthYear := now.Format("2006-01")

	var out ConsumeResult
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row UsageRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ?", tenantID).First(&row).Error

		switch {
		case err == gorm.ErrRecordNotFound:
			row = UsageRow{TenantID: tenantID, DayBucket: day, DayCount: 0, MonthYear: monthYear, MonthCount: 0}
			if createErr := tx.Create(&row).Error; createErr != nil {
				return createErr
			}
		case err != nil:
			return err
		default:
			if row.DayBucket != day {
				row.DayBucket = day
				row.DayCount = 0
			}
			if row.MonthYear != monthYear {
				row.MonthYear = monthYear
				row.MonthCount = 0
			}
		}

		nextDayCount := row.DayCount + 1
		nextMonthCount := row.MonthCount + 1

		if t.dailyQuota > 0 && nextDayCount > t.dailyQuota {
			return &ErrQuotaExceeded{TenantID: tenantID, Limit: t.dailyQuota, Period: "day", RetryAfter: durationUntilNextUTCDay(now)}
		}
		if t.monthlyQuota > 0 && nextMonthCount > t.monthlyQuota {
			return &ErrQuotaExceeded{TenantID: tenantID, Limit: t.monthlyQuota, Period: "month", RetryAfter: durationUntilNextUTCMonth(now)}
		}

		out = ConsumeResult{
			DayCount: nextDayCount, DayLimit: t.dailyQuota, DayReset: now.Add(durationUntilNextUTCDay(now)),
			MonthCount: nextMonthCount, MonthLimit: t.monthlyQuota, MonthReset: now.Add(durationUntilNextUTCMonth(now)),
		}

		return tx.Model(&UsageRow{}).
			Where("tenant_id = ?", tenantID).
			Updates(map[string]any{
				"day_bucket":  day,
				"day_count":   nextDayCount,
				"month_year":  monthYear,
				"month_count": nextMonthCount,
				"updated_at":  now,
			}).Error
	})
	return out, err
}

func durationUntilNextUTCDay(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return next.Sub(now)
}

func durationUntilNextUTCMonth(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return next.Sub(now)
}
