// Package quota enforces per-tenant usage limits and request idempotency
// with row-locked transactions, so two concurrent retries of the same
// ingest/retrieve/feedback call never double-apply.
package quota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IdempotencyRow is the durable record of a processed request keyed by its
// idempotency key, scoped to a tenant so two tenants can reuse the same
// client-supplied key without colliding.
type IdempotencyRow struct {
	TenantID    string `gorm:"primaryKey;size:128"`
	Key         string `gorm:"primaryKey;size:64"`
	RequestHash string `gorm:"size:64"`
	ResultJSON  string `gorm:"type:text"`
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (IdempotencyRow) TableName() string { return "api_idempotency" }

// ErrConflict is returned when an idempotency key is replayed with a
// different request body than the one it was first used for.
var ErrConflict = errors.New("idempotency key reused with a different request")

// IdempotencyManager stores one outcome per (tenant, key) pair under a row
// lock, so a retried request either replays the original result or, if the
// body changed, fails loudly instead of silently reprocessing.
type IdempotencyManager struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewIdempotencyManager returns a manager whose entries expire after ttl.
func NewIdempotencyManager(db *gorm.DB, ttl time.Duration) *IdempotencyManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyManager{db: db, ttl: ttl}
}

// AutoMigrate creates the idempotency table.
func (m *IdempotencyManager) AutoMigrate(ctx context.Context) error {
	return m.db.WithContext(ctx).AutoMigrate(&IdempotencyRow{})
}

// HashRequest is a stable fingerprint of a request body, used to detect key
// reuse across different payloads.
func HashRequest(body any) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Execute runs fn exactly once per (tenantID, key): if the key was already
// used with the same request hash, it replays the stored result (replayed
// is true); if used with a different hash, it returns ErrConflict;
// otherwise it runs fn, stores the result, and returns it fresh (replayed
// is false).
func (m *IdempotencyManager) Execute(ctx context.Context, tenantID, key, requestHash string, fn func() (any, error)) (result json.RawMessage, replayed bool, err error) {
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing IdempotencyRow
		lookupErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND key = ?", tenantID, key).First(&existing).Error

		switch {
		case lookupErr == nil:
			if existing.RequestHash != requestHash {
				return ErrConflict
			}
			result = json.RawMessage(existing.ResultJSON)
			replayed = true
			return nil
		case errors.Is(lookupErr, gorm.ErrRecordNotFound):
			value, fnErr := fn()
			if fnErr != nil {
				return fnErr
			}
			data, marshalErr := json.Marshal(value)
			if marshalErr != nil {
				return marshalErr
			}
			row := IdempotencyRow{
				TenantID:    tenantID,
				Key:         key,
				RequestHash: requestHash,
				ResultJSON:  string(data),
				CreatedAt:   time.Now().UTC(),
				ExpiresAt:   time.Now().UTC().Add(m.ttl),
			}
			if createErr := tx.Create(&row).Error; createErr != nil {
				return createErr
			}
			result = data
			replayed = false
			return nil
		default:
			return fmt.Errorf("idempotency lookup failed: %w", lookupErr)
		}
	})
	return result, replayed, err
}

// PruneExpired deletes idempotency rows whose TTL has elapsed. Intended to
// be called periodically by a maintenance goroutine.
func (m *IdempotencyManager) PruneExpired(ctx context.Context) (int64, error) {
	result := m.db.WithContext(ctx).Where("expires_at < ?", time.Now().UTC()).Delete(&IdempotencyRow{})
	return result.RowsAffected, result.Error
}
