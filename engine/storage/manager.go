package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/memoryengine/engine/model"
	internaldb "github.com/BaSui01/memoryengine/internal/database"
)

const (
	defaultMaxContentChars          = 4000
	defaultAssistantMaxContentChars = 900
	defaultWriteRetryAttempts       = 5
)

// Manager is the tenant-scoped persistence layer for memory records.
type Manager struct {
	pool   *internaldb.PoolManager
	logger *zap.Logger

	maxContentChars          int
	assistantMaxContentChars int
	writeRetryAttempts       int
}

// New wraps an already-migrated gorm connection in a Manager using the
// conventional content-length limits.
func New(pool *internaldb.PoolManager, logger *zap.Logger) *Manager {
	return NewWithLimits(pool, logger, defaultMaxContentChars, defaultAssistantMaxContentChars)
}

// NewWithLimits is like New but overrides the content-truncation limits.
// Non-positive values fall back to the package defaults.
func NewWithLimits(pool *internaldb.PoolManager, logger *zap.Logger, maxContentChars, assistantMaxContentChars int) *Manager {
	if maxContentChars <= 0 {
		maxContentChars = defaultMaxContentChars
	}
	if assistantMaxContentChars <= 0 {
		assistantMaxContentChars = defaultAssistantMaxContentChars
	}
	return &Manager{
		pool:                     pool,
		logger:                   logger.With(zap.String("component", "memory_storage")),
		maxContentChars:          maxContentChars,
		assistantMaxContentChars: assistantMaxContentChars,
		writeRetryAttempts:       defaultWriteRetryAttempts,
	}
}

// AutoMigrate creates/updates the memories table for the configured driver.
func (m *Manager) AutoMigrate(ctx context.Context) error {
	return m.pool.DB().WithContext(ctx).AutoMigrate(&Row{})
}

// Store persists a newly-decided memory and returns the generated record.
func (m *Manager) Store(ctx context.Context, processed model.ProcessedEvent, decision model.StorageDecision) (*model.MemoryRecord, error) {
	tenantID := normalizeTenant(processed.TenantID)
	content := truncateContent(processed.Description, processed.Intent, m.maxContentChars, m.assistantMaxContentChars)

	entities, _ := processed.Context["entities"].([]string)
	relationships, _ := processed.Context["relationships"].([]string)

	record := &model.MemoryRecord{
		MemoryID:          uuid.NewString(),
		TenantID:          tenantID,
		EventID:           processed.EventID,
		Content:           content,
		Summary:           processed.SemanticSummary,
		Intent:            processed.Intent,
		Entities:          append([]string{processed.EntityID}, entities...),
		Relationships:     relationships,
		RawEmbedding:       processed.Embedding,
		SemanticEmbedding: processed.SemanticEmbedding,
		SemanticKey:       processed.SemanticKey,
		StorageTier:       decision.StorageTier,
		LatestImportance:  decision.Confidence,
		OriginalCount:     1,
		CreatedAt:         processed.Timestamp,
		UpdatedAt:         processed.Timestamp,
	}

	row := toRow(record)
	err := m.executeWrite(ctx, func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}
	return record, nil
}

// StoreCandidate persists an inferred/compressed memory directly (used by
// the orchestrator when it synthesizes a new memory rather than encoding a
// caller-submitted event).
func (m *Manager) StoreCandidate(ctx context.Context, record *model.MemoryRecord) error {
	if record.MemoryID == "" {
		record.MemoryID = uuid.NewString()
	}
	record.TenantID = normalizeTenant(record.TenantID)
	row := toRow(record)
	return m.executeWrite(ctx, func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
}

func (m *Manager) executeWrite(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for attempt := 0; attempt < m.writeRetryAttempts; attempt++ {
		err := m.pool.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableLockError(err) {
			return err
		}
		m.logger.Warn("memory write retrying after lock contention",
			zap.Int("attempt", attempt+1), zap.Error(err))
		backoff := time.Duration(float64(10*time.Millisecond) * pow2(attempt))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("write failed after %d attempts: %w", m.writeRetryAttempts, lastErr)
}

func pow2(n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= 2
	}
	return out
}

func isRetryableLockError(err error) bool {
	msg := err.Error()
	for _, needle := range []string{"database is locked", "cannot start a transaction", "deadlock", "lock wait timeout", "could not serialize access"} {
		if contains(msg, needle) {
			return true
		}
	}
	return false
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || (len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// CountMemories returns how many memories a tenant currently has.
func (m *Manager) CountMemories(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := m.pool.DB().WithContext(ctx).Model(&Row{}).
		Where("tenant_id = ?", normalizeTenant(tenantID)).Count(&count).Error
	return count, err
}

// ListMemories returns up to limit memories for a tenant, newest first.
func (m *Manager) ListMemories(ctx context.Context, tenantID string, limit int) ([]*model.MemoryRecord, error) {
	var rows []Row
	q := m.pool.DB().WithContext(ctx).Where("tenant_id = ?", normalizeTenant(tenantID)).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rowsToRecords(rows), nil
}

// FetchByIDs returns the memories with the given IDs, scoped to tenantID.
func (m *Manager) FetchByIDs(ctx context.Context, tenantID string, ids []string) ([]*model.MemoryRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []Row
	err := m.pool.DB().WithContext(ctx).
		Where("tenant_id = ? AND memory_id IN ?", normalizeTenant(tenantID), ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rowsToRecords(rows), nil
}

// FetchByEntityAndIntent returns non-compressed memories for entityID and
// intent created since the given time.
func (m *Manager) FetchByEntityAndIntent(ctx context.Context, tenantID, entityID, intent string, since time.Time) ([]*model.MemoryRecord, error) {
	var rows []Row
	err := m.pool.DB().WithContext(ctx).
		Where("tenant_id = ? AND intent = ? AND is_compressed = ? AND created_at >= ?",
			normalizeTenant(tenantID), intent, false, since).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.MemoryRecord, 0, len(rows))
	for _, r := range rowsToRecords(rows) {
		if r.PrimaryEntity() == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

// RecentByEntityIntents implements personalization.Storage: non-inferred
// memories for entityID whose intent is in intents, created since the
// given time.
func (m *Manager) RecentByEntityIntents(tenantID, entityID string, intents map[string]struct{}, since time.Time) ([]*model.MemoryRecord, error) {
	var rows []Row
	err := m.pool.DB().WithContext(context.Background()).
		Where("tenant_id = ? AND created_at >= ?", normalizeTenant(tenantID), since).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.MemoryRecord, 0, len(rows))
	for _, r := range rowsToRecords(rows) {
		if _, ok := intents[r.Intent]; !ok {
			continue
		}
		if model.IsInferredIntent(r.Intent) {
			continue
		}
		if r.PrimaryEntity() == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

// RecentByIntents implements personalization.Storage: the most recent
// memories (any entity) whose intent is in intents.
func (m *Manager) RecentByIntents(tenantID string, intents map[string]struct{}, limit int) ([]*model.MemoryRecord, error) {
	var rows []Row
	q := m.pool.DB().WithContext(context.Background()).
		Where("tenant_id = ?", normalizeTenant(tenantID)).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit * 4)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.MemoryRecord, 0, limit)
	for _, r := range rowsToRecords(rows) {
		if _, ok := intents[r.Intent]; !ok {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// FindBySignature implements personalization.Storage: memories carrying a
// "signature:<sig>" relationship, most recently updated first.
func (m *Manager) FindBySignature(tenantID, signature string) ([]*model.MemoryRecord, error) {
	var rows []Row
	err := m.pool.DB().WithContext(context.Background()).
		Where("tenant_id = ?", normalizeTenant(tenantID)).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	needle := "signature:" + signature
	var out []*model.MemoryRecord
	for _, r := range rowsToRecords(rows) {
		for _, rel := range r.Relationships {
			if rel == needle {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

// SearchCandidates computes cosine similarity in-process against every
// tenant memory and returns the topK closest to queryEmbedding. This is the
// storage-layer fallback used when no vector index is available; the
// engine orchestrator prefers its in-memory index and only falls back here
// on a cold cache.
func (m *Manager) SearchCandidates(ctx context.Context, tenantID string, queryEmbedding []float32, topK int) ([]*model.MemoryRecord, error) {
	all, err := m.ListMemories(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}
	return topKBySimilarity(all, queryEmbedding, topK), nil
}

// UpdateRetrieval increments the retrieval counter for a memory.
func (m *Manager) UpdateRetrieval(ctx context.Context, tenantID, memoryID string) error {
	return m.executeWrite(ctx, func(tx *gorm.DB) error {
		return tx.Model(&Row{}).
			Where("tenant_id = ? AND memory_id = ?", normalizeTenant(tenantID), memoryID).
			Updates(map[string]any{
				"retrieval_count": gorm.Expr("retrieval_count + 1"),
				"updated_at":      time.Now().UTC(),
			}).Error
	})
}

// UpdateOutcome folds a new outcome signal into the running average for a
// memory under a row lock, so concurrent feedback batches don't race.
func (m *Manager) UpdateOutcome(ctx context.Context, tenantID, memoryID string, outcomeSignal float64) error {
	return m.executeWrite(ctx, func(tx *gorm.DB) error {
		var row Row
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND memory_id = ?", normalizeTenant(tenantID), memoryID).
			First(&row).Error; err != nil {
			return err
		}
		newAvg := (row.AvgOutcomeSignal*float64(row.OutcomeCount) + outcomeSignal) / float64(row.OutcomeCount+1)
		return tx.Model(&Row{}).
			Where("tenant_id = ? AND memory_id = ?", normalizeTenant(tenantID), memoryID).
			Updates(map[string]any{
				"avg_outcome_signal": newAvg,
				"outcome_count":      row.OutcomeCount + 1,
				"updated_at":         time.Now().UTC(),
			}).Error
	})
}

// DeleteMemories removes the given memory IDs for a tenant.
func (m *Manager) DeleteMemories(ctx context.Context, tenantID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return m.executeWrite(ctx, func(tx *gorm.DB) error {
		return tx.Where("tenant_id = ? AND memory_id IN ?", normalizeTenant(tenantID), ids).Delete(&Row{}).Error
	})
}

func rowsToRecords(rows []Row) []*model.MemoryRecord {
	out := make([]*model.MemoryRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out
}
