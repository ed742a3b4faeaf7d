// Package engine wires every pipeline stage together behind a single
// DecisionEngine: ingest an event, decide whether and how to store it,
// persist it (plus anything the personalization engine infers from it),
// retrieve memories for a query, and learn from feedback on what was
// retrieved.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memoryengine/engine/decay"
	"github.com/BaSui01/memoryengine/engine/decision"
	"github.com/BaSui01/memoryengine/engine/encoding"
	"github.com/BaSui01/memoryengine/engine/importance"
	"github.com/BaSui01/memoryengine/engine/input"
	"github.com/BaSui01/memoryengine/engine/learning"
	"github.com/BaSui01/memoryengine/engine/model"
	"github.com/BaSui01/memoryengine/engine/personalization"
	"github.com/BaSui01/memoryengine/engine/ranker"
	"github.com/BaSui01/memoryengine/engine/retrieval"
	"github.com/BaSui01/memoryengine/engine/storage"
	"github.com/BaSui01/memoryengine/engine/vector"
)

// Config tunes the orchestrator-level behavior that isn't owned by any one
// stage: metrics flushing, where the vector index persists itself, and the
// tuning knobs for the decision/compression/ranker/personalization stages
// that spec.md's Environment section requires to be configurable rather
// than hardcoded.
type Config struct {
	MetricsPath          string
	MetricsFlushInterval int
	VectorIndexPath      string
	EmbeddingDimension   int

	// AssistantMaxShare caps the fraction of a retrieval result that may be
	// assistant-authored memories (default 0.25).
	AssistantMaxShare float64

	// PersistentThreshold/EphemeralThreshold are the storage-decision
	// confidence cutoffs (defaults 0.7/0.4).
	PersistentThreshold float64
	EphemeralThreshold  float64

	// CompressionMinCount/CompressionMaxItems tune the compression
	// planner's trigger and summary size (defaults 5/20).
	CompressionMinCount  int
	CompressionMaxItems  int
	CompressionWindowDays int

	// RankerLearningRate is the ranker's gradient-step size (default 1e-3).
	RankerLearningRate float64

	// Personalization carries the personalization engine's tuning
	// (repeat/similarity thresholds, TTL, etc).
	Personalization personalization.Config
}

// DefaultConfig returns conventional tuning.
func DefaultConfig() Config {
	return Config{
		MetricsPath:           "metrics.json",
		MetricsFlushInterval:  50,
		VectorIndexPath:       "vector_index.json",
		EmbeddingDimension:    256,
		AssistantMaxShare:     0.25,
		PersistentThreshold:   0.7,
		EphemeralThreshold:    0.4,
		CompressionMinCount:   5,
		CompressionMaxItems:   20,
		CompressionWindowDays: 7,
		RankerLearningRate:    1e-3,
		Personalization:       personalization.DefaultConfig(),
	}
}

// entityKey identifies a (entity, intent) pair for recency-window tracking.
type entityKey struct {
	entity string
	intent string
}

// Engine is the top-level orchestrator. One Engine instance serves every
// tenant; all state it holds in-process (caches, vector index) is
// tenant-partitioned internally.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	encoder       *encoding.Encoder
	importance    *importance.Model
	decayLearner  *decay.Learner
	rankerModel   *ranker.Ranker
	storageMgr    *storage.Manager
	vectorIndex   *vector.Store
	compression   *decision.Planner
	decisionLogic *decision.Logic
	retrievalSvc  *retrieval.Service
	learningLoop  *learning.Loop
	personalize   *personalization.Engine

	mu                    sync.Mutex
	totalMemories         int
	entityReferenceCounts map[string]int
	entityMemoryIDs       map[string]map[string]struct{}
	recentKeyTimestamps   map[entityKey][]time.Time
	opsSinceFlush         int
}

// Dependencies bundles every component New needs. Callers typically build
// each of these once at process start.
type Dependencies struct {
	Encoder      *encoding.Encoder
	Importance   *importance.Model
	Decay        *decay.Learner
	Ranker       *ranker.Ranker
	StorageMgr   *storage.Manager
	VectorIndex  *vector.Store
	Logger       *zap.Logger
	Now          func() time.Time
}

// New assembles a DecisionEngine from its dependencies and tuning.
func New(deps Dependencies, cfg Config) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	cfg = cfg.sanitized()

	planner := decision.NewPlanner(cfg.CompressionMinCount, cfg.CompressionWindowDays, cfg.CompressionMaxItems)
	scorer := &decision.Scorer{Model: deps.Importance, Now: now}
	logic := decision.NewLogic(scorer, deps.Decay, planner)
	logic.PersistentThreshold = cfg.PersistentThreshold
	logic.EphemeralThreshold = cfg.EphemeralThreshold

	e := &Engine{
		cfg:                   cfg,
		logger:                deps.Logger,
		now:                   now,
		encoder:               deps.Encoder,
		importance:            deps.Importance,
		decayLearner:          deps.Decay,
		rankerModel:           deps.Ranker,
		storageMgr:            deps.StorageMgr,
		vectorIndex:           deps.VectorIndex,
		compression:           planner,
		decisionLogic:         logic,
		entityReferenceCounts: make(map[string]int),
		entityMemoryIDs:       make(map[string]map[string]struct{}),
		recentKeyTimestamps:   make(map[entityKey][]time.Time),
	}

	e.retrievalSvc = &retrieval.Service{
		Storage:           deps.StorageMgr,
		Ranker:            deps.Ranker,
		VectorIndex:       deps.VectorIndex,
		Now:               now,
		AssistantMaxShare: cfg.AssistantMaxShare,
	}
	e.learningLoop = &learning.Loop{
		Storage: deps.StorageMgr,
		Ranker:  deps.Ranker,
		Updater: &learning.WeightUpdater{Importance: deps.Importance, Decay: deps.Decay},
		Logger:  deps.Logger,
		Now:     now,
	}
	e.personalize = personalization.New(deps.StorageMgr, cfg.Personalization, now)

	return e
}

// sanitized fills in conventional defaults for zero-valued tuning fields,
// so a Config built field-by-field (rather than via DefaultConfig) doesn't
// end up with a zero assistant share, zero thresholds, etc.
func (c Config) sanitized() Config {
	if c.AssistantMaxShare <= 0 {
		c.AssistantMaxShare = 0.25
	}
	if c.PersistentThreshold <= 0 {
		c.PersistentThreshold = 0.7
	}
	if c.EphemeralThreshold <= 0 {
		c.EphemeralThreshold = 0.4
	}
	if c.CompressionMinCount <= 0 {
		c.CompressionMinCount = 5
	}
	if c.CompressionMaxItems <= 0 {
		c.CompressionMaxItems = 20
	}
	if c.CompressionWindowDays <= 0 {
		c.CompressionWindowDays = 7
	}
	if c.RankerLearningRate <= 0 {
		c.RankerLearningRate = 1e-3
	}
	if (c.Personalization == personalization.Config{}) {
		c.Personalization = personalization.DefaultConfig()
	}
	return c
}

// WarmCacheFromStorage re-populates the vector index and in-process caches
// from whatever a tenant already has persisted, so a restarted process
// doesn't start cold on compression/personalization triggers.
func (e *Engine) WarmCacheFromStorage(ctx context.Context, tenantID string) error {
	existing, err := e.storageMgr.ListMemories(ctx, tenantID, 0)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range existing {
		e.vectorIndex.Add(m.MemoryID, m.SemanticEmbedding)
		e.registerMemoryLocked(m)
	}
	return nil
}

// ProcessInput runs stage 1: semantic understanding + embedding.
func (e *Engine) ProcessInput(ctx context.Context, ev model.Event) (model.ProcessedEvent, error) {
	if msg := ev.Normalize(e.now); msg != "" {
		return model.ProcessedEvent{}, fmt.Errorf("invalid event: %s", msg)
	}
	ev.Metadata = input.BuildContext(ev.EntityID, ev.EventType, ev.Description, ev.Metadata)
	return e.encoder.EncodeEvent(ctx, generateEventID(), ev)
}

// MakeStorageDecision runs stage 2 against the tenant's current snapshot.
func (e *Engine) MakeStorageDecision(processed model.ProcessedEvent) model.StorageDecision {
	snapshot := e.snapshot(processed)
	return e.decisionLogic.Decide(processed, snapshot)
}

func (e *Engine) snapshot(processed model.ProcessedEvent) model.MemorySnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := entityKey{entity: processed.EntityID, intent: processed.Intent}
	return model.MemorySnapshot{
		TotalMemories:        e.totalMemories,
		EntityReferenceCount: e.entityReferenceCounts[processed.EntityID],
		SimilarRecentCount:   e.similarRecentCountLocked(key, processed.Timestamp),
		GeneratedAt:          e.now(),
		Metadata:             map[string]string{"event_type": processed.EventType},
	}
}

// similarRecentCountLocked prunes stale timestamps and returns how many
// remain inside the compression window. Callers must hold e.mu.
func (e *Engine) similarRecentCountLocked(key entityKey, reference time.Time) int {
	window := time.Duration(e.compression.WindowDays) * 24 * time.Hour
	cutoff := reference.Add(-window)
	timestamps := e.recentKeyTimestamps[key]
	kept := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.recentKeyTimestamps[key] = kept
	return len(kept)
}

// StoreMemory persists the core memory, registers it, runs the
// personalization engine against it, and triggers compression if the
// decision flagged the cluster as large enough.
func (e *Engine) StoreMemory(ctx context.Context, processed model.ProcessedEvent, decision model.StorageDecision) (*model.MemoryRecord, error) {
	if !decision.Store {
		return nil, nil
	}
	stored, err := e.storeCore(ctx, processed, decision, false, 1)
	if err != nil {
		return nil, err
	}

	for _, candidate := range e.personalize.ObserveMemory(processed.TenantID, stored) {
		if err := e.storeInferredCandidate(ctx, processed.TenantID, candidate); err != nil {
			e.logger.Warn("failed to store inferred candidate", zap.Error(err))
		}
	}

	if decision.ShouldCompress {
		if err := e.maybeCompressCluster(ctx, processed); err != nil {
			e.logger.Warn("compression attempt failed", zap.Error(err))
		}
	}

	e.pruneExpiredInferred(ctx, processed.TenantID)

	e.scheduleMetricsFlush(ctx, processed.TenantID)
	return stored, nil
}

// pruneExpiredInferred deletes inferred memories past their TTL for the
// tenant, lazily on each ingest tick rather than via a background sweep.
func (e *Engine) pruneExpiredInferred(ctx context.Context, tenantID string) {
	all, err := e.storageMgr.ListMemories(ctx, tenantID, 0)
	if err != nil {
		e.logger.Warn("inferred TTL prune: list memories failed", zap.Error(err))
		return
	}
	expired := e.personalize.ExpiredInferredMemoryIDs(tenantID, all)
	if len(expired) == 0 {
		return
	}
	if err := e.storageMgr.DeleteMemories(ctx, tenantID, expired); err != nil {
		e.logger.Warn("inferred TTL prune: delete failed", zap.Error(err))
		return
	}
	e.vectorIndex.RemoveMany(expired)

	var deletedRecords []*model.MemoryRecord
	expiredSet := make(map[string]struct{}, len(expired))
	for _, id := range expired {
		expiredSet[id] = struct{}{}
	}
	for _, m := range all {
		if _, ok := expiredSet[m.MemoryID]; ok {
			deletedRecords = append(deletedRecords, m)
		}
	}
	e.personalize.NotifyMemoriesDeleted(deletedRecords)

	e.mu.Lock()
	e.totalMemories -= len(expired)
	if e.totalMemories < 0 {
		e.totalMemories = 0
	}
	e.mu.Unlock()
}

func (e *Engine) storeCore(ctx context.Context, processed model.ProcessedEvent, dec model.StorageDecision, compressed bool, originalCount int) (*model.MemoryRecord, error) {
	record, err := e.storageMgr.Store(ctx, processed, dec)
	if err != nil {
		return nil, err
	}
	record.IsCompressed = compressed
	record.OriginalCount = originalCount

	e.vectorIndex.Add(record.MemoryID, record.SemanticEmbedding)

	e.mu.Lock()
	e.registerMemoryLocked(record)
	e.mu.Unlock()

	return record, nil
}

func (e *Engine) registerMemoryLocked(m *model.MemoryRecord) {
	e.totalMemories++
	for _, entity := range m.Entities {
		e.entityReferenceCounts[entity]++
		ids, ok := e.entityMemoryIDs[entity]
		if !ok {
			ids = make(map[string]struct{})
			e.entityMemoryIDs[entity] = ids
		}
		ids[m.MemoryID] = struct{}{}
	}
	key := entityKey{entity: m.PrimaryEntity(), intent: m.Intent}
	e.recentKeyTimestamps[key] = append(e.recentKeyTimestamps[key], m.CreatedAt)
}

func (e *Engine) unregisterMemoryLocked(m *model.MemoryRecord) {
	e.totalMemories--
	for _, entity := range m.Entities {
		if e.entityReferenceCounts[entity] > 0 {
			e.entityReferenceCounts[entity]--
		}
		if ids, ok := e.entityMemoryIDs[entity]; ok {
			delete(ids, m.MemoryID)
		}
	}
	key := entityKey{entity: m.PrimaryEntity(), intent: m.Intent}
	timestamps := e.recentKeyTimestamps[key]
	for i, t := range timestamps {
		if t.Equal(m.CreatedAt) {
			e.recentKeyTimestamps[key] = append(timestamps[:i], timestamps[i+1:]...)
			break
		}
	}
}

func (e *Engine) storeInferredCandidate(ctx context.Context, tenantID string, candidate personalization.Candidate) error {
	summary, _ := candidate.Metadata["summary"].(string)
	entities, _ := candidate.Metadata["entities"].([]string)
	relationships, _ := candidate.Metadata["relationships"].([]string)

	plan := personalization.ComputeDecayPlan(candidate.Metadata)
	confidence := candidate.Confidence
	if confidence > 0.99 {
		confidence = 0.99
	}
	if confidence < 0.5 {
		confidence = 0.5
	}

	record := &model.MemoryRecord{
		TenantID:         tenantID,
		Content:          candidate.Content,
		Summary:          summary,
		Intent:           candidate.EventType,
		Entities:         entities,
		Relationships:    relationships,
		StorageTier:      model.TierPersistent,
		LatestImportance: confidence,
		OriginalCount:    1,
		CreatedAt:        e.now(),
		UpdatedAt:        e.now(),
	}
	embedding, err := e.encoder.EncodeQuery(ctx, candidate.Content)
	if err == nil {
		record.SemanticEmbedding = embedding
		record.RawEmbedding = embedding
	}

	if err := e.storageMgr.StoreCandidate(ctx, record); err != nil {
		return err
	}
	e.vectorIndex.Add(record.MemoryID, record.SemanticEmbedding)

	e.mu.Lock()
	e.registerMemoryLocked(record)
	e.mu.Unlock()

	if len(candidate.SupersedesMemoryIDs) > 0 {
		_ = e.storageMgr.DeleteMemories(ctx, tenantID, candidate.SupersedesMemoryIDs)
	}

	e.logger.Info("adaptive_inferred_memory_stored",
		zap.String("entity_id", candidate.EntityID),
		zap.String("decay_label", plan.Label),
		zap.Float64("confidence", confidence),
	)
	return nil
}

func (e *Engine) maybeCompressCluster(ctx context.Context, processed model.ProcessedEvent) error {
	since := e.compression.SinceTime(e.now())
	candidates, err := e.storageMgr.FetchByEntityAndIntent(ctx, processed.TenantID, processed.EntityID, processed.Intent, since)
	if err != nil {
		return err
	}
	plan := e.compression.Plan(processed, candidates)
	if !plan.ShouldCompress {
		return nil
	}

	if err := e.storageMgr.DeleteMemories(ctx, processed.TenantID, plan.MemoryIDsToReplace); err != nil {
		return err
	}
	e.vectorIndex.RemoveMany(plan.MemoryIDsToReplace)

	e.mu.Lock()
	for _, c := range candidates {
		e.unregisterMemoryLocked(c)
	}
	e.mu.Unlock()
	e.personalize.NotifyMemoriesDeleted(candidates)

	synthetic := model.Event{
		TenantID:    processed.TenantID,
		EntityID:    processed.EntityID,
		EventType:   processed.EventType,
		Description: plan.SummaryText,
		Timestamp:   e.now(),
		Metadata: map[string]any{
			"summary":                  plan.SummaryText,
			"intent":                   processed.Intent,
			"entities":                 []string{processed.EntityID},
			"compressed":               true,
			"compressed_original_count": plan.OriginalCount,
		},
	}
	synthProcessed, err := e.ProcessInput(ctx, synthetic)
	if err != nil {
		return err
	}

	confidence := 0.8
	compressedDecision := model.StorageDecision{
		Store:          true,
		StorageTier:    model.TierPersistent,
		Confidence:     confidence,
		DecayRate:      1.0 / float64(maxInt(plan.OriginalCount, 1)),
		DecayHalfLife:  float64(plan.OriginalCount),
		ShouldCompress: false,
		Rationale:      "compression-replacement",
		Trace:          map[string]float64{"compression": 1},
	}
	if _, err := e.storeCore(ctx, synthProcessed, compressedDecision, true, plan.OriginalCount); err != nil {
		return err
	}

	e.logger.Warn("compression_triggered",
		zap.String("entity_id", processed.EntityID),
		zap.String("intent", processed.Intent),
		zap.Int("original_count", plan.OriginalCount),
	)
	return nil
}

// Retrieve runs the full retrieval pipeline for a tenant's query.
func (e *Engine) Retrieve(ctx context.Context, tenantID, query string, topK int) ([]model.RankedMemory, error) {
	embedding, err := e.encoder.EncodeQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.retrievalSvc.Retrieve(ctx, tenantID, embedding, topK)
}

// RecordOutcome applies single-memory feedback ("success" or anything
// else) without a ranked batch context.
func (e *Engine) RecordOutcome(ctx context.Context, tenantID, memoryID, outcome string) error {
	signal := -1.0
	if outcome == "success" {
		signal = 1.0
	}
	return e.storageMgr.UpdateOutcome(ctx, tenantID, memoryID, signal)
}

// RecordFeedback routes a ranked-retrieval feedback batch to the learning
// loop and the personalization engine.
func (e *Engine) RecordFeedback(ctx context.Context, feedback model.FeedbackBatch) (learning.Result, error) {
	result, err := e.learningLoop.RecordFeedback(ctx, feedback)
	if err != nil {
		return result, err
	}

	memories, err := e.storageMgr.FetchByIDs(ctx, feedback.TenantID, feedback.RankedMemoryIDs)
	if err == nil {
		helpful := make(map[string]bool, len(feedback.HelpfulMemoryIDs))
		for _, id := range feedback.HelpfulMemoryIDs {
			helpful[id] = true
		}
		for _, candidate := range e.personalize.ObserveFeedback(feedback.TenantID, memories, helpful, feedback.OutcomeSignal) {
			if err := e.storeInferredCandidate(ctx, feedback.TenantID, candidate); err != nil {
				e.logger.Warn("failed to store feedback-derived candidate", zap.Error(err))
			}
		}
	}
	return result, nil
}

// MemoryCount returns the in-process memory count the engine has tracked
// for the current process lifetime (callers wanting tenant-scoped
// on-disk totals should use storage.Manager.CountMemories directly).
func (e *Engine) MemoryCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalMemories
}

// MemoryIDsForEntity returns every memory ID registered for an entity.
func (e *Engine) MemoryIDsForEntity(entityID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := e.entityMemoryIDs[entityID]
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}

// HalfLifeForKey recomputes the current half-life a semantic key's decay
// rate implies.
func (e *Engine) HalfLifeForKey(semanticKey string) float64 {
	rate := e.decayLearner.PredictDecayRate(semanticKey)
	if rate <= 0 {
		return -1 // caller convention: negative means "does not decay"
	}
	return 0.6931471805599453 / rate // ln(2)
}

func (e *Engine) scheduleMetricsFlush(ctx context.Context, tenantID string) {
	e.mu.Lock()
	e.opsSinceFlush++
	shouldFlush := e.cfg.MetricsFlushInterval > 0 && e.opsSinceFlush >= e.cfg.MetricsFlushInterval
	if shouldFlush {
		e.opsSinceFlush = 0
	}
	e.mu.Unlock()

	if shouldFlush {
		e.writeMetrics(tenantID)
	}
	_ = ctx
}

func (e *Engine) writeMetrics(tenantID string) {
	if e.cfg.MetricsPath == "" {
		return
	}
	e.mu.Lock()
	payload := map[string]any{
		"generated_at": e.now(),
		"metrics": map[string]any{
			"total_memories":   e.totalMemories,
			"vector_index_len": e.vectorIndex.Len(),
			"tenant":           tenantID,
		},
		"storage_ratio": storageRatio(e.totalMemories, e.vectorIndex.Len()),
	}
	e.mu.Unlock()

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(e.cfg.MetricsPath, data, 0o644); err != nil {
		e.logger.Warn("failed to write metrics file", zap.Error(err))
	}
}

func storageRatio(total, indexed int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(indexed) / float64(total)
}

// Close flushes metrics and the vector index to disk.
func (e *Engine) Close() error {
	e.writeMetrics("")
	if e.cfg.VectorIndexPath != "" {
		return e.vectorIndex.Save(e.cfg.VectorIndexPath)
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

var eventIDCounter struct {
	sync.Mutex
	n uint64
}

// generateEventID produces a process-unique event ID without pulling in
// Date.now()/uuid at this layer (storage assigns the durable memory ID).
func generateEventID() string {
	eventIDCounter.Lock()
	eventIDCounter.n++
	n := eventIDCounter.n
	eventIDCounter.Unlock()
	return fmt.Sprintf("evt-%d-%d", time.Now().UnixNano(), n)
}
