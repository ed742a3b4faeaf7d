package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/memoryengine/engine"
	"github.com/BaSui01/memoryengine/engine/model"
	"github.com/BaSui01/memoryengine/engine/quota"
	"github.com/BaSui01/memoryengine/internal/metrics"
	"github.com/BaSui01/memoryengine/types"
	"go.uber.org/zap"
)

// MemoryHandler exposes the memory engine's ingest/retrieve/feedback
// pipeline over HTTP. It sits behind the same middleware chain as the
// rest of the API (auth, tenant rate limiting, idempotency), so handlers
// themselves only translate between wire shapes and engine calls.
type MemoryHandler struct {
	eng        *engine.Engine
	quotaTrack *quota.Tracker
	idemp      *quota.IdempotencyManager
	collector  *metrics.Collector
	logger     *zap.Logger
}

// NewMemoryHandler builds a MemoryHandler. quotaTrack and idemp may be nil
// to disable quota enforcement and idempotency replay respectively.
func NewMemoryHandler(eng *engine.Engine, quotaTrack *quota.Tracker, idemp *quota.IdempotencyManager, collector *metrics.Collector, logger *zap.Logger) *MemoryHandler {
	return &MemoryHandler{eng: eng, quotaTrack: quotaTrack, idemp: idemp, collector: collector, logger: logger}
}

func tenantFromRequest(r *http.Request) (string, bool) {
	if id, ok := types.TenantID(r.Context()); ok && id != "" {
		return id, true
	}
	return "", false
}

// ingestRequest is the wire shape for POST /v1/memories.
type ingestRequest struct {
	EntityID    string         `json:"entity_id"`
	EventType   string         `json:"event_type"`
	Description string         `json:"description"`
	Timestamp   *time.Time     `json:"timestamp,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type ingestResponse struct {
	Stored      bool               `json:"stored"`
	MemoryID    string             `json:"memory_id,omitempty"`
	StorageTier model.StorageTier  `json:"storage_tier"`
	Confidence  float64            `json:"confidence"`
	Rationale   string             `json:"rationale"`
}

// HandleIngest processes POST /v1/memories: normalizes the event, runs the
// storage decision, and persists the memory if the decision says to.
func (h *MemoryHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrCodeAuth, "tenant identity required", h.logger)
		return
	}

	var req ingestRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if h.quotaTrack != nil {
		usage, err := h.quotaTrack.Consume(r.Context(), tenantID)
		if err != nil {
			if h.collector != nil {
				h.collector.RecordMemoryQuotaRejected(tenantID)
			}
			writeQuotaExceededHeaders(w, err)
			WriteErrorMessage(w, http.StatusTooManyRequests, types.ErrCodeRateLimit, err.Error(), h.logger)
			return
		}
		writeRateLimitHeaders(w, usage)
	}

	result, err := h.runIdempotent(w, r, tenantID, req, func() (any, error) {
		return h.ingest(r.Context(), tenantID, req)
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	WriteSuccess(w, result)
}

// writeRateLimitHeaders sets the X-RateLimit-* headers spec'd for every
// mutating response, preferring the daily bucket since it's the tighter of
// the two windows whenever both are configured.
func writeRateLimitHeaders(w http.ResponseWriter, usage quota.ConsumeResult) {
	limit := usage.DayLimit
	remaining := limit - usage.DayCount
	reset := usage.DayReset
	if limit <= 0 {
		limit = usage.MonthLimit
		remaining = limit - usage.MonthCount
		reset = usage.MonthReset
	}
	if limit <= 0 {
		return
	}
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}

// writeQuotaExceededHeaders sets the rate-limit and Retry-After headers a
// 429 quota rejection must carry.
func writeQuotaExceededHeaders(w http.ResponseWriter, err error) {
	exceeded, ok := err.(*quota.ErrQuotaExceeded)
	if !ok {
		return
	}
	retryAfter := exceeded.RetryAfter
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(exceeded.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().UTC().Add(retryAfter).Unix(), 10))
	retrySeconds := int(retryAfter.Seconds())
	if retrySeconds < 1 {
		retrySeconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retrySeconds))
}

func (h *MemoryHandler) ingest(ctx context.Context, tenantID string, req ingestRequest) (*ingestResponse, error) {
	ev := model.Event{
		TenantID:    tenantID,
		EntityID:    req.EntityID,
		EventType:   req.EventType,
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	if req.Timestamp != nil {
		ev.Timestamp = *req.Timestamp
	}

	processed, err := h.eng.ProcessInput(ctx, ev)
	if err != nil {
		return nil, types.NewError(types.ErrCodeValidation, err.Error()).WithCause(err)
	}

	decision := h.eng.MakeStorageDecision(processed)
	if h.collector != nil {
		h.collector.RecordMemoryTierDecision(tenantID, string(decision.StorageTier))
	}

	resp := &ingestResponse{
		Stored:      false,
		StorageTier: decision.StorageTier,
		Confidence:  decision.Confidence,
		Rationale:   decision.Rationale,
	}
	if !decision.Store {
		return resp, nil
	}

	record, err := h.eng.StoreMemory(ctx, processed, decision)
	if err != nil {
		return nil, types.NewError(types.ErrCodeInternal, "failed to store memory").WithCause(err)
	}
	if h.collector != nil {
		h.collector.RecordMemoryIngest(tenantID, string(record.StorageTier))
	}
	resp.Stored = true
	resp.MemoryID = record.MemoryID
	return resp, nil
}

// retrieveRequest is the wire shape for POST /v1/memories/retrieve.
type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// HandleRetrieve processes POST /v1/memories/retrieve.
func (h *MemoryHandler) HandleRetrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrCodeAuth, "tenant identity required", h.logger)
		return
	}

	var req retrieveRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrCodeValidation, "query is required", h.logger)
		return
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}

	start := time.Now()
	ranked, err := h.eng.Retrieve(r.Context(), tenantID, req.Query, req.TopK)
	if h.collector != nil {
		h.collector.RecordMemoryRetrieve(tenantID, time.Since(start))
	}
	if err != nil {
		h.writeEngineError(w, types.NewError(types.ErrCodeInternal, "retrieval failed").WithCause(err))
		return
	}
	WriteSuccess(w, map[string]any{"results": ranked})
}

// outcomeRequest is the wire shape for POST /v1/memories/{id}/outcome.
type outcomeRequest struct {
	Outcome string `json:"outcome"`
}

// HandleOutcome processes POST /v1/memories/{id}/outcome.
func (h *MemoryHandler) HandleOutcome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrCodeAuth, "tenant identity required", h.logger)
		return
	}
	memoryID := extractMemoryID(r)
	if memoryID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrCodeValidation, "memory id is required", h.logger)
		return
	}

	var req outcomeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := h.eng.RecordOutcome(r.Context(), tenantID, memoryID, req.Outcome); err != nil {
		h.writeEngineError(w, types.NewError(types.ErrCodeInternal, "failed to record outcome").WithCause(err))
		return
	}
	WriteSuccess(w, map[string]any{"memory_id": memoryID, "outcome": req.Outcome})
}

// HandleFeedback processes POST /v1/memories/feedback.
func (h *MemoryHandler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrCodeAuth, "tenant identity required", h.logger)
		return
	}

	var req model.FeedbackBatch
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	req.TenantID = tenantID
	if req.ObservedAt.IsZero() {
		req.ObservedAt = time.Now().UTC()
	}

	result, err := h.eng.RecordFeedback(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, types.NewError(types.ErrCodeInternal, "failed to record feedback").WithCause(err))
		return
	}
	if h.collector != nil {
		h.collector.RecordMemoryFeedback(tenantID)
	}
	WriteSuccess(w, result)
}

// HandleStatus processes GET /v1/status: aggregate counts for the caller's
// tenant-scoped view of the in-process engine caches.
func (h *MemoryHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	WriteSuccess(w, map[string]any{
		"total_memories": h.eng.MemoryCount(),
	})
}

// HandleListByEntity processes GET /v1/memories?entity_id=....
func (h *MemoryHandler) HandleListByEntity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	entityID := strings.TrimSpace(r.URL.Query().Get("entity_id"))
	if entityID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrCodeValidation, "entity_id query parameter is required", h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"memory_ids": h.eng.MemoryIDsForEntity(entityID)})
}

// runIdempotent wraps fn with idempotency replay when the caller supplies an
// Idempotency-Key header and a manager is configured; otherwise it runs fn
// directly. On a replayed result it sets X-Idempotency-Replayed: true on w
// so the caller can tell a cached response from a freshly processed one.
func (h *MemoryHandler) runIdempotent(w http.ResponseWriter, r *http.Request, tenantID string, reqBody any, fn func() (any, error)) (any, error) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if h.idemp == nil || key == "" {
		return fn()
	}
	hash, err := quota.HashRequest(reqBody)
	if err != nil {
		return nil, types.NewError(types.ErrCodeInternal, "failed to hash request").WithCause(err)
	}
	raw, replayed, err := h.idemp.Execute(r.Context(), tenantID, key, hash, fn)
	if err != nil {
		return nil, err
	}
	if replayed {
		w.Header().Set("X-Idempotency-Replayed", "true")
	}
	var out any
	if uerr := json.Unmarshal(raw, &out); uerr != nil {
		return nil, types.NewError(types.ErrCodeInternal, "failed to decode idempotent result").WithCause(uerr)
	}
	return out, nil
}

func (h *MemoryHandler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case err == quota.ErrConflict:
		WriteErrorMessage(w, http.StatusConflict, types.ErrCodeIdempotencyConflict, err.Error(), h.logger)
	default:
		if apiErr, ok := err.(*types.Error); ok {
			WriteError(w, apiErr, h.logger)
			return
		}
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrCodeInternal, err.Error(), h.logger)
	}
}

// extractMemoryID pulls the {id} path segment from /v1/memories/{id}/outcome,
// preferring Go 1.22+ PathValue and falling back to manual parsing.
func extractMemoryID(r *http.Request) string {
	if id := r.PathValue("id"); id != "" {
		return id
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	for i, p := range parts {
		if p == "memories" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}
