// Package retrieval implements the query-time pipeline: preselect a
// candidate pool (vector index first, storage scan as fallback), backfill
// it so non-assistant memories aren't crowded out, rank the pool, then cap
// how many assistant-authored memories can appear in the final result.
package retrieval

import (
	"context"
	"time"

	"github.com/BaSui01/memoryengine/engine/model"
	"github.com/BaSui01/memoryengine/engine/vector"
)

// defaultAssistantResponseMaxShare is used when a Service is built without
// an explicit AssistantMaxShare (e.g. in older tests), matching spec.md's
// documented default.
const defaultAssistantResponseMaxShare = 0.25

// Storage is the subset of engine/storage.Manager the retrieval service
// needs.
type Storage interface {
	FetchByIDs(ctx context.Context, tenantID string, ids []string) ([]*model.MemoryRecord, error)
	SearchCandidates(ctx context.Context, tenantID string, queryEmbedding []float32, topK int) ([]*model.MemoryRecord, error)
	ListMemories(ctx context.Context, tenantID string, limit int) ([]*model.MemoryRecord, error)
	UpdateRetrieval(ctx context.Context, tenantID, memoryID string) error
}

// Ranker is satisfied by engine/ranker.Ranker.
type Ranker interface {
	Rank(queryEmbedding []float32, candidates []*model.MemoryRecord, now time.Time) []model.RankedMemory
}

// VectorIndex is satisfied by engine/vector.Store.
type VectorIndex interface {
	Search(query []float32, topK int) []vector.Hit
}

// Service runs the end-to-end retrieval pipeline for a tenant.
type Service struct {
	Storage     Storage
	Ranker      Ranker
	VectorIndex VectorIndex
	Now         func() time.Time

	// AssistantMaxShare caps the fraction of a result set that may be
	// assistant-authored memories. Zero means "unset", and falls back to
	// defaultAssistantResponseMaxShare rather than zero, so a
	// zero-valued Service literal still behaves sanely.
	AssistantMaxShare float64
}

// Retrieve returns up to topK memories for a tenant's query, ranked and
// intent-capped, and records a retrieval-count bump on each returned
// memory.
func (s *Service) Retrieve(ctx context.Context, tenantID string, queryEmbedding []float32, topK int) ([]model.RankedMemory, error) {
	if topK <= 0 {
		return nil, nil
	}
	poolSize := topK * 12
	if poolSize < 80 {
		poolSize = 80
	}

	candidates, err := s.preselect(ctx, tenantID, queryEmbedding, poolSize)
	if err != nil {
		return nil, err
	}

	candidates, err = s.ensureNonAssistantCandidates(ctx, tenantID, candidates, topK, poolSize)
	if err != nil {
		return nil, err
	}

	now := s.Now
	if now == nil {
		now = time.Now
	}
	ranked := s.Ranker.Rank(queryEmbedding, candidates, now())
	selected := selectWithIntentCaps(ranked, topK, s.assistantMaxShare())

	for _, r := range selected {
		_ = s.Storage.UpdateRetrieval(ctx, tenantID, r.Record.MemoryID)
	}
	return selected, nil
}

func (s *Service) assistantMaxShare() float64 {
	if s.AssistantMaxShare > 0 {
		return s.AssistantMaxShare
	}
	return defaultAssistantResponseMaxShare
}

func (s *Service) preselect(ctx context.Context, tenantID string, queryEmbedding []float32, poolSize int) ([]*model.MemoryRecord, error) {
	if s.VectorIndex != nil {
		hits := s.VectorIndex.Search(queryEmbedding, poolSize)
		if len(hits) > 0 {
			ids := make([]string, len(hits))
			for i, h := range hits {
				ids[i] = h.MemoryID
			}
			found, err := s.Storage.FetchByIDs(ctx, tenantID, ids)
			if err != nil {
				return nil, err
			}
			if len(found) > 0 {
				return found, nil
			}
		}
	}
	return s.Storage.SearchCandidates(ctx, tenantID, queryEmbedding, poolSize)
}

// ensureNonAssistantCandidates backfills the pool from a broader listing
// scan if there aren't enough non-assistant candidates to satisfy the
// intent cap once ranked.
func (s *Service) ensureNonAssistantCandidates(ctx context.Context, tenantID string, candidates []*model.MemoryRecord, topK, poolSize int) ([]*model.MemoryRecord, error) {
	requiredNonAssistant := topK - assistantCap(topK, s.assistantMaxShare())
	if requiredNonAssistant <= 0 {
		return candidates, nil
	}

	current := 0
	existing := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		existing[c.MemoryID] = struct{}{}
		if !model.IsAssistantIntent(c.Intent) {
			current++
		}
	}
	if current >= requiredNonAssistant {
		return candidates, nil
	}

	broadLimit := poolSize * 8
	if broadLimit < topK*8 {
		broadLimit = topK * 8
	}
	broad, err := s.Storage.ListMemories(ctx, tenantID, broadLimit)
	if err != nil {
		return nil, err
	}

	out := candidates
	for _, m := range broad {
		if current >= requiredNonAssistant {
			break
		}
		if model.IsAssistantIntent(m.Intent) {
			continue
		}
		if _, ok := existing[m.MemoryID]; ok {
			continue
		}
		existing[m.MemoryID] = struct{}{}
		out = append(out, m)
		current++
	}
	return out, nil
}

func assistantCap(topK int, maxShare float64) int {
	cap := int(float64(topK) * maxShare)
	if cap < 0 {
		cap = 0
	}
	if cap > topK {
		cap = topK
	}
	return cap
}

// selectWithIntentCaps walks the ranked list in order, admitting
// non-assistant memories freely and assistant memories only up to the
// cap, with a second pass admitting deferred assistant items if topK
// wasn't reached.
func selectWithIntentCaps(ranked []model.RankedMemory, topK int, maxShare float64) []model.RankedMemory {
	cap := assistantCap(topK, maxShare)
	selected := make([]model.RankedMemory, 0, topK)
	var deferred []model.RankedMemory
	assistantCount := 0

	for _, r := range ranked {
		if len(selected) >= topK {
			break
		}
		if model.IsAssistantIntent(r.Record.Intent) {
			if assistantCount < cap {
				selected = append(selected, r)
				assistantCount++
			} else {
				deferred = append(deferred, r)
			}
			continue
		}
		selected = append(selected, r)
	}

	for _, r := range deferred {
		if len(selected) >= topK {
			break
		}
		selected = append(selected, r)
	}
	return selected
}
