package storage

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/BaSui01/memoryengine/engine/encoding"
	"github.com/BaSui01/memoryengine/engine/model"
	"github.com/BaSui01/memoryengine/engine/vector"
)

// topKBySimilarity ranks memories by cosine similarity to queryEmbedding
// and returns the closest topK.
func topKBySimilarity(records []*model.MemoryRecord, queryEmbedding []float32, topK int) []*model.MemoryRecord {
	type scored struct {
		record *model.MemoryRecord
		score  float64
	}
	scoredList := make([]scored, 0, len(records))
	for _, r := range records {
		scoredList = append(scoredList, scored{r, encoding.CosineSimilarity(queryEmbedding, r.SemanticEmbedding)})
	}
	sort.SliceStable(scoredList, func(i, j int) bool { return scoredList[i].score > scoredList[j].score })
	if topK > 0 && len(scoredList) > topK {
		scoredList = scoredList[:topK]
	}
	out := make([]*model.MemoryRecord, len(scoredList))
	for i, s := range scoredList {
		out[i] = s.record
	}
	return out
}

func normalizeTenant(tenantID string) string {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "default"
	}
	return tenantID
}

func encodeStrings(values []string) string {
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func toRow(m *model.MemoryRecord) Row {
	return Row{
		MemoryID:          m.MemoryID,
		TenantID:          m.TenantID,
		EventID:           m.EventID,
		Content:           m.Content,
		Summary:           m.Summary,
		Intent:            m.Intent,
		EntitiesJSON:      encodeStrings(m.Entities),
		RelationshipsJSON: encodeStrings(m.Relationships),
		RawEmbedding:      vector.EncodeVector(m.RawEmbedding),
		SemanticEmbedding: vector.EncodeVector(m.SemanticEmbedding),
		SemanticKey:       m.SemanticKey,
		RetrievalCount:    m.RetrievalCount,
		AvgOutcomeSignal:  m.AvgOutcomeSignal,
		OutcomeCount:      m.OutcomeCount,
		StorageTier:       string(m.StorageTier),
		LatestImportance:  m.LatestImportance,
		IsCompressed:      m.IsCompressed,
		OriginalCount:     m.OriginalCount,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func fromRow(r Row) *model.MemoryRecord {
	raw, err := vector.DecodeVector(r.RawEmbedding)
	if err != nil {
		raw = nil
	}
	semantic, err := vector.DecodeVector(r.SemanticEmbedding)
	if err != nil {
		semantic = nil
	}
	if len(raw) == 0 && len(semantic) > 0 {
		raw = semantic
	}
	return &model.MemoryRecord{
		MemoryID:          r.MemoryID,
		TenantID:          r.TenantID,
		EventID:           r.EventID,
		Content:           r.Content,
		Summary:           r.Summary,
		Intent:            r.Intent,
		Entities:          decodeStrings(r.EntitiesJSON),
		Relationships:     decodeStrings(r.RelationshipsJSON),
		RawEmbedding:      raw,
		SemanticEmbedding: semantic,
		SemanticKey:       r.SemanticKey,
		RetrievalCount:    r.RetrievalCount,
		AvgOutcomeSignal:  r.AvgOutcomeSignal,
		OutcomeCount:      r.OutcomeCount,
		StorageTier:       model.StorageTier(r.StorageTier),
		LatestImportance:  r.LatestImportance,
		IsCompressed:      r.IsCompressed,
		OriginalCount:     r.OriginalCount,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

var sentenceBoundaryRe = regexp.MustCompile(`(?:[.!?]\s+|\n+)`)

// truncateContent applies assistant-content compaction (deduping repeated
// sentences) before truncating to the intent-appropriate character limit.
func truncateContent(content, intent string, maxChars, assistantMaxChars int) string {
	limit := maxChars
	if model.IsAssistantIntent(intent) {
		content = compactAssistantContent(content)
		limit = assistantMaxChars
	}
	if len(content) <= limit {
		return content
	}
	if limit <= 64 {
		return content[:limit]
	}
	omitted := len(content) - (limit - 3)
	truncated := strings.TrimRight(content[:limit-3], " ")
	return truncated + "\n\n...[truncated " + itoa(omitted) + " chars for storage efficiency]"
}

// compactAssistantContent removes repeated sentence-level segments from
// assistant output (a common artifact of retried tool calls), only when
// doing so saves enough space to be worth the marker it appends.
func compactAssistantContent(content string) string {
	sentences := sentenceBoundaryRe.Split(content, -1)
	seen := make(map[string]struct{}, len(sentences))
	kept := make([]string, 0, len(sentences))
	duplicateCount := 0
	for _, s := range sentences {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			duplicateCount++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, s)
	}
	compacted := strings.Join(kept, ". ")
	removedChars := len(content) - len(compacted)
	if removedChars >= 80 || duplicateCount >= 2 {
		return compacted + " [assistant content compacted: removed " + itoa(duplicateCount) + " repeated segments]"
	}
	return content
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
