package decision

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/memoryengine/engine/model"
)

// CompressionPlan describes whether a cluster of similar recent memories
// should be replaced by a single compressed summary memory.
type CompressionPlan struct {
	ShouldCompress     bool
	MemoryIDsToReplace []string
	SummaryText        string
	OriginalCount      int
}

// Planner decides whether a run of similar recent memories for the same
// entity/intent pair has grown large enough to collapse into one summary.
type Planner struct {
	MinCount        int
	WindowDays      int
	MaxSummaryItems int
}

// NewPlanner returns a Planner with the given thresholds.
func NewPlanner(minCount, windowDays, maxSummaryItems int) *Planner {
	if minCount < 1 {
		minCount = 5
	}
	if windowDays < 1 {
		windowDays = 7
	}
	if maxSummaryItems < 1 {
		maxSummaryItems = 20
	}
	return &Planner{MinCount: minCount, WindowDays: windowDays, MaxSummaryItems: maxSummaryItems}
}

// Plan evaluates a candidate cluster. All supplied memories (not just the
// ones summarized) are marked for replacement when compression triggers.
func (p *Planner) Plan(processed model.ProcessedEvent, similarRecent []*model.MemoryRecord) CompressionPlan {
	if len(similarRecent) < p.MinCount {
		return CompressionPlan{}
	}

	selected := similarRecent
	if len(selected) > p.MaxSummaryItems {
		selected = selected[:p.MaxSummaryItems]
	}

	snippets := make([]string, 0, len(selected))
	for _, m := range selected {
		snippets = append(snippets, m.Summary)
	}

	summary := fmt.Sprintf(
		"Compressed memory for entity=%s, event_type=%s. Observed %d events in %d days: %s",
		processed.EntityID, processed.EventType, len(similarRecent), p.WindowDays, strings.Join(snippets, " | "),
	)

	ids := make([]string, 0, len(similarRecent))
	for _, m := range similarRecent {
		ids = append(ids, m.MemoryID)
	}

	return CompressionPlan{
		ShouldCompress:     true,
		MemoryIDsToReplace: ids,
		SummaryText:        summary,
		OriginalCount:      len(similarRecent),
	}
}

// SinceTime returns the earliest timestamp that still falls inside the
// compression window, relative to now.
func (p *Planner) SinceTime(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.WindowDays)
}
