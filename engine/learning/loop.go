package learning

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memoryengine/engine/model"
)

// Storage is the subset of engine/storage.Manager the learning loop needs.
type Storage interface {
	FetchByIDs(ctx context.Context, tenantID string, ids []string) ([]*model.MemoryRecord, error)
	UpdateOutcome(ctx context.Context, tenantID, memoryID string, outcomeSignal float64) error
}

// Ranker is satisfied by engine/ranker.Ranker.
type Ranker interface {
	LearnFromFeedback(queryEmbedding []float32, candidates []*model.MemoryRecord, helpfulIDs map[string]bool, now time.Time) float64
}

// Result reports the training losses produced by one feedback batch.
type Result struct {
	RankLoss          float64
	AvgImportanceLoss float64
	HasImportanceLoss bool
}

// Loop routes a feedback batch to storage (running outcome average), the
// weight updater (importance + decay), and the ranker (logistic-regression
// step).
type Loop struct {
	Storage Storage
	Ranker  Ranker
	Updater *WeightUpdater
	Logger  *zap.Logger
	Now     func() time.Time
}

// RecordFeedback applies a feedback batch, returning the losses observed.
func (l *Loop) RecordFeedback(ctx context.Context, feedback model.FeedbackBatch) (Result, error) {
	now := l.Now
	if now == nil {
		now = time.Now
	}

	memories, err := l.Storage.FetchByIDs(ctx, feedback.TenantID, feedback.RankedMemoryIDs)
	if err != nil {
		return Result{}, err
	}

	helpful := make(map[string]bool, len(feedback.HelpfulMemoryIDs))
	for _, id := range feedback.HelpfulMemoryIDs {
		helpful[id] = true
	}

	var losses []float64
	for _, m := range memories {
		ageDays := math.Max(now().Sub(m.CreatedAt).Hours()/24, 0)
		signal := -math.Abs(feedback.OutcomeSignal)
		if helpful[m.MemoryID] {
			signal = feedback.OutcomeSignal
		}
		losses = append(losses, l.Updater.Apply(m, signal, ageDays))
		if err := l.Storage.UpdateOutcome(ctx, feedback.TenantID, m.MemoryID, signal); err != nil {
			l.Logger.Warn("failed to persist outcome", zap.String("memory_id", m.MemoryID), zap.Error(err))
		}
	}

	rankLoss := l.Ranker.LearnFromFeedback(feedback.QueryEmbedding, memories, helpful, now())

	result := Result{RankLoss: rankLoss}
	if len(losses) > 0 {
		var sum float64
		for _, v := range losses {
			sum += v
		}
		result.AvgImportanceLoss = sum / float64(len(losses))
		result.HasImportanceLoss = true
	}

	l.Logger.Info("learning_feedback_applied",
		zap.Float64("rank_loss", result.RankLoss),
		zap.Float64("avg_importance_loss", result.AvgImportanceLoss),
		zap.Int("memory_count", len(memories)),
	)
	return result, nil
}
