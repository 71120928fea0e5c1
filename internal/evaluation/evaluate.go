package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/ajimi/internal/embedding"
	"github.com/hyperjump/ajimi/internal/indexer"
	"github.com/hyperjump/ajimi/internal/recommender"
	"github.com/hyperjump/ajimi/internal/session"
	"go.uber.org/zap"
)

// Metrics are the summary numbers of an evaluation run.
type Metrics struct {
	Top1Accuracy float64 `json:"top1_accuracy"`
	TopKHitRate  float64 `json:"topk_hit_rate"`
	MRR          float64 `json:"mrr"`
}

// Detail is the outcome for one image.
type Detail struct {
	ImagePath      string   `json:"image_path"`
	TrueLabel      string   `json:"true_label"`
	PredictedLabel string   `json:"predicted_label"`
	Correct        bool     `json:"correct"`
	Confidence     float64  `json:"confidence"`
	TopK           []string `json:"top_k"`
}

// Report is a complete evaluation result.
type Report struct {
	Split     string    `json:"split"`
	Images    int       `json:"images"`
	Failed    int       `json:"failed"`
	Metrics   Metrics   `json:"metrics"`
	Details   []Detail  `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Predictor is the part of the recommender evaluation needs.
type Predictor interface {
	PredictImage(ctx context.Context, img image.Image, fb session.Feedback) (*recommender.Prediction, error)
}

// Evaluate predicts every image of the test split, or of the val split when the manifest
// has no test images, and scores the results. Images that fail to load or predict are
// logged and left out of the metrics.
func Evaluate(ctx context.Context, p Predictor, rows []indexer.Row, logger *zap.Logger) (*Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	split := indexer.SplitTest
	selected := indexer.FilterSplits(rows, []string{split})
	if len(selected) == 0 {
		logger.Warn("no test images in manifest; evaluating on val")
		split = indexer.SplitVal
		selected = indexer.FilterSplits(rows, []string{split})
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no test or val images to evaluate")
	}
	logger.Info("evaluating", zap.String("split", split), zap.Int("images", len(selected)))

	report := &Report{Split: split, CreatedAt: time.Now().UTC()}
	var (
		truth []string
		top1  []string
		topK  [][]string
	)
	fb := session.NewFeedback()
	for _, row := range selected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := embedding.LoadImage(row.ImagePath)
		if err != nil {
			logger.Warn("skipping image", zap.String("path", row.ImagePath), zap.Error(err))
			report.Failed++
			continue
		}
		pred, err := p.PredictImage(ctx, img, fb)
		if err != nil {
			logger.Warn("prediction failed", zap.String("path", row.ImagePath), zap.Error(err))
			report.Failed++
			continue
		}
		ranked := make([]string, len(pred.RankedClasses))
		for i, c := range pred.RankedClasses {
			ranked[i] = c.ClassLabel
		}
		truth = append(truth, row.FoodName)
		top1 = append(top1, pred.TopClass)
		topK = append(topK, ranked)
		report.Details = append(report.Details, Detail{
			ImagePath:      row.ImagePath,
			TrueLabel:      row.FoodName,
			PredictedLabel: pred.TopClass,
			Correct:        pred.TopClass == row.FoodName,
			Confidence:     pred.Confidence,
			TopK:           ranked,
		})
	}
	report.Images = len(truth)
	report.Metrics = Metrics{
		Top1Accuracy: Top1Accuracy(top1, truth),
		TopKHitRate:  HitRate(topK, truth),
		MRR:          MRR(topK, truth),
	}
	logger.Info("evaluation finished",
		zap.Int("images", report.Images),
		zap.Int("failed", report.Failed),
		zap.Float64("top1", report.Metrics.Top1Accuracy),
		zap.Float64("hit_rate", report.Metrics.TopKHitRate),
		zap.Float64("mrr", report.Metrics.MRR))
	return report, nil
}

// WriteJSON writes the report to path, creating parent directories.
func (r *Report) WriteJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
