// Package predict turns nearest-neighbour hits into a class-level prediction.
package predict

import (
	"errors"
	"sort"

	"github.com/hyperjump/ajimi/internal/vector"
)

// DefaultUncertaintyThreshold is the confidence below which a prediction is flagged uncertain.
const DefaultUncertaintyThreshold = 0.6

// ErrEmptyNeighborSet means no prediction is possible. It is distinct from a low-confidence result.
var ErrEmptyNeighborSet = errors.New("predict: empty neighbor set")

// Options configures Aggregate. The zero value flags nothing as uncertain.
type Options struct {
	UncertaintyThreshold float64
}

// DefaultOptions returns Options with DefaultUncertaintyThreshold.
func DefaultOptions() Options {
	return Options{UncertaintyThreshold: DefaultUncertaintyThreshold}
}

// ClassScore is one class in a prediction.
// Score is AggregateScore divided by the number of neighbours; it is a display score, not a probability.
type ClassScore struct {
	ClassLabel     string  `json:"class_label"`
	AggregateScore float64 `json:"aggregate_score"`
	Score          float64 `json:"score"`
	Votes          int     `json:"votes"`
}

// Result is a class-level prediction.
type Result struct {
	TopClass      string               `json:"top_class"`
	Confidence    float64              `json:"confidence"`
	IsUncertain   bool                 `json:"is_uncertain"`
	RankedClasses []ClassScore         `json:"ranked_classes"`
	RawNeighbors  []vector.NeighborHit `json:"-"`
}

// Aggregate sums neighbour similarities per class and ranks classes by that sum, ties by
// the class's first appearance among hits. Confidence is the rank-1 hit's similarity.
func Aggregate(hits []vector.NeighborHit, opts Options) (*Result, error) {
	if len(hits) == 0 {
		return nil, ErrEmptyNeighborSet
	}

	order := make(map[string]int)
	var classes []ClassScore
	for _, h := range hits {
		i, ok := order[h.Entry.ClassLabel]
		if !ok {
			i = len(classes)
			order[h.Entry.ClassLabel] = i
			classes = append(classes, ClassScore{ClassLabel: h.Entry.ClassLabel})
		}
		classes[i].AggregateScore += h.Similarity
		classes[i].Votes++
	}
	// classes is in first-appearance order, so a stable sort keeps that as the tie-break.
	sort.SliceStable(classes, func(i, j int) bool {
		return classes[i].AggregateScore > classes[j].AggregateScore
	})
	k := float64(len(hits))
	for i := range classes {
		classes[i].Score = classes[i].AggregateScore / k
	}

	raw := make([]vector.NeighborHit, len(hits))
	copy(raw, hits)
	confidence := hits[0].Similarity
	return &Result{
		TopClass:      classes[0].ClassLabel,
		Confidence:    confidence,
		IsUncertain:   confidence < opts.UncertaintyThreshold,
		RankedClasses: classes,
		RawNeighbors:  raw,
	}, nil
}
