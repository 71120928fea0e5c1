package session

import (
	"sort"

	"github.com/hyperjump/ajimi/internal/predict"
)

// DefaultBias is the score added for a liked class and subtracted for a disliked one.
const DefaultBias = 0.15

// RankedClass is a class after feedback has been applied. OriginalScore is the score before bias.
type RankedClass struct {
	ClassLabel    string  `json:"class_label"`
	OriginalScore float64 `json:"original_score"`
	Score         float64 `json:"score"`
	OriginalRank  int     `json:"original_rank"`
	Liked         bool    `json:"liked,omitempty"`
	Disliked      bool    `json:"disliked,omitempty"`
}

// ReRank applies fb to ranked. With no feedback the order and scores are unchanged.
// Otherwise liked classes gain bias and disliked classes lose it (a label in both sets is
// treated as liked), then classes are re-sorted by adjusted score keeping the original order
// for ties. The inputs are not modified.
func ReRank(ranked []predict.ClassScore, fb Feedback, bias float64) []RankedClass {
	out := make([]RankedClass, len(ranked))
	personalized := fb.Personalized()
	for i, c := range ranked {
		rc := RankedClass{ClassLabel: c.ClassLabel, OriginalScore: c.Score, Score: c.Score, OriginalRank: i}
		if personalized {
			switch {
			case fb.IsLiked(c.ClassLabel):
				rc.Score += bias
				rc.Liked = true
			case fb.IsDisliked(c.ClassLabel):
				rc.Score -= bias
				rc.Disliked = true
			}
		}
		out[i] = rc
	}
	if !personalized {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
