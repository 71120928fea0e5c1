// Package session keeps per-session dish feedback and applies it to a prediction ranking.
package session

import (
	"fmt"
	"sort"
)

// Action is a feedback action recorded against a class label.
type Action string

const (
	ActionLike    Action = "like"
	ActionDislike Action = "dislike"
	// ActionCorrect records the user's chosen dish after a wrong prediction. It counts as a like.
	ActionCorrect Action = "correct"
	// ActionReset clears all feedback.
	ActionReset Action = "reset"
)

// ParseAction validates a feedback action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionLike, ActionDislike, ActionCorrect, ActionReset:
		return a, nil
	default:
		return "", fmt.Errorf("unknown feedback action: %q", s)
	}
}

// Feedback is the liked and disliked class labels of one session.
// Like and Dislike keep the two sets disjoint.
type Feedback struct {
	Liked    map[string]struct{}
	Disliked map[string]struct{}
}

// NewFeedback returns empty feedback.
func NewFeedback() Feedback {
	return Feedback{Liked: map[string]struct{}{}, Disliked: map[string]struct{}{}}
}

// Like marks label as liked and clears any dislike of it.
func (f *Feedback) Like(label string) {
	f.ensure()
	f.Liked[label] = struct{}{}
	delete(f.Disliked, label)
}

// Dislike marks label as disliked and clears any like of it.
func (f *Feedback) Dislike(label string) {
	f.ensure()
	f.Disliked[label] = struct{}{}
	delete(f.Liked, label)
}

// Correct records label as the right answer for the last prediction.
func (f *Feedback) Correct(label string) {
	f.Like(label)
}

// Reset clears both sets.
func (f *Feedback) Reset() {
	f.Liked = map[string]struct{}{}
	f.Disliked = map[string]struct{}{}
}

// Apply performs action on label.
func (f *Feedback) Apply(action Action, label string) error {
	if action != ActionReset && label == "" {
		return fmt.Errorf("feedback action %s needs a class label", action)
	}
	switch action {
	case ActionLike:
		f.Like(label)
	case ActionDislike:
		f.Dislike(label)
	case ActionCorrect:
		f.Correct(label)
	case ActionReset:
		f.Reset()
	default:
		return fmt.Errorf("unknown feedback action: %q", action)
	}
	return nil
}

// Clone returns an independent copy.
func (f Feedback) Clone() Feedback {
	c := NewFeedback()
	for k := range f.Liked {
		c.Liked[k] = struct{}{}
	}
	for k := range f.Disliked {
		c.Disliked[k] = struct{}{}
	}
	return c
}

// Personalized reports whether any feedback has been recorded.
func (f Feedback) Personalized() bool {
	return len(f.Liked) > 0 || len(f.Disliked) > 0
}

// IsLiked reports whether label is liked.
func (f Feedback) IsLiked(label string) bool {
	_, ok := f.Liked[label]
	return ok
}

// IsDisliked reports whether label is disliked.
func (f Feedback) IsDisliked(label string) bool {
	_, ok := f.Disliked[label]
	return ok
}

// LikedLabels returns the liked labels sorted.
func (f Feedback) LikedLabels() []string {
	return sortedKeys(f.Liked)
}

// DislikedLabels returns the disliked labels sorted.
func (f Feedback) DislikedLabels() []string {
	return sortedKeys(f.Disliked)
}

func (f *Feedback) ensure() {
	if f.Liked == nil {
		f.Liked = map[string]struct{}{}
	}
	if f.Disliked == nil {
		f.Disliked = map[string]struct{}{}
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
