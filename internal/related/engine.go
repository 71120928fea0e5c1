package related

import (
	"sort"

	"github.com/hyperjump/ajimi/internal/centroid"
	"github.com/hyperjump/ajimi/internal/vector"
)

// Default result sizes.
const (
	DefaultSimilarK = 3
	DefaultGroupK   = 5
)

// Engine answers related-dish queries. A nil centroid store disables SimilarClasses only.
type Engine struct {
	groups    *GroupMap
	centroids *centroid.Store
}

// NewEngine creates an Engine. Either argument may be nil.
func NewEngine(groups *GroupMap, centroids *centroid.Store) *Engine {
	return &Engine{groups: groups, centroids: centroids}
}

// HasCentroids reports whether visual similarity is available.
func (e *Engine) HasCentroids() bool {
	return e.centroids != nil && e.centroids.Len() > 0
}

// SimilarClasses returns up to k classes whose centroids are closest to label's, by
// descending cosine similarity, ties by label. It returns nothing when centroids are not
// loaded or label is unknown or degenerate. Degenerate centroids are never returned.
func (e *Engine) SimilarClasses(label string, k int) []string {
	if k <= 0 || !e.HasCentroids() {
		return []string{}
	}
	query, ok := e.centroids.Get(label)
	if !ok || query.Degenerate {
		return []string{}
	}

	type candidate struct {
		label string
		sim   float64
	}
	var candidates []candidate
	for _, other := range e.centroids.Labels() {
		if other == label {
			continue
		}
		c, _ := e.centroids.Get(other)
		if c.Degenerate {
			continue
		}
		candidates = append(candidates, candidate{label: other, sim: vector.InnerProduct(query.Mean, c.Mean)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].label < candidates[j].label
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.label
	}
	return out
}

// GroupMembers returns up to k other members of label's group in table order.
func (e *Engine) GroupMembers(label string, k int) []string {
	out := []string{}
	if k <= 0 {
		return out
	}
	name, ok := e.groups.Group(label)
	if !ok {
		return out
	}
	for _, m := range e.groups.Members(name) {
		if m == label {
			continue
		}
		out = append(out, m)
		if len(out) == k {
			break
		}
	}
	return out
}

// GroupName returns label's group, or Unclassified.
func (e *Engine) GroupName(label string) string {
	if name, ok := e.groups.Group(label); ok {
		return name
	}
	return Unclassified
}
