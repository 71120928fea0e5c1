// Package centroid holds the per-class mean embeddings used to find visually similar dishes.
package centroid

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hyperjump/ajimi/internal/vector"
	"gonum.org/v1/gonum/floats"
)

// DegenerateThreshold is the mean magnitude below which a class centroid is stored as a zero vector.
const DegenerateThreshold = 1e-6

// ErrNotFound is returned when the centroid artifact is absent or unreadable.
var ErrNotFound = errors.New("centroid: store not found")

// Centroid is the unit-normalized mean embedding of one class.
// A degenerate centroid has a zero Mean and no defined similarity to other classes.
type Centroid struct {
	ClassLabel string
	Mean       []float32
	Degenerate bool
}

// Store is an immutable set of centroids keyed by class label.
type Store struct {
	dimension int
	byLabel   map[string]Centroid
	labels    []string
}

// Build averages every entry's embedding per class and renormalizes the result.
func Build(entries []vector.Entry) (*Store, error) {
	if len(entries) == 0 {
		return nil, vector.ErrEmptyInput
	}
	dim := len(entries[0].Embedding)
	sums := make(map[string][]float64)
	counts := make(map[string]int)
	row := make([]float64, dim)
	for i, e := range entries {
		if len(e.Embedding) != dim {
			return nil, fmt.Errorf("%w: entry %d has %d, expected %d", vector.ErrDimensionMismatch, i, len(e.Embedding), dim)
		}
		sum, ok := sums[e.ClassLabel]
		if !ok {
			sum = make([]float64, dim)
			sums[e.ClassLabel] = sum
		}
		for j, v := range e.Embedding {
			row[j] = float64(v)
		}
		floats.Add(sum, row)
		counts[e.ClassLabel]++
	}

	centroids := make([]Centroid, 0, len(sums))
	for label, sum := range sums {
		floats.Scale(1/float64(counts[label]), sum)
		centroids = append(centroids, newCentroid(label, sum))
	}
	return newStore(dim, centroids), nil
}

func newCentroid(label string, mean []float64) Centroid {
	c := Centroid{ClassLabel: label, Mean: make([]float32, len(mean))}
	norm := floats.Norm(mean, 2)
	if norm < DegenerateThreshold {
		c.Degenerate = true
		return c
	}
	for i, v := range mean {
		c.Mean[i] = float32(v / norm)
	}
	return c
}

func newStore(dim int, centroids []Centroid) *Store {
	s := &Store{dimension: dim, byLabel: make(map[string]Centroid, len(centroids))}
	for _, c := range centroids {
		s.byLabel[c.ClassLabel] = c
		s.labels = append(s.labels, c.ClassLabel)
	}
	sort.Strings(s.labels)
	return s
}

// Get returns the centroid for label.
func (s *Store) Get(label string) (Centroid, bool) {
	if s == nil {
		return Centroid{}, false
	}
	c, ok := s.byLabel[label]
	return c, ok
}

// Labels returns every class label in ascending order.
func (s *Store) Labels() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.labels))
	copy(out, s.labels)
	return out
}

// Len returns the number of classes.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.labels)
}

// Dimension returns the embedding dimension.
func (s *Store) Dimension() int {
	if s == nil {
		return 0
	}
	return s.dimension
}
