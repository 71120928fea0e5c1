// Package vector provides the reference-image index: exact nearest-neighbour search by
// inner product over unit-normalized embeddings, with a FAISS backend and a brute-force backend.
package vector

import (
	"context"
	"errors"
)

// Backend identifies which search implementation serves an Index.
type Backend string

const (
	// BackendExactFlat uses a FAISS IndexFlatIP. Requires cgo and -tags=faiss.
	BackendExactFlat Backend = "exact_flat"
	// BackendBruteForce scans every entry in Go.
	BackendBruteForce Backend = "brute_force"
)

var (
	// ErrEmptyInput is returned when an index is built from no entries.
	ErrEmptyInput = errors.New("vector: no entries to index")
	// ErrDimensionMismatch is returned when vectors or a query disagree on dimension.
	ErrDimensionMismatch = errors.New("vector: dimension mismatch")
	// ErrIndexNotFound is returned when a persisted index is absent or structurally invalid.
	ErrIndexNotFound = errors.New("vector: index not found")
	// ErrInvalidK is returned when a search asks for fewer than one neighbour.
	ErrInvalidK = errors.New("vector: k must be positive")
	// ErrBackendUnavailable is returned when ExactFlat is requested but FAISS is not compiled in.
	ErrBackendUnavailable = errors.New("vector: backend unavailable")
	// ErrNotNormalized is returned for a query whose L2 norm is not 1 within tolerance.
	ErrNotNormalized = errors.New("vector: query is not unit-normalized")
)

// Entry is one reference image: its embedding plus the metadata joined back on search.
type Entry struct {
	Embedding  []float32
	ClassLabel string
	SourceRef  string
	Partition  string
}

// NeighborHit is a single search result. Position is the entry's index in build order.
type NeighborHit struct {
	Position   int
	Similarity float64
	Entry      Entry
}

// Index is an immutable, build-once collection of entries answering k-NN queries.
// All methods are safe for concurrent use.
type Index interface {
	// Search returns at most k hits, descending by similarity, ties by ascending position.
	Search(ctx context.Context, query []float32, k int) ([]NeighborHit, error)
	// Save persists the index as an artifact directory, replacing any previous one.
	Save(dir string) error
	Backend() Backend
	Dimension() int
	Len() int
	// Entry returns the entry at pos.
	Entry(pos int) (Entry, bool)
	// Entries returns all entries in position order. Callers must not modify them.
	Entries() []Entry
	Close() error
}
