package vector

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultPartitionSize is the number of entries one goroutine scans during a brute-force search.
const DefaultPartitionSize = 4096

// BruteForceIndex scores the query against every entry. Catalogs larger than one partition
// are scanned in parallel and the per-partition results merged with the same ordering rule.
type BruteForceIndex struct {
	dimensions    int
	entries       []Entry
	partitionSize int
}

func newBruteForceIndex(dimensions int, entries []Entry, partitionSize int) *BruteForceIndex {
	if partitionSize <= 0 {
		partitionSize = DefaultPartitionSize
	}
	return &BruteForceIndex{
		dimensions:    dimensions,
		entries:       entries,
		partitionSize: partitionSize,
	}
}

// Search returns the top-k entries by inner product (assumes normalized vectors = cosine similarity).
func (m *BruteForceIndex) Search(ctx context.Context, query []float32, k int) ([]NeighborHit, error) {
	top, err := m.searchScored(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return m.hits(top), nil
}

func (m *BruteForceIndex) searchScored(ctx context.Context, query []float32, k int) ([]scored, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if err := checkQuery(query, m.dimensions); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(m.entries)
	if k > n {
		k = n
	}
	if n <= m.partitionSize {
		return m.scan(query, 0, n, k), nil
	}

	parts := (n + m.partitionSize - 1) / m.partitionSize
	partials := make([][]scored, parts)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for p := 0; p < parts; p++ {
		p := p
		lo := p * m.partitionSize
		hi := min(lo+m.partitionSize, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			partials[p] = m.scan(query, lo, hi, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeTopK(partials, k), nil
}

// scan scores entries [lo, hi) and keeps the best k.
func (m *BruteForceIndex) scan(query []float32, lo, hi, k int) []scored {
	scores := make([]scored, 0, hi-lo)
	for i := lo; i < hi; i++ {
		scores = append(scores, scored{pos: i, score: InnerProduct(query, m.entries[i].Embedding)})
	}
	sortScored(scores)
	if k < len(scores) {
		scores = scores[:k]
	}
	return scores
}

// rescore computes exact scores for the given positions, ignoring invalid ones.
func (m *BruteForceIndex) rescore(query []float32, positions []int64) []scored {
	out := make([]scored, 0, len(positions))
	seen := make(map[int64]bool, len(positions))
	for _, p := range positions {
		if p < 0 || int(p) >= len(m.entries) || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, scored{pos: int(p), score: InnerProduct(query, m.entries[p].Embedding)})
	}
	sortScored(out)
	return out
}

func (m *BruteForceIndex) hits(top []scored) []NeighborHit {
	result := make([]NeighborHit, len(top))
	for i, s := range top {
		result[i] = NeighborHit{Position: s.pos, Similarity: s.score, Entry: m.entries[s.pos]}
	}
	return result
}

// Save persists the index to dir.
func (m *BruteForceIndex) Save(dir string) error {
	return saveArtifact(dir, m, BackendBruteForce, nil)
}

// Backend returns BackendBruteForce.
func (m *BruteForceIndex) Backend() Backend {
	return BackendBruteForce
}

// Dimension returns the embedding dimension.
func (m *BruteForceIndex) Dimension() int {
	return m.dimensions
}

// Len returns the number of entries in the index.
func (m *BruteForceIndex) Len() int {
	return len(m.entries)
}

// Entry returns the entry at pos.
func (m *BruteForceIndex) Entry(pos int) (Entry, bool) {
	if pos < 0 || pos >= len(m.entries) {
		return Entry{}, false
	}
	return m.entries[pos], true
}

// Entries returns all entries in position order.
func (m *BruteForceIndex) Entries() []Entry {
	return m.entries
}

// Close is a no-op for BruteForceIndex.
func (m *BruteForceIndex) Close() error {
	return nil
}
