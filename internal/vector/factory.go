package vector

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// unitTolerance is how far a vector norm may drift from 1. Build warns past it; Search rejects.
const unitTolerance = 1e-3

type buildConfig struct {
	backend       Backend
	partitionSize int
	logger        *zap.Logger
}

// BuildOption configures Build and Load.
type BuildOption func(*buildConfig)

// WithBackend forces a backend instead of selecting one at runtime.
func WithBackend(b Backend) BuildOption {
	return func(c *buildConfig) { c.backend = b }
}

// WithPartitionSize sets how many entries one goroutine scans in a brute-force search.
func WithPartitionSize(n int) BuildOption {
	return func(c *buildConfig) { c.partitionSize = n }
}

// WithLogger sets a logger for build and load events.
func WithLogger(l *zap.Logger) BuildOption {
	return func(c *buildConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func newBuildConfig(opts []BuildOption) *buildConfig {
	c := &buildConfig{partitionSize: DefaultPartitionSize, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParseBackend maps a config value to a Backend. Empty and "auto" mean runtime selection.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "", "auto":
		return "", nil
	case string(BackendExactFlat), "faiss":
		return BackendExactFlat, nil
	case string(BackendBruteForce), "memory":
		return BackendBruteForce, nil
	default:
		return "", fmt.Errorf("unknown index backend: %s (supported: auto, exact_flat, brute_force)", s)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
// This is determined by the build tag -tags=faiss.
func IsFAISSAvailable() bool {
	return faissAvailable()
}

// SelectBackend returns ExactFlat when FAISS is available, else BruteForce.
func SelectBackend() Backend {
	if IsFAISSAvailable() {
		return BackendExactFlat
	}
	return BackendBruteForce
}

// Build creates an index over entries. Entries are copied; the caller may reuse its slices.
func Build(entries []Entry, opts ...BuildOption) (Index, error) {
	cfg := newBuildConfig(opts)
	if len(entries) == 0 {
		return nil, ErrEmptyInput
	}
	dim := len(entries[0].Embedding)
	if dim == 0 {
		return nil, fmt.Errorf("%w: entry 0 has an empty embedding", ErrDimensionMismatch)
	}
	owned := make([]Entry, len(entries))
	drifted := 0
	for i, e := range entries {
		if len(e.Embedding) != dim {
			return nil, fmt.Errorf("%w: entry %d has %d, expected %d", ErrDimensionMismatch, i, len(e.Embedding), dim)
		}
		if math.Abs(L2Norm(e.Embedding)-1) > unitTolerance {
			drifted++
		}
		vec := make([]float32, dim)
		copy(vec, e.Embedding)
		owned[i] = Entry{Embedding: vec, ClassLabel: e.ClassLabel, SourceRef: e.SourceRef, Partition: e.Partition}
	}
	if drifted > 0 {
		cfg.logger.Warn("index entries are not unit-normalized; similarities are not cosine",
			zap.Int("count", drifted))
	}
	return newIndex(owned, dim, cfg)
}

func newIndex(entries []Entry, dim int, cfg *buildConfig) (Index, error) {
	bf := newBruteForceIndex(dim, entries, cfg.partitionSize)
	backend := cfg.backend
	if backend == "" {
		backend = SelectBackend()
	}
	switch backend {
	case BackendBruteForce:
		cfg.logger.Info("built brute-force index", zap.Int("entries", len(entries)), zap.Int("dimensions", dim))
		return bf, nil
	case BackendExactFlat:
		idx, err := newFlatIndex(bf)
		if err != nil {
			return nil, err
		}
		cfg.logger.Info("built FAISS flat index", zap.Int("entries", len(entries)), zap.Int("dimensions", dim))
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index backend: %s", backend)
	}
}
