package indexer

import (
	"context"
	"fmt"
	"runtime"

	"github.com/hyperjump/ajimi/internal/centroid"
	"github.com/hyperjump/ajimi/internal/embedding"
	"github.com/hyperjump/ajimi/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultSplits are the splits indexed for serving; the test split is held out for evaluation.
var DefaultSplits = []string{SplitTrain, SplitVal}

// Builder encodes manifest rows and writes the index and centroid artifacts.
type Builder struct {
	encoder    embedding.Encoder
	splits     []string
	workers    int
	vectorOpts []vector.BuildOption
	logger     *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets a logger for build progress.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithSplits sets which splits are indexed.
func WithSplits(splits []string) BuilderOption {
	return func(b *Builder) {
		if len(splits) > 0 {
			b.splits = splits
		}
	}
}

// WithWorkers sets how many images are encoded concurrently.
func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithVectorOptions passes options through to vector.Build.
func WithVectorOptions(opts ...vector.BuildOption) BuilderOption {
	return func(b *Builder) { b.vectorOpts = append(b.vectorOpts, opts...) }
}

// NewBuilder creates a Builder that encodes images with enc.
func NewBuilder(enc embedding.Encoder, opts ...BuilderOption) *Builder {
	b := &Builder{
		encoder: enc,
		splits:  DefaultSplits,
		workers: runtime.GOMAXPROCS(0),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildStats summarizes an index build.
type BuildStats struct {
	Selected int
	Indexed  int
	Skipped  int
	Classes  int
}

// BuildIndex encodes the rows of the configured splits and builds an index over them, in
// manifest order. Images that cannot be read or encoded are logged and skipped.
func (b *Builder) BuildIndex(ctx context.Context, rows []Row) (vector.Index, BuildStats, error) {
	selected := FilterSplits(rows, b.splits)
	stats := BuildStats{Selected: len(selected)}
	if len(selected) == 0 {
		return nil, stats, fmt.Errorf("no images in splits %v: %w", b.splits, vector.ErrEmptyInput)
	}
	b.logger.Info("encoding images", zap.Int("images", len(selected)), zap.Strings("splits", b.splits))

	embeddings := make([][]float32, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, row := range selected {
		i, row := i, row
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			emb, err := embedding.EncodeFile(gctx, b.encoder, row.ImagePath)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				b.logger.Warn("skipping image", zap.String("path", row.ImagePath), zap.Error(err))
				return nil
			}
			embeddings[i] = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	entries := make([]vector.Entry, 0, len(selected))
	for i, row := range selected {
		if embeddings[i] == nil {
			stats.Skipped++
			continue
		}
		entries = append(entries, vector.Entry{
			Embedding:  embeddings[i],
			ClassLabel: row.FoodName,
			SourceRef:  row.ImagePath,
			Partition:  row.Split,
		})
	}
	stats.Indexed = len(entries)
	if len(entries) == 0 {
		return nil, stats, fmt.Errorf("no image could be encoded: %w", vector.ErrEmptyInput)
	}

	opts := append([]vector.BuildOption{vector.WithLogger(b.logger)}, b.vectorOpts...)
	idx, err := vector.Build(entries, opts...)
	if err != nil {
		return nil, stats, err
	}
	classes := make(map[string]bool)
	for _, e := range entries {
		classes[e.ClassLabel] = true
	}
	stats.Classes = len(classes)
	b.logger.Info("index built",
		zap.String("backend", string(idx.Backend())),
		zap.Int("indexed", stats.Indexed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("classes", stats.Classes))
	return idx, stats, nil
}

// BuildAndSaveIndex builds the index and saves it to dir.
func (b *Builder) BuildAndSaveIndex(ctx context.Context, rows []Row, dir string) (vector.Index, BuildStats, error) {
	idx, stats, err := b.BuildIndex(ctx, rows)
	if err != nil {
		return nil, stats, err
	}
	if err := idx.Save(dir); err != nil {
		_ = idx.Close()
		return nil, stats, fmt.Errorf("failed to save index: %w", err)
	}
	b.logger.Info("index saved", zap.String("path", dir))
	return idx, stats, nil
}

// BuildCentroids computes per-class centroids from idx and saves them to path.
func (b *Builder) BuildCentroids(idx vector.Index, path string) (*centroid.Store, error) {
	store, err := centroid.Build(idx.Entries())
	if err != nil {
		return nil, fmt.Errorf("failed to compute centroids: %w", err)
	}
	degenerate := 0
	for _, label := range store.Labels() {
		if c, _ := store.Get(label); c.Degenerate {
			degenerate++
			b.logger.Warn("degenerate class centroid", zap.String("class", label))
		}
	}
	if err := store.Save(path); err != nil {
		return nil, err
	}
	b.logger.Info("centroids saved", zap.String("path", path), zap.Int("classes", store.Len()), zap.Int("degenerate", degenerate))
	return store, nil
}
