package main

import (
	"fmt"

	"github.com/hyperjump/ajimi/internal/config"
	"github.com/hyperjump/ajimi/internal/embedding"
	"github.com/hyperjump/ajimi/internal/recipe"
	"github.com/hyperjump/ajimi/internal/recommender"
	"github.com/hyperjump/ajimi/internal/related"
	"github.com/hyperjump/ajimi/internal/vector"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Encoder     embedding.Encoder
	Recipes     *recipe.SQLiteStore
	Search      *recipe.SearchIndex
	Groups      *related.GroupMap
	Recommender *recommender.Recommender
}

// Close releases all resources.
func (c *Components) Close() {
	if c.Recommender != nil {
		_ = c.Recommender.Close()
	}
	if c.Search != nil {
		_ = c.Search.Close()
	}
	if c.Recipes != nil {
		_ = c.Recipes.Close()
	}
	if c.Encoder != nil {
		_ = c.Encoder.Close()
	}
}

// newEncoder returns the ONNX encoder for the configured model, or the mock encoder when
// no model path is set.
func newEncoder(cfg *config.Config, logger *zap.Logger) (embedding.Encoder, error) {
	if cfg.Embedding.ModelPath == "" {
		logger.Warn("no embedding model configured; using the mock encoder",
			zap.Int("dimensions", cfg.Embedding.Dimensions))
		return embedding.NewMockEncoder(cfg.Embedding.Dimensions), nil
	}
	enc, err := embedding.NewONNXEncoder(embedding.ONNXOptions{
		ModelPath:  cfg.Embedding.ModelPath,
		Dimensions: cfg.Embedding.Dimensions,
		ImageSize:  cfg.Embedding.ImageSize,
		InputName:  cfg.Embedding.InputName,
		OutputName: cfg.Embedding.OutputName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encoder: %w", err)
	}
	logger.Info("encoder initialized", zap.String("model", cfg.Embedding.ModelPath), zap.Int("dimensions", enc.Dimensions()))
	return enc, nil
}

// vectorOptions maps the vector config section to index options.
func vectorOptions(cfg *config.Config, logger *zap.Logger) ([]vector.BuildOption, error) {
	backend, err := vector.ParseBackend(cfg.Vector.Backend)
	if err != nil {
		return nil, err
	}
	opts := []vector.BuildOption{vector.WithLogger(logger), vector.WithPartitionSize(cfg.Vector.PartitionSize)}
	if backend != "" {
		opts = append(opts, vector.WithBackend(backend))
	}
	logger.Debug("vector backend",
		zap.String("configured", cfg.Vector.Backend),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))
	return opts, nil
}

// openRecipes opens the recipe store and search index. Failures are logged and leave the
// corresponding component nil.
func openRecipes(cfg *config.Config, logger *zap.Logger) (*recipe.SQLiteStore, *recipe.SearchIndex) {
	store, err := recipe.NewSQLiteStore(cfg.Storage.RecipesDBPath)
	if err != nil {
		logger.Warn("recipe store unavailable", zap.String("path", cfg.Storage.RecipesDBPath), zap.Error(err))
		store = nil
	}
	search, err := recipe.NewSearchIndex(cfg.Storage.RecipesSearchPath)
	if err != nil {
		logger.Warn("dish search unavailable", zap.String("path", cfg.Storage.RecipesSearchPath), zap.Error(err))
		search = nil
	}
	return store, search
}

// initializeComponents loads everything prediction needs. A missing index is an error.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	enc, err := newEncoder(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Embedding.CacheSize > 0 {
		c.Encoder = embedding.NewCachedEncoder(enc, cfg.Embedding.CacheSize)
	} else {
		c.Encoder = enc
	}

	c.Groups, err = related.LoadGroupMap(cfg.Storage.GroupsPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load dish groups: %w", err)
	}
	c.Recipes, c.Search = openRecipes(cfg, logger)

	vecOpts, err := vectorOptions(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	opts := []recommender.Option{
		recommender.WithEncoder(c.Encoder),
		recommender.WithTopK(cfg.Retrieval.TopK),
		recommender.WithUncertaintyThreshold(cfg.Retrieval.Threshold()),
		recommender.WithBias(cfg.Session.Bias),
		recommender.WithRelatedLimits(cfg.Retrieval.SimilarK, cfg.Retrieval.GroupK),
		recommender.WithVectorOptions(vecOpts...),
		recommender.WithLogger(logger),
	}
	if c.Recipes != nil {
		opts = append(opts, recommender.WithRecipes(c.Recipes))
	}
	c.Recommender, err = recommender.New(recommender.Paths{
		Index:     cfg.Storage.IndexPath,
		Centroids: cfg.Storage.CentroidsPath,
	}, c.Groups, opts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w (did you run ajimi build-index?)", err)
	}
	if dim := c.Recommender.Status().Dimension; dim != c.Encoder.Dimensions() {
		logger.Warn("encoder and index dimensions differ; image predictions will fail",
			zap.Int("encoder", c.Encoder.Dimensions()), zap.Int("index", dim))
	}
	return c, nil
}
