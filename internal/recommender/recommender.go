// Package recommender ties the index, aggregator, session re-ranker, recipe lookup and
// related engine into one prediction call.
package recommender

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/ajimi/internal/centroid"
	"github.com/hyperjump/ajimi/internal/embedding"
	"github.com/hyperjump/ajimi/internal/predict"
	"github.com/hyperjump/ajimi/internal/recipe"
	"github.com/hyperjump/ajimi/internal/related"
	"github.com/hyperjump/ajimi/internal/session"
	"github.com/hyperjump/ajimi/internal/vector"
	"go.uber.org/zap"
)

// DefaultTopK is the number of neighbours retrieved per query.
const DefaultTopK = 5

// ErrNoEncoder is returned by PredictImage when the recommender was built without an encoder.
var ErrNoEncoder = errors.New("recommender: no image encoder configured")

// Paths locates the artifacts Reload reads.
type Paths struct {
	Index     string
	Centroids string
}

// Neighbor is one retrieved reference image.
type Neighbor struct {
	ClassLabel string  `json:"class_label"`
	Similarity float64 `json:"similarity"`
	SourceRef  string  `json:"source_ref"`
}

// Prediction is the answer to one query. TopClass is the aggregator's winner and drives the
// recipe and related dishes; Ranked is the session-personalized order of the same classes.
type Prediction struct {
	TopClass        string                `json:"top_class"`
	PersonalizedTop string                `json:"personalized_top"`
	Confidence      float64               `json:"confidence"`
	IsUncertain     bool                  `json:"is_uncertain"`
	Personalized    bool                  `json:"personalized"`
	RankedClasses   []predict.ClassScore  `json:"ranked_classes"`
	Ranked          []session.RankedClass `json:"personalized_ranking"`
	Neighbors       []Neighbor            `json:"neighbors"`
	Recipe          *recipe.Recipe        `json:"recipe"`
	SimilarDishes   []string              `json:"similar_dishes"`
	GroupMembers    []string              `json:"group_members"`
	GroupName       string                `json:"group_name"`
}

// snapshot is an immutable set of loaded artifacts. Searches hold mu for reading so a
// replaced snapshot is closed only after in-flight searches finish.
type snapshot struct {
	mu        sync.RWMutex
	closed    bool
	index     vector.Index
	centroids *centroid.Store
	related   *related.Engine
	loadedAt  time.Time
}

// Status describes the loaded artifacts.
type Status struct {
	Backend    string    `json:"backend"`
	Entries    int       `json:"entries"`
	Dimension  int       `json:"dimension"`
	Centroids  int       `json:"centroids"`
	Groups     int       `json:"groups"`
	LoadedAt   time.Time `json:"loaded_at"`
	HasEncoder bool      `json:"has_encoder"`
}

// Recommender answers predictions against the current artifact snapshot.
type Recommender struct {
	current atomic.Pointer[snapshot]
	reload  sync.Mutex

	paths      Paths
	groups     *related.GroupMap
	encoder    embedding.Encoder
	recipes    recipe.Lookup
	vectorOpts []vector.BuildOption

	topK      int
	threshold float64
	bias      float64
	similarK  int
	groupK    int
	logger    *zap.Logger
}

// Option configures a Recommender.
type Option func(*Recommender)

// WithEncoder sets the encoder used by PredictImage.
func WithEncoder(enc embedding.Encoder) Option {
	return func(r *Recommender) { r.encoder = enc }
}

// WithRecipes sets the recipe lookup. Without one predictions carry no recipe.
func WithRecipes(l recipe.Lookup) Option {
	return func(r *Recommender) { r.recipes = l }
}

// WithTopK sets the number of neighbours retrieved.
func WithTopK(k int) Option {
	return func(r *Recommender) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithUncertaintyThreshold sets the confidence below which a prediction is uncertain.
// Values outside [0, 1] are ignored; 0 disables the flag.
func WithUncertaintyThreshold(t float64) Option {
	return func(r *Recommender) {
		if t >= 0 && t <= 1 {
			r.threshold = t
		}
	}
}

// WithBias sets the feedback bias for re-ranking.
func WithBias(b float64) Option {
	return func(r *Recommender) {
		if b >= 0 {
			r.bias = b
		}
	}
}

// WithRelatedLimits sets how many similar dishes and group members are returned.
func WithRelatedLimits(similarK, groupK int) Option {
	return func(r *Recommender) {
		if similarK > 0 {
			r.similarK = similarK
		}
		if groupK > 0 {
			r.groupK = groupK
		}
	}
}

// WithVectorOptions passes options to vector.Load on reload.
func WithVectorOptions(opts ...vector.BuildOption) Option {
	return func(r *Recommender) { r.vectorOpts = append(r.vectorOpts, opts...) }
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recommender) {
		if l != nil {
			r.logger = l
		}
	}
}

func newRecommender(paths Paths, groups *related.GroupMap, opts []Option) *Recommender {
	r := &Recommender{
		paths:     paths,
		groups:    groups,
		topK:      DefaultTopK,
		threshold: predict.DefaultUncertaintyThreshold,
		bias:      session.DefaultBias,
		similarK:  related.DefaultSimilarK,
		groupK:    related.DefaultGroupK,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// New loads the artifacts at paths. A missing or corrupt index is an error; missing
// centroids only disable similar dishes.
func New(paths Paths, groups *related.GroupMap, opts ...Option) (*Recommender, error) {
	r := newRecommender(paths, groups, opts)
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewFromIndex serves an index already in memory. centroids may be nil.
func NewFromIndex(idx vector.Index, centroids *centroid.Store, groups *related.GroupMap, opts ...Option) *Recommender {
	r := newRecommender(Paths{}, groups, opts)
	r.current.Store(r.newSnapshot(idx, centroids))
	return r
}

func (r *Recommender) newSnapshot(idx vector.Index, centroids *centroid.Store) *snapshot {
	return &snapshot{
		index:     idx,
		centroids: centroids,
		related:   related.NewEngine(r.groups, centroids),
		loadedAt:  time.Now(),
	}
}

// Reload reads the artifacts again and swaps them in. If the index cannot be loaded the
// current snapshot stays in service and the error is returned.
func (r *Recommender) Reload() error {
	r.reload.Lock()
	defer r.reload.Unlock()
	if r.paths.Index == "" {
		return fmt.Errorf("reload: no index path configured")
	}

	opts := append([]vector.BuildOption{vector.WithLogger(r.logger)}, r.vectorOpts...)
	idx, err := vector.Load(r.paths.Index, opts...)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	var centroids *centroid.Store
	if r.paths.Centroids != "" {
		centroids, err = centroid.Load(r.paths.Centroids)
		if err != nil {
			r.logger.Warn("centroids unavailable; similar dishes disabled",
				zap.String("path", r.paths.Centroids), zap.Error(err))
			centroids = nil
		} else if centroids.Dimension() != idx.Dimension() {
			r.logger.Warn("centroid dimension does not match index; similar dishes disabled",
				zap.Int("centroids", centroids.Dimension()), zap.Int("index", idx.Dimension()))
			centroids = nil
		}
	}

	old := r.current.Swap(r.newSnapshot(idx, centroids))
	r.logger.Info("artifacts loaded",
		zap.String("backend", string(idx.Backend())),
		zap.Int("entries", idx.Len()),
		zap.Int("centroids", centroids.Len()))
	if old != nil {
		old.retire()
	}
	return nil
}

func (s *snapshot) retire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	_ = s.index.Close()
}

// acquire returns the current snapshot read-locked. The caller must RUnlock it.
func (r *Recommender) acquire() (*snapshot, error) {
	for {
		s := r.current.Load()
		if s == nil {
			return nil, vector.ErrIndexNotFound
		}
		s.mu.RLock()
		if !s.closed {
			return s, nil
		}
		s.mu.RUnlock()
	}
}

// Predict classifies a query embedding and personalizes the ranking with fb.
func (r *Recommender) Predict(ctx context.Context, query []float32, fb session.Feedback) (*Prediction, error) {
	s, err := r.acquire()
	if err != nil {
		return nil, err
	}
	hits, err := s.index.Search(ctx, query, r.topK)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	rel := s.related
	s.mu.RUnlock()

	result, err := predict.Aggregate(hits, predict.Options{UncertaintyThreshold: r.threshold})
	if err != nil {
		return nil, err
	}
	ranked := session.ReRank(result.RankedClasses, fb, r.bias)

	p := &Prediction{
		TopClass:        result.TopClass,
		PersonalizedTop: ranked[0].ClassLabel,
		Confidence:      result.Confidence,
		IsUncertain:     result.IsUncertain,
		Personalized:    fb.Personalized(),
		RankedClasses:   result.RankedClasses,
		Ranked:          ranked,
		Neighbors:       make([]Neighbor, len(hits)),
		SimilarDishes:   rel.SimilarClasses(result.TopClass, r.similarK),
		GroupMembers:    rel.GroupMembers(result.TopClass, r.groupK),
		GroupName:       rel.GroupName(result.TopClass),
	}
	for i, h := range hits {
		p.Neighbors[i] = Neighbor{ClassLabel: h.Entry.ClassLabel, Similarity: h.Similarity, SourceRef: h.Entry.SourceRef}
	}
	if r.recipes != nil {
		rec, err := r.recipes.GetRecipe(ctx, result.TopClass)
		if err != nil {
			r.logger.Warn("recipe lookup failed", zap.String("class", result.TopClass), zap.Error(err))
		}
		p.Recipe = rec
	}
	return p, nil
}

// PredictImage encodes img and predicts on the embedding.
func (r *Recommender) PredictImage(ctx context.Context, img image.Image, fb session.Feedback) (*Prediction, error) {
	if r.encoder == nil {
		return nil, ErrNoEncoder
	}
	emb, err := r.encoder.Encode(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return r.Predict(ctx, emb, fb)
}

// SimilarDishes returns up to k classes closest to label by centroid.
func (r *Recommender) SimilarDishes(label string, k int) []string {
	if k <= 0 {
		k = r.similarK
	}
	s := r.current.Load()
	if s == nil {
		return []string{}
	}
	return s.related.SimilarClasses(label, k)
}

// GroupMembers returns up to k other members of label's group.
func (r *Recommender) GroupMembers(label string, k int) []string {
	if k <= 0 {
		k = r.groupK
	}
	return related.NewEngine(r.groups, nil).GroupMembers(label, k)
}

// GroupName returns label's group name.
func (r *Recommender) GroupName(label string) string {
	return related.NewEngine(r.groups, nil).GroupName(label)
}

// Recipe returns the recipe for label, or nil when there is none.
func (r *Recommender) Recipe(ctx context.Context, label string) (*recipe.Recipe, error) {
	if r.recipes == nil {
		return nil, nil
	}
	return r.recipes.GetRecipe(ctx, label)
}

// Encoder returns the configured encoder, or nil.
func (r *Recommender) Encoder() embedding.Encoder {
	return r.encoder
}

// Status reports what is currently loaded.
func (r *Recommender) Status() Status {
	st := Status{Groups: r.groups.Len(), HasEncoder: r.encoder != nil}
	s, err := r.acquire()
	if err != nil {
		return st
	}
	defer s.mu.RUnlock()
	st.Backend = string(s.index.Backend())
	st.Entries = s.index.Len()
	st.Dimension = s.index.Dimension()
	st.Centroids = s.centroids.Len()
	st.LoadedAt = s.loadedAt
	return st
}

// Close releases the current snapshot. The recommender must not be used afterwards.
func (r *Recommender) Close() error {
	r.reload.Lock()
	defer r.reload.Unlock()
	if s := r.current.Swap(nil); s != nil {
		s.retire()
	}
	return nil
}
