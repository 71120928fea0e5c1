package recommender

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ajimi/internal/centroid"
	"github.com/hyperjump/ajimi/internal/embedding"
	"github.com/hyperjump/ajimi/internal/predict"
	"github.com/hyperjump/ajimi/internal/recipe"
	"github.com/hyperjump/ajimi/internal/related"
	"github.com/hyperjump/ajimi/internal/session"
	"github.com/hyperjump/ajimi/internal/vector"
)

const testDim = 8

var testClasses = []string{"pho", "bun_bo_hue", "banh_mi"}

// classVector is a unit vector pointing mostly along the class axis, with a small
// per-sample offset on the last axis.
func classVector(class, sample int) []float32 {
	v := make([]float32, testDim)
	v[class] = 1
	v[testDim-1] = float32(sample) * 0.05
	return normalized(v)
}

func normalized(v []float32) []float32 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	n := float32(math.Sqrt(s))
	for i := range v {
		v[i] /= n
	}
	return v
}

func testEntries() []vector.Entry {
	var entries []vector.Entry
	for c, label := range testClasses {
		for s := 0; s < 5; s++ {
			entries = append(entries, vector.Entry{
				Embedding:  classVector(c, s),
				ClassLabel: label,
				SourceRef:  filepath.Join("images", label, string(rune('a'+s))+".jpg"),
				Partition:  "train",
			})
		}
	}
	return entries
}

type mapLookup map[string]*recipe.Recipe

func (m mapLookup) GetRecipe(_ context.Context, label string) (*recipe.Recipe, error) {
	return m[recipe.NormalizeKey(label)], nil
}

func newTestRecommender(t *testing.T, opts ...Option) *Recommender {
	t.Helper()
	entries := testEntries()
	idx, err := vector.Build(entries, vector.WithBackend(vector.BackendBruteForce))
	if err != nil {
		t.Fatal(err)
	}
	cents, err := centroid.Build(entries)
	if err != nil {
		t.Fatal(err)
	}
	groups, err := related.DefaultGroupMap()
	if err != nil {
		t.Fatal(err)
	}
	r := NewFromIndex(idx, cents, groups, opts...)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestPredict_ExactMatch(t *testing.T) {
	recipes := mapLookup{"pho": {Key: "pho", NameRaw: "Phở", Ingredients: "bánh phở", Instructions: "nấu"}}
	r := newTestRecommender(t, WithRecipes(recipes))

	query := classVector(0, 2)
	p, err := r.Predict(context.Background(), query, session.NewFeedback())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if p.TopClass != "pho" || p.PersonalizedTop != "pho" {
		t.Errorf("top = %s / %s, want pho", p.TopClass, p.PersonalizedTop)
	}
	if math.Abs(p.Confidence-1) > 1e-5 {
		t.Errorf("confidence = %v, want 1", p.Confidence)
	}
	if p.IsUncertain {
		t.Error("exact match should not be uncertain")
	}
	if len(p.Neighbors) != DefaultTopK {
		t.Fatalf("neighbors = %d, want %d", len(p.Neighbors), DefaultTopK)
	}
	if math.Abs(p.Neighbors[0].Similarity-1) > 1e-5 || p.Neighbors[0].ClassLabel != "pho" {
		t.Errorf("rank-1 neighbor = %+v", p.Neighbors[0])
	}
	if p.Recipe == nil || p.Recipe.Key != "pho" {
		t.Errorf("recipe = %+v", p.Recipe)
	}
	if p.GroupName != "Bún & Mì" {
		t.Errorf("group = %q", p.GroupName)
	}
	if len(p.SimilarDishes) != 2 {
		t.Errorf("similar = %v, want the other two classes", p.SimilarDishes)
	}
	if p.Personalized {
		t.Error("empty feedback should not personalize")
	}
	for i, rc := range p.Ranked {
		if rc.ClassLabel != p.RankedClasses[i].ClassLabel {
			t.Errorf("ranking changed without feedback at %d", i)
		}
	}
}

func TestPredict_FeedbackReorders(t *testing.T) {
	r := newTestRecommender(t, WithTopK(15))
	// Halfway between pho and bun_bo_hue, slightly closer to pho.
	q := make([]float32, testDim)
	q[0], q[1] = 0.72, 0.69
	q = normalized(q)
	base, err := r.Predict(context.Background(), q, session.NewFeedback())
	if err != nil {
		t.Fatal(err)
	}
	if base.TopClass != "pho" {
		t.Fatalf("baseline top = %s", base.TopClass)
	}

	fb := session.NewFeedback()
	fb.Like("bun_bo_hue")
	fb.Dislike("pho")
	p, err := r.Predict(context.Background(), q, fb)
	if err != nil {
		t.Fatal(err)
	}
	if p.PersonalizedTop != "bun_bo_hue" {
		t.Errorf("personalized top = %s, want bun_bo_hue", p.PersonalizedTop)
	}
	if p.TopClass != "pho" {
		t.Errorf("raw top should stay pho, got %s", p.TopClass)
	}
	if !p.Personalized {
		t.Error("expected personalized prediction")
	}
}

func TestPredict_Errors(t *testing.T) {
	r := newTestRecommender(t)
	scaled := classVector(0, 0)
	for i := range scaled {
		scaled[i] *= 3
	}
	tests := []struct {
		name  string
		query []float32
		want  error
	}{
		{"wrong dimension", make([]float32, 3), vector.ErrDimensionMismatch},
		{"scaled query", scaled, vector.ErrNotNormalized},
		{"zero query", make([]float32, testDim), vector.ErrNotNormalized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Predict(context.Background(), tt.query, session.NewFeedback())
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if p != nil {
				t.Errorf("prediction = %+v, want nil", p)
			}
		})
	}
	if _, err := r.PredictImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)), session.NewFeedback()); !errors.Is(err, ErrNoEncoder) {
		t.Errorf("err = %v, want ErrNoEncoder", err)
	}
}

func TestPredictImage(t *testing.T) {
	enc := embedding.NewMockEncoder(16)
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	emb, err := enc.Encode(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	other := image.NewRGBA(image.Rect(0, 0, 20, 20))
	other.Set(3, 3, color.RGBA{R: 255, A: 255})
	otherEmb, err := enc.Encode(context.Background(), other)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := vector.Build([]vector.Entry{
		{Embedding: emb, ClassLabel: "com_tam"},
		{Embedding: otherEmb, ClassLabel: "xoi_xeo"},
	}, vector.WithBackend(vector.BackendBruteForce))
	if err != nil {
		t.Fatal(err)
	}
	r := NewFromIndex(idx, nil, nil, WithEncoder(enc))
	defer r.Close()

	p, err := r.PredictImage(context.Background(), img, session.NewFeedback())
	if err != nil {
		t.Fatalf("PredictImage: %v", err)
	}
	if p.TopClass != "com_tam" {
		t.Errorf("top = %s, want com_tam", p.TopClass)
	}
	if len(p.SimilarDishes) != 0 {
		t.Errorf("similar dishes without centroids = %v", p.SimilarDishes)
	}
	if p.GroupName != related.Unclassified {
		t.Errorf("group = %q, want %q", p.GroupName, related.Unclassified)
	}
}

func TestNewAndReload(t *testing.T) {
	dir := t.TempDir()
	paths := Paths{Index: filepath.Join(dir, "index"), Centroids: filepath.Join(dir, "centroids.gob")}

	if _, err := New(paths, nil); !errors.Is(err, vector.ErrIndexNotFound) {
		t.Fatalf("New without artifacts: err = %v, want ErrIndexNotFound", err)
	}

	entries := testEntries()
	idx, err := vector.Build(entries, vector.WithBackend(vector.BackendBruteForce))
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(paths.Index); err != nil {
		t.Fatal(err)
	}

	// Centroids missing: loads, similar dishes disabled.
	r, err := New(paths, nil, WithVectorOptions(vector.WithBackend(vector.BackendBruteForce)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()
	if st := r.Status(); st.Entries != 15 || st.Centroids != 0 || st.Dimension != testDim {
		t.Errorf("status = %+v", st)
	}
	if got := r.SimilarDishes("pho", 3); len(got) != 0 {
		t.Errorf("similar = %v, want none", got)
	}

	cents, err := centroid.Build(entries)
	if err != nil {
		t.Fatal(err)
	}
	if err := cents.Save(paths.Centroids); err != nil {
		t.Fatal(err)
	}
	smaller, err := vector.Build(entries[:5], vector.WithBackend(vector.BackendBruteForce))
	if err != nil {
		t.Fatal(err)
	}
	if err := smaller.Save(paths.Index); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if st := r.Status(); st.Entries != 5 || st.Centroids != 3 {
		t.Errorf("status after reload = %+v", st)
	}
	if got := r.SimilarDishes("pho", 3); len(got) != 2 {
		t.Errorf("similar after reload = %v", got)
	}

	// A broken index keeps the previous snapshot serving.
	r.paths = Paths{Index: filepath.Join(dir, "missing")}
	if err := r.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if _, err := r.Predict(context.Background(), classVector(0, 0), session.NewFeedback()); err != nil {
		t.Errorf("Predict after failed reload: %v", err)
	}
}

func TestWithUncertaintyThreshold(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero kept", 0, 0},
		{"one kept", 1, 1},
		{"custom", 0.3, 0.3},
		{"negative ignored", -0.5, predict.DefaultUncertaintyThreshold},
		{"above one ignored", 1.5, predict.DefaultUncertaintyThreshold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRecommender(t, WithUncertaintyThreshold(tt.in))
			if r.threshold != tt.want {
				t.Errorf("threshold = %v, want %v", r.threshold, tt.want)
			}
		})
	}
}

func TestPredict_ZeroThresholdNeverUncertain(t *testing.T) {
	r := newTestRecommender(t, WithUncertaintyThreshold(0))
	// Orthogonal to every class axis except the shared offset axis.
	q := make([]float32, testDim)
	q[3] = 1
	p, err := r.Predict(context.Background(), q, session.NewFeedback())
	if err != nil {
		t.Fatal(err)
	}
	if p.Confidence >= predict.DefaultUncertaintyThreshold {
		t.Fatalf("confidence = %v, want a low-confidence query", p.Confidence)
	}
	if p.IsUncertain {
		t.Errorf("confidence %v flagged uncertain with threshold 0", p.Confidence)
	}
}

func TestPredict_UncertaintyThreshold(t *testing.T) {
	r := newTestRecommender(t, WithUncertaintyThreshold(0.99))
	q := make([]float32, testDim)
	q[0], q[1] = 0.8, 0.6
	p, err := r.Predict(context.Background(), q, session.NewFeedback())
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsUncertain {
		t.Errorf("confidence %v should be uncertain at 0.99", p.Confidence)
	}
	if p.Confidence >= 0.99 || p.Confidence < predict.DefaultUncertaintyThreshold {
		t.Errorf("confidence = %v", p.Confidence)
	}
}
