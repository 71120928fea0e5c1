package embedding

import (
	"context"
	"image"
	"image/color"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Get("a")               // a is now most recent
	c.Set("c", []float32{6}) // evicts b
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d", c.Len())
	}
}

type countingEncoder struct {
	*MockEncoder
	calls int
}

func (c *countingEncoder) Encode(ctx context.Context, img image.Image) ([]float32, error) {
	c.calls++
	return c.MockEncoder.Encode(ctx, img)
}

func TestCachedEncoder(t *testing.T) {
	inner := &countingEncoder{MockEncoder: NewMockEncoder(8)}
	enc := NewCachedEncoder(inner, 4)
	ctx := context.Background()

	img := solidImage(10, 10, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	first, err := enc.Encode(ctx, img)
	if err != nil {
		t.Fatal(err)
	}
	first[0] = 42 // caller mutation must not leak into the cache

	same := solidImage(10, 10, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	second, err := enc.Encode(ctx, same)
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("identical pixels should hit the cache; inner called %d times", inner.calls)
	}
	if second[0] == 42 {
		t.Error("cached vector was aliased")
	}
	if enc.Dimensions() != 8 {
		t.Errorf("Dimensions = %d", enc.Dimensions())
	}

	if _, err := enc.Encode(ctx, solidImage(10, 10, color.RGBA{B: 255, A: 255})); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("different pixels should miss; inner called %d times", inner.calls)
	}
}
