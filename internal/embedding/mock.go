package embedding

import (
	"context"
	"image"
	"math/rand"

	"github.com/hyperjump/ajimi/internal/vector"
)

// mockInputSize keeps the mock projection small.
const mockInputSize = 16

// MockEncoder is a deterministic encoder for tests and development. It projects a
// thumbnail of the image through a fixed random matrix, so identical images get identical
// embeddings and similar images get nearby ones.
type MockEncoder struct {
	dimensions int
	projection []float32
}

// NewMockEncoder returns an encoder that produces deterministic embeddings of the given dimensions.
func NewMockEncoder(dimensions int) *MockEncoder {
	if dimensions <= 0 {
		dimensions = 512
	}
	in := 3 * mockInputSize * mockInputSize
	r := rand.New(rand.NewSource(42))
	proj := make([]float32, dimensions*in)
	for i := range proj {
		proj[i] = float32(r.NormFloat64())
	}
	return &MockEncoder{dimensions: dimensions, projection: proj}
}

// Encode returns the projected, unit-normalized thumbnail.
func (e *MockEncoder) Encode(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pixels, err := Preprocess(img, mockInputSize)
	if err != nil {
		return nil, err
	}
	in := len(pixels)
	emb := make([]float32, e.dimensions)
	for d := range emb {
		row := e.projection[d*in : (d+1)*in]
		var sum float32
		for i, p := range pixels {
			sum += row[i] * p
		}
		emb[d] = sum
	}
	vector.Normalize(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEncoder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEncoder.
func (e *MockEncoder) Close() error {
	return nil
}
