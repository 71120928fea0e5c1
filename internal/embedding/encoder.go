// Package embedding turns dish photos into unit-normalized embedding vectors.
package embedding

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/webp"
)

// Encoder produces embeddings for images. Implementations return unit-length vectors.
type Encoder interface {
	Encode(ctx context.Context, img image.Image) ([]float32, error)
	Dimensions() int
	Close() error
}

// DecodeImage decodes a JPEG, PNG or WebP image.
func DecodeImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// LoadImage opens and decodes the image at path.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := DecodeImage(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// EncodeFile loads the image at path and encodes it.
func EncodeFile(ctx context.Context, enc Encoder, path string) ([]float32, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	return enc.Encode(ctx, img)
}
