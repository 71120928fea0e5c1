//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
	"image"
)

// ONNXOptions describes the image model's tensors.
type ONNXOptions struct {
	ModelPath  string
	Dimensions int
	ImageSize  int
	InputName  string
	OutputName string
}

// ONNXEncoder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEncoder struct{}

// NewONNXEncoder returns an error when built without CGO (ONNX not available).
func NewONNXEncoder(ONNXOptions) (*ONNXEncoder, error) {
	return nil, errors.New("ONNX encoder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

func (e *ONNXEncoder) Encode(context.Context, image.Image) ([]float32, error) {
	return nil, errors.New("ONNX encoder requires CGO")
}

func (e *ONNXEncoder) Dimensions() int { return 0 }

func (e *ONNXEncoder) Close() error { return nil }
