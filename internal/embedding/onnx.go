//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/hyperjump/ajimi/internal/vector"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXOptions describes the image model's tensors.
type ONNXOptions struct {
	ModelPath  string
	Dimensions int
	ImageSize  int
	InputName  string
	OutputName string
}

// ONNXEncoder runs an image model with ONNX Runtime. It requires CGO and the onnxruntime shared library.
type ONNXEncoder struct {
	session    *ort.AdvancedSession
	dimensions int
	imageSize  int
	// Pre-allocated tensors for Run(); we update input data and read output.
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

// NewONNXEncoder creates an ONNX encoder. InitializeEnvironment is called if not already done.
func NewONNXEncoder(opts ONNXOptions) (*ONNXEncoder, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}
	size := opts.ImageSize
	if size <= 0 {
		size = DefaultImageSize
	}

	inputData := make([]float32, 3*size*size)
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(size), int64(size)), inputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputData := make([]float32, opts.Dimensions)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(opts.Dimensions)), outputData)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXEncoder{
		session:      session,
		dimensions:   opts.Dimensions,
		imageSize:    size,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Encode preprocesses img, runs the model and L2-normalizes the output.
func (e *ONNXEncoder) Encode(ctx context.Context, img image.Image) ([]float32, error) {
	pixels, err := Preprocess(img, e.imageSize)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("ONNX encoder is closed")
	}
	copy(e.inputTensor.GetData(), pixels)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	embedding := make([]float32, e.dimensions)
	copy(embedding, e.outputTensor.GetData()[:e.dimensions])
	vector.Normalize(embedding)
	return embedding, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEncoder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *ONNXEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		_ = e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}
