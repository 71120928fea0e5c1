//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import "fmt"

// FlatIndex is unavailable without FAISS. Build with -tags=faiss to enable it.
type FlatIndex = BruteForceIndex

func faissAvailable() bool {
	return false
}

func newFlatIndex(*BruteForceIndex) (*FlatIndex, error) {
	return nil, fmt.Errorf("%w: FAISS not available: build with -tags=faiss and install FAISS library", ErrBackendUnavailable)
}

func loadFlatIndex(*BruteForceIndex, string) (*FlatIndex, error) {
	return nil, fmt.Errorf("%w: FAISS not available", ErrBackendUnavailable)
}
