//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

const (
	// candidateSlack is the minimum number of extra candidates fetched beyond k.
	candidateSlack = 16
	// boundaryEpsilon bounds the float32 scoring error of FAISS relative to the exact scorer.
	boundaryEpsilon = 1e-4
)

// FlatIndex serves searches from a FAISS IndexFlatIP. FAISS proposes candidates; they are
// rescored with InnerProduct and ordered by the same rule as BruteForceIndex, so both
// backends rank identically. When near-ties straddle the candidate boundary the search
// falls back to an exact scan.
type FlatIndex struct {
	exact *BruteForceIndex
	index *C.FaissIndex
	mu    sync.RWMutex
}

func faissAvailable() bool {
	return true
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

func newFlatIndex(exact *BruteForceIndex) (*FlatIndex, error) {
	var index *C.FaissIndexFlatIP
	if ret := C.faiss_IndexFlatIP_new_with(&index, C.idx_t(exact.dimensions)); ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	f := &FlatIndex{exact: exact, index: (*C.FaissIndex)(unsafe.Pointer(index))}

	n := len(exact.entries)
	flat := make([]float32, n*exact.dimensions)
	for i, e := range exact.entries {
		copy(flat[i*exact.dimensions:(i+1)*exact.dimensions], e.Embedding)
	}
	if ret := C.faiss_Index_add(f.index, C.idx_t(n), (*C.float)(unsafe.Pointer(&flat[0]))); ret != 0 {
		C.faiss_Index_free(f.index)
		return nil, fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	return f, nil
}

func loadFlatIndex(exact *BruteForceIndex, path string) (*FlatIndex, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var index *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &index); ret != 0 {
		return nil, fmt.Errorf("%w: read FAISS index: %s", ErrIndexNotFound, faissLastError())
	}
	if got := int(C.faiss_Index_ntotal(index)); got != len(exact.entries) {
		C.faiss_Index_free(index)
		return nil, fmt.Errorf("%w: FAISS index holds %d vectors, metadata has %d", ErrIndexNotFound, got, len(exact.entries))
	}
	return &FlatIndex{exact: exact, index: index}, nil
}

// Search returns the top-k entries by inner product (assumes normalized vectors = cosine similarity).
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]NeighborHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if err := checkQuery(query, f.exact.dimensions); err != nil {
		return nil, err
	}
	n := len(f.exact.entries)
	if k > n {
		k = n
	}
	c := min(n, k+max(k, candidateSlack))

	f.mu.RLock()
	if f.index == nil {
		f.mu.RUnlock()
		return nil, fmt.Errorf("FAISS index is closed")
	}
	distances := make([]float32, c)
	labels := make([]int64, c)
	ret := C.faiss_Index_search(
		f.index,
		1, // nq (number of queries)
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(c),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	f.mu.RUnlock()
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	candidates := f.exact.rescore(query, labels)
	if len(candidates) < k {
		return f.exact.Search(ctx, query, k)
	}
	if c < n && candidates[k-1].score <= float64(distances[c-1])+boundaryEpsilon {
		// An entry FAISS did not return could still tie or beat the k-th candidate.
		return f.exact.Search(ctx, query, k)
	}
	return f.exact.hits(candidates[:k]), nil
}

// Save persists the raw matrix, metadata, and the native FAISS index to dir.
func (f *FlatIndex) Save(dir string) error {
	return saveArtifact(dir, f.exact, BackendExactFlat, f.writeNative)
}

func (f *FlatIndex) writeNative(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}
	return nil
}

// Backend returns BackendExactFlat.
func (f *FlatIndex) Backend() Backend {
	return BackendExactFlat
}

// Dimension returns the embedding dimension.
func (f *FlatIndex) Dimension() int {
	return f.exact.Dimension()
}

// Len returns the number of entries in the index.
func (f *FlatIndex) Len() int {
	return f.exact.Len()
}

// Entry returns the entry at pos.
func (f *FlatIndex) Entry(pos int) (Entry, bool) {
	return f.exact.Entry(pos)
}

// Entries returns all entries in position order.
func (f *FlatIndex) Entries() []Entry {
	return f.exact.Entries()
}

// Close frees the FAISS index resources.
func (f *FlatIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}
