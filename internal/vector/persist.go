package vector

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	manifestFile  = "manifest.gob"
	vectorsFile   = "vectors.bin"
	faissFile     = "index.faiss"
	formatVersion = 1
)

// manifest is the self-describing header of an index artifact.
type manifest struct {
	Version   int
	Backend   Backend
	Dimension int
	Count     int
	Metadata  []entryMeta
}

type entryMeta struct {
	ClassLabel string
	SourceRef  string
	Partition  string
}

// saveArtifact writes the index to a temporary sibling directory and swaps it into dir.
// writeNative, when set, writes the backend's own binary next to the raw matrix.
func saveArtifact(dir string, m *BruteForceIndex, backend Backend, writeNative func(path string) error) error {
	if dir == "" {
		return fmt.Errorf("save index: empty path")
	}
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.MkdirTemp(parent, filepath.Base(dir)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp index dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	man := manifest{
		Version:   formatVersion,
		Backend:   backend,
		Dimension: m.dimensions,
		Count:     len(m.entries),
		Metadata:  make([]entryMeta, len(m.entries)),
	}
	for i, e := range m.entries {
		man.Metadata[i] = entryMeta{ClassLabel: e.ClassLabel, SourceRef: e.SourceRef, Partition: e.Partition}
	}
	if err := writeManifest(filepath.Join(tmp, manifestFile), &man); err != nil {
		return err
	}
	if err := writeMatrix(filepath.Join(tmp, vectorsFile), m.entries); err != nil {
		return err
	}
	if writeNative != nil {
		if err := writeNative(filepath.Join(tmp, faissFile)); err != nil {
			return err
		}
	}
	return swapDir(tmp, dir)
}

// swapDir replaces dst with src. The previous artifact is kept until the new one is in place.
func swapDir(src, dst string) error {
	old := dst + ".old"
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("remove stale index: %w", err)
	}
	hadOld := false
	if _, err := os.Stat(dst); err == nil {
		if err := os.Rename(dst, old); err != nil {
			return fmt.Errorf("move previous index aside: %w", err)
		}
		hadOld = true
	}
	if err := os.Rename(src, dst); err != nil {
		if hadOld {
			_ = os.Rename(old, dst)
		}
		return fmt.Errorf("install index: %w", err)
	}
	if hadOld {
		_ = os.RemoveAll(old)
	}
	return nil
}

func writeManifest(path string, man *manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(man); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return f.Sync()
}

// writeMatrix writes embeddings row-major as little-endian float32.
func writeMatrix(path string, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vector file: %w", err)
	}
	defer f.Close()
	for _, e := range entries {
		if _, err := f.Write(float32SliceToBytes(e.Embedding)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return f.Sync()
}

// Load reads an index artifact from dir. The backend recorded in the artifact is used unless
// WithBackend overrides it; an ExactFlat artifact loads as BruteForce when FAISS is unavailable.
func Load(dir string, opts ...BuildOption) (Index, error) {
	cfg := newBuildConfig(opts)
	man, err := readManifest(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, fmt.Errorf("%w: read vectors: %v", ErrIndexNotFound, err)
	}
	rowBytes := man.Dimension * 4
	if len(data)%rowBytes != 0 || len(data)/rowBytes != man.Count {
		return nil, fmt.Errorf("%w: metadata has %d entries but vector file holds %d bytes (%d per vector)",
			ErrIndexNotFound, man.Count, len(data), rowBytes)
	}
	entries := make([]Entry, man.Count)
	for i, meta := range man.Metadata {
		entries[i] = Entry{
			Embedding:  bytesToFloat32Slice(data[i*rowBytes : (i+1)*rowBytes]),
			ClassLabel: meta.ClassLabel,
			SourceRef:  meta.SourceRef,
			Partition:  meta.Partition,
		}
	}

	backend := man.Backend
	if cfg.backend != "" {
		backend = cfg.backend
	}
	if backend == BackendExactFlat && !IsFAISSAvailable() {
		cfg.logger.Warn("index was built with FAISS but FAISS is not available; using brute force",
			zap.String("path", dir))
		backend = BackendBruteForce
	}
	bf := newBruteForceIndex(man.Dimension, entries, cfg.partitionSize)
	if backend == BackendBruteForce {
		cfg.logger.Info("index loaded", zap.String("path", dir), zap.String("backend", string(backend)), zap.Int("entries", man.Count))
		return bf, nil
	}

	var idx Index
	nativePath := filepath.Join(dir, faissFile)
	if _, statErr := os.Stat(nativePath); statErr == nil {
		idx, err = loadFlatIndex(bf, nativePath)
	} else {
		idx, err = newFlatIndex(bf)
	}
	if err != nil {
		return nil, err
	}
	cfg.logger.Info("index loaded", zap.String("path", dir), zap.String("backend", string(backend)), zap.Int("entries", man.Count))
	return idx, nil
}

func readManifest(path string) (*manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexNotFound, err)
	}
	defer f.Close()
	var man manifest
	if err := gob.NewDecoder(f).Decode(&man); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %v", ErrIndexNotFound, err)
	}
	switch {
	case man.Version != formatVersion:
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrIndexNotFound, man.Version)
	case man.Dimension <= 0:
		return nil, fmt.Errorf("%w: invalid dimension %d", ErrIndexNotFound, man.Dimension)
	case man.Count <= 0:
		return nil, fmt.Errorf("%w: artifact has no entries", ErrIndexNotFound)
	case man.Count != len(man.Metadata):
		return nil, fmt.Errorf("%w: entry count %d does not match metadata length %d",
			ErrIndexNotFound, man.Count, len(man.Metadata))
	}
	return &man, nil
}

// Exists reports whether dir holds an index manifest.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, manifestFile))
	return err == nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
