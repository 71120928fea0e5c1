package centroid

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

type artifact struct {
	Version   int
	Dimension int
	Labels    []string
	Means     [][]float32
}

const formatVersion = 1

// Save writes the store to path via a temporary file and rename.
func (s *Store) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create centroid dir: %w", err)
	}
	art := artifact{Version: formatVersion, Dimension: s.dimension, Labels: s.labels, Means: make([][]float32, len(s.labels))}
	for i, label := range s.labels {
		art.Means[i] = s.byLabel[label].Mean
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp centroid file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := gob.NewEncoder(tmp).Encode(&art); err != nil {
		tmp.Close()
		return fmt.Errorf("encode centroids: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync centroids: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close centroids: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install centroids: %w", err)
	}
	return nil
}

// Load reads a store written by Save. A missing or malformed file yields ErrNotFound.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	defer f.Close()

	var art artifact
	if err := gob.NewDecoder(f).Decode(&art); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrNotFound, path, err)
	}
	if art.Version != formatVersion || len(art.Labels) != len(art.Means) {
		return nil, fmt.Errorf("%w: invalid artifact %s", ErrNotFound, path)
	}
	centroids := make([]Centroid, len(art.Labels))
	for i, label := range art.Labels {
		if len(art.Means[i]) != art.Dimension {
			return nil, fmt.Errorf("%w: centroid %q has dimension %d, expected %d", ErrNotFound, label, len(art.Means[i]), art.Dimension)
		}
		centroids[i] = Centroid{ClassLabel: label, Mean: art.Means[i], Degenerate: isZero(art.Means[i])}
	}
	return newStore(art.Dimension, centroids), nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
