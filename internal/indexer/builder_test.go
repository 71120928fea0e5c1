package indexer

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ajimi/internal/centroid"
	"github.com/hyperjump/ajimi/internal/embedding"
	"github.com/hyperjump/ajimi/internal/vector"
)

func sampleRows(t *testing.T) []Row {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "train", "pho", "1.png"), color.RGBA{R: 250, G: 240, B: 200, A: 255})
	writePNG(t, filepath.Join(dir, "train", "pho", "2.png"), color.RGBA{R: 240, G: 230, B: 190, A: 255})
	writePNG(t, filepath.Join(dir, "train", "bun_cha", "1.png"), color.RGBA{R: 90, G: 40, B: 20, A: 255})
	writePNG(t, filepath.Join(dir, "val", "bun_cha", "2.png"), color.RGBA{R: 100, G: 50, B: 30, A: 255})
	writePNG(t, filepath.Join(dir, "test", "pho", "3.png"), color.RGBA{R: 245, G: 235, B: 195, A: 255})
	rows, err := ScanManifest(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestBuilder_BuildIndex(t *testing.T) {
	rows := sampleRows(t)
	b := NewBuilder(embedding.NewMockEncoder(32), WithWorkers(2), WithVectorOptions(vector.WithBackend(vector.BackendBruteForce)))
	idx, stats, err := b.BuildIndex(context.Background(), rows)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	defer idx.Close()

	if stats.Selected != 4 || stats.Indexed != 4 || stats.Skipped != 0 || stats.Classes != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if idx.Len() != 4 || idx.Dimension() != 32 {
		t.Fatalf("index len=%d dim=%d", idx.Len(), idx.Dimension())
	}
	// Positions follow manifest order with the test split left out.
	train := FilterSplits(rows, DefaultSplits)
	for i, row := range train {
		e, ok := idx.Entry(i)
		if !ok || e.SourceRef != row.ImagePath || e.ClassLabel != row.FoodName || e.Partition != row.Split {
			t.Errorf("entry %d = %+v, want row %+v", i, e, row)
		}
	}
}

func TestBuilder_SkipsUnreadableImages(t *testing.T) {
	rows := sampleRows(t)
	if err := os.WriteFile(rows[1].ImagePath, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(embedding.NewMockEncoder(16), WithVectorOptions(vector.WithBackend(vector.BackendBruteForce)))
	idx, stats, err := b.BuildIndex(context.Background(), rows)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	defer idx.Close()
	if stats.Skipped != 1 || idx.Len() != stats.Selected-1 {
		t.Errorf("stats = %+v, len = %d", stats, idx.Len())
	}
}

func TestBuilder_EmptySelection(t *testing.T) {
	rows := sampleRows(t)
	b := NewBuilder(embedding.NewMockEncoder(16), WithSplits([]string{"holdout"}))
	if _, _, err := b.BuildIndex(context.Background(), rows); !errors.Is(err, vector.ErrEmptyInput) {
		t.Errorf("err = %v, want ErrEmptyInput", err)
	}
}

func TestBuilder_CancelledContext(t *testing.T) {
	rows := sampleRows(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBuilder(embedding.NewMockEncoder(16))
	if _, _, err := b.BuildIndex(ctx, rows); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBuilder_SaveAndCentroids(t *testing.T) {
	rows := sampleRows(t)
	dir := t.TempDir()
	b := NewBuilder(embedding.NewMockEncoder(16), WithVectorOptions(vector.WithBackend(vector.BackendBruteForce)))
	idx, _, err := b.BuildAndSaveIndex(context.Background(), rows, filepath.Join(dir, "index"))
	if err != nil {
		t.Fatalf("BuildAndSaveIndex: %v", err)
	}
	defer idx.Close()

	loaded, err := vector.Load(filepath.Join(dir, "index"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()
	if loaded.Len() != idx.Len() {
		t.Errorf("loaded len = %d, want %d", loaded.Len(), idx.Len())
	}

	path := filepath.Join(dir, "centroids.gob")
	store, err := b.BuildCentroids(loaded, path)
	if err != nil {
		t.Fatalf("BuildCentroids: %v", err)
	}
	if store.Len() != 2 {
		t.Errorf("centroids = %d, want 2", store.Len())
	}
	reread, err := centroid.Load(path)
	if err != nil {
		t.Fatalf("centroid.Load: %v", err)
	}
	if got := reread.Labels(); len(got) != 2 || got[0] != "bun_cha" || got[1] != "pho" {
		t.Errorf("labels = %v", got)
	}
}
