// Package integration exercises artifact hot reload through the file watcher and the
// HTTP server.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/ajimi/internal/centroid"
	"github.com/hyperjump/ajimi/internal/recommender"
	"github.com/hyperjump/ajimi/internal/related"
	"github.com/hyperjump/ajimi/internal/server"
	"github.com/hyperjump/ajimi/internal/session"
	"github.com/hyperjump/ajimi/internal/vector"
	"github.com/hyperjump/ajimi/internal/watcher"
	"go.uber.org/zap"
)

const dims = 4

func axis(i int, scale float32) []float32 {
	v := make([]float32, dims)
	v[i] = scale
	return v
}

// writeArtifacts builds an index with one entry per label, each on its own axis, and
// saves it together with its centroids.
func writeArtifacts(t *testing.T, indexPath, centroidsPath string, labels ...string) {
	t.Helper()
	entries := make([]vector.Entry, 0, len(labels))
	for i, label := range labels {
		entries = append(entries, vector.Entry{
			Embedding:  axis(i, 1),
			ClassLabel: label,
			SourceRef:  fmt.Sprintf("%s/%d.jpg", label, i),
		})
	}
	idx, err := vector.Build(entries, vector.WithBackend(vector.BackendBruteForce))
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	if err := idx.Save(indexPath); err != nil {
		t.Fatal(err)
	}
	store, err := centroid.Build(idx.Entries())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(centroidsPath); err != nil {
		t.Fatal(err)
	}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestIntegration_WatcherReloadsArtifacts(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "artifacts", "index")
	centroidsPath := filepath.Join(dir, "artifacts", "centroids.gob")
	writeArtifacts(t, indexPath, centroidsPath, "pho", "banh_mi")

	groups, err := related.DefaultGroupMap()
	if err != nil {
		t.Fatal(err)
	}
	rec, err := recommender.New(recommender.Paths{Index: indexPath, Centroids: centroidsPath}, groups,
		recommender.WithVectorOptions(vector.WithBackend(vector.BackendBruteForce)))
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	logger := zap.NewNop()
	w := watcher.NewWatcher([]string{indexPath, centroidsPath}, func() {
		if err := rec.Reload(); err != nil {
			t.Logf("reload: %v", err)
		}
	}, watcher.WithDebounce(100*time.Millisecond), watcher.WithLogger(logger))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	srv := server.NewServer(rec, session.NewManager(), nil, nil, logger)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	predict := func() (int, map[string]interface{}) {
		body, _ := json.Marshal(map[string]interface{}{"embedding": axis(2, 1)})
		resp, err := http.Post(ts.URL+"/api/v1/predict", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var out map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	if code, out := predict(); code != http.StatusOK || out["top_class"] == "com_tam" {
		t.Fatalf("before reload: %d %v", code, out)
	}

	writeArtifacts(t, indexPath, centroidsPath, "pho", "banh_mi", "com_tam")
	if !waitFor(func() bool { return rec.Status().Entries == 3 && rec.Status().Centroids == 3 }) {
		t.Fatalf("index not reloaded: %+v", rec.Status())
	}
	code, out := predict()
	if code != http.StatusOK {
		t.Fatalf("after reload: %d %v", code, out)
	}
	if out["top_class"] != "com_tam" {
		t.Errorf("top_class = %v, want com_tam", out["top_class"])
	}
}
