package server

import (
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"index": s.rec.Status(),
	}
	if s.sessions != nil {
		resp["sessions"] = s.sessions.Len()
	}
	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"top_k":                 s.config.Retrieval.TopK,
			"uncertainty_threshold": s.config.Retrieval.Threshold(),
			"bias":                  s.config.Session.Bias,
			"personalization":       s.config.Session.PersonalizationEnabled(),
			"vector_backend":        s.config.Vector.Backend,
			"embedding_dimensions":  s.config.Embedding.Dimensions,
			"index_path":            s.config.Storage.IndexPath,
			"centroids_path":        s.config.Storage.CentroidsPath,
		}
		if n, err := diskUsageBytes(
			s.config.Storage.IndexPath,
			s.config.Storage.CentroidsPath,
			s.config.Storage.RecipesDBPath,
			s.config.Storage.RecipesSearchPath,
		); err == nil {
			resp["disk_usage_bytes"] = n
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// diskUsageBytes sums the sizes of the files at or under paths. Missing paths count as zero.
func diskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return 0, err
		}
	}
	return total, nil
}
