// Package config provides configuration loading and structs for the ajimi server and tools.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Session   SessionConfig   `yaml:"session"`
	Recipes   RecipesConfig   `yaml:"recipes"`
	Build     BuildConfig     `yaml:"build"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds artifact and database paths.
type StorageConfig struct {
	IndexPath         string `yaml:"index_path"`
	CentroidsPath     string `yaml:"centroids_path"`
	RecipesDBPath     string `yaml:"recipes_db_path"`
	RecipesSearchPath string `yaml:"recipes_search_path"`
	// GroupsPath is optional; the built-in dish groups are used when empty.
	GroupsPath string `yaml:"groups_path"`
}

// EmbeddingConfig holds image encoder settings. An empty model path selects the mock encoder.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	ImageSize  int    `yaml:"image_size"`
	CacheSize  int    `yaml:"cache_size"`
	InputName  string `yaml:"input_name"`
	OutputName string `yaml:"output_name"`
}

// VectorConfig holds index backend settings.
type VectorConfig struct {
	Backend       string `yaml:"backend"`
	PartitionSize int    `yaml:"partition_size"`
}

// RetrievalConfig holds prediction settings.
type RetrievalConfig struct {
	TopK                 int      `yaml:"top_k"`
	UncertaintyThreshold *float64 `yaml:"uncertainty_threshold"`
	SimilarK             int      `yaml:"similar_k"`
	GroupK               int      `yaml:"group_k"`
}

// Threshold returns the uncertainty threshold. An explicit 0 is kept, so no prediction is
// ever uncertain; unset defaults to 0.6.
func (r *RetrievalConfig) Threshold() float64 {
	if r.UncertaintyThreshold != nil {
		return *r.UncertaintyThreshold
	}
	return 0.6
}

// SessionConfig holds feedback session settings.
type SessionConfig struct {
	Bias            float64       `yaml:"bias"`
	TTL             time.Duration `yaml:"ttl"`
	Personalization *bool         `yaml:"personalization"`
}

// PersonalizationEnabled returns whether feedback re-ranks predictions; defaults to true when unset.
func (s *SessionConfig) PersonalizationEnabled() bool {
	if s.Personalization != nil {
		return *s.Personalization
	}
	return true
}

// RecipesConfig locates the recipes CSV and names its columns.
type RecipesConfig struct {
	CSVPath string        `yaml:"csv_path"`
	Columns ColumnsConfig `yaml:"columns"`
}

// ColumnsConfig names the recipe CSV columns. Title is optional.
type ColumnsConfig struct {
	Food         string `yaml:"food"`
	Ingredients  string `yaml:"ingredients"`
	Instructions string `yaml:"instructions"`
	Title        string `yaml:"title"`
}

// BuildConfig holds index build settings.
type BuildConfig struct {
	ImagesDir    string   `yaml:"images_dir"`
	ManifestPath string   `yaml:"manifest_path"`
	ReportPath   string   `yaml:"report_path"`
	Splits       []string `yaml:"splits"`
	Workers      int      `yaml:"workers"`
}

// WatchConfig holds artifact reload settings.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, applies defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.finish(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default configuration with paths relative to baseDir.
func Default(baseDir string) *Config {
	var cfg Config
	_ = cfg.finish(baseDir)
	return &cfg
}

func (c *Config) finish(configDir string) error {
	ApplyDefaults(c)
	if err := c.Validate(); err != nil {
		return err
	}
	for _, p := range []*string{
		&c.Storage.IndexPath,
		&c.Storage.CentroidsPath,
		&c.Storage.RecipesDBPath,
		&c.Storage.RecipesSearchPath,
		&c.Storage.GroupsPath,
		&c.Embedding.ModelPath,
		&c.Recipes.CSVPath,
		&c.Build.ImagesDir,
		&c.Build.ManifestPath,
		&c.Build.ReportPath,
	} {
		*p = expandPath(*p, configDir)
	}
	return nil
}

// Validate reports settings that have no sensible interpretation.
func (c *Config) Validate() error {
	switch {
	case c.Retrieval.TopK <= 0:
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	case c.Retrieval.Threshold() < 0 || c.Retrieval.Threshold() > 1:
		return fmt.Errorf("retrieval.uncertainty_threshold must be within [0, 1], got %v", c.Retrieval.Threshold())
	case c.Session.Bias < 0:
		return fmt.Errorf("session.bias must not be negative, got %v", c.Session.Bias)
	case c.Embedding.Dimensions <= 0:
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" is the home directory; other relative paths are relative to configDir as well.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	if abs, err := filepath.Abs(filepath.Join(configDir, path)); err == nil {
		return abs
	}
	return filepath.Join(configDir, path)
}
