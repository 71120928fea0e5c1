package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "./artifacts/index"
	}
	if cfg.Storage.CentroidsPath == "" {
		cfg.Storage.CentroidsPath = "./artifacts/centroids.gob"
	}
	if cfg.Storage.RecipesDBPath == "" {
		cfg.Storage.RecipesDBPath = "./artifacts/recipes.db"
	}
	if cfg.Storage.RecipesSearchPath == "" {
		cfg.Storage.RecipesSearchPath = "./artifacts/recipes.bleve"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.ImageSize == 0 {
		cfg.Embedding.ImageSize = 224
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.InputName == "" {
		cfg.Embedding.InputName = "pixel_values"
	}
	if cfg.Embedding.OutputName == "" {
		cfg.Embedding.OutputName = "image_embeds"
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "auto"
	}
	if cfg.Vector.PartitionSize == 0 {
		cfg.Vector.PartitionSize = 4096
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.SimilarK == 0 {
		cfg.Retrieval.SimilarK = 3
	}
	if cfg.Retrieval.GroupK == 0 {
		cfg.Retrieval.GroupK = 5
	}
	if cfg.Session.Bias == 0 {
		cfg.Session.Bias = 0.15
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 30 * time.Minute
	}
	if cfg.Recipes.CSVPath == "" {
		cfg.Recipes.CSVPath = "./data/recipes.csv"
	}
	if cfg.Recipes.Columns.Food == "" {
		cfg.Recipes.Columns.Food = "class_name"
	}
	if cfg.Recipes.Columns.Ingredients == "" {
		cfg.Recipes.Columns.Ingredients = "ingredients"
	}
	if cfg.Recipes.Columns.Instructions == "" {
		cfg.Recipes.Columns.Instructions = "instructions"
	}
	if cfg.Recipes.Columns.Title == "" {
		cfg.Recipes.Columns.Title = "vietnamese_name"
	}
	if cfg.Build.ImagesDir == "" {
		cfg.Build.ImagesDir = "./data/Images"
	}
	if cfg.Build.ManifestPath == "" {
		cfg.Build.ManifestPath = "./artifacts/manifest.csv"
	}
	if cfg.Build.ReportPath == "" {
		cfg.Build.ReportPath = "./reports/eval_report.json"
	}
	if len(cfg.Build.Splits) == 0 {
		cfg.Build.Splits = []string{"train", "val"}
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
}
