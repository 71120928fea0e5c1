package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hyperjump/ajimi/internal/cli"
	"github.com/hyperjump/ajimi/internal/embedding"
	"github.com/hyperjump/ajimi/internal/evaluation"
	"github.com/hyperjump/ajimi/internal/indexer"
	"github.com/hyperjump/ajimi/internal/recipe"
	"github.com/hyperjump/ajimi/internal/recommender"
	"github.com/hyperjump/ajimi/internal/server"
	"github.com/hyperjump/ajimi/internal/session"
	"github.com/hyperjump/ajimi/internal/vector"
	"github.com/hyperjump/ajimi/internal/watcher"
	"go.uber.org/zap"
)

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	common := newCommandFlags(fs)
	_ = fs.Parse(args)
	cfg, logger := common.setup()
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessOpts := []session.ManagerOption{session.WithTTL(cfg.Session.TTL), session.WithLogger(logger)}
	if !cfg.Session.PersonalizationEnabled() {
		sessOpts = append(sessOpts, session.WithPersonalizationDisabled())
	}
	sessions := session.NewManager(sessOpts...)
	go sessions.Run(ctx)

	if cfg.Watch.Enabled {
		rec := components.Recommender
		w := watcher.NewWatcher(
			[]string{cfg.Storage.IndexPath, cfg.Storage.CentroidsPath},
			func() {
				if err := rec.Reload(); err != nil {
					logger.Error("artifact reload failed; keeping the loaded index", zap.Error(err))
				}
			},
			watcher.WithDebounce(cfg.Watch.Debounce),
			watcher.WithLogger(logger),
		)
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	var dishes server.DishSearcher
	if components.Search != nil {
		dishes = components.Search
	}
	srv := server.NewServer(components.Recommender, sessions, dishes, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runManifest(args []string) {
	fs := flag.NewFlagSet("manifest", flag.ExitOnError)
	common := newCommandFlags(fs)
	imagesDir := fs.String("images", "", "image folder (default from config)")
	out := fs.String("out", "", "manifest path (default from config)")
	_ = fs.Parse(args)
	cfg, logger := common.setup()
	defer logger.Sync()

	if *imagesDir == "" {
		*imagesDir = cfg.Build.ImagesDir
	}
	if *out == "" {
		*out = cfg.Build.ManifestPath
	}
	rows, err := indexer.ScanManifest(*imagesDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Fprintf(os.Stderr, "No images found under %s\n", *imagesDir)
		os.Exit(1)
	}
	if err := indexer.WriteManifest(*out, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Write failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d images (%d classes) to %s\n", len(rows), len(indexer.Classes(rows)), *out)
	for split, n := range indexer.SplitCounts(rows) {
		fmt.Printf("  %-8s %d\n", split, n)
	}
}

// loadManifest reads the manifest at path, scanning imagesDir and writing it first when it
// does not exist.
func loadManifest(path, imagesDir string, logger *zap.Logger) ([]indexer.Row, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("manifest not found; scanning images", zap.String("images_dir", imagesDir))
		rows, err := indexer.ScanManifest(imagesDir, logger)
		if err != nil {
			return nil, err
		}
		if err := indexer.WriteManifest(path, rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
	return indexer.ReadManifest(path)
}

func runBuildIndex(args []string) {
	fs := flag.NewFlagSet("build-index", flag.ExitOnError)
	common := newCommandFlags(fs)
	manifestPath := fs.String("manifest", "", "manifest path (default from config)")
	withCentroids := fs.Bool("centroids", true, "also build class centroids")
	_ = fs.Parse(args)
	cfg, logger := common.setup()
	defer logger.Sync()

	if *manifestPath == "" {
		*manifestPath = cfg.Build.ManifestPath
	}
	rows, err := loadManifest(*manifestPath, cfg.Build.ImagesDir, logger)
	if err != nil {
		logger.Fatal("Failed to load manifest", zap.Error(err))
	}
	enc, err := newEncoder(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize encoder", zap.Error(err))
	}
	defer enc.Close()
	vecOpts, err := vectorOptions(cfg, logger)
	if err != nil {
		logger.Fatal("Invalid vector config", zap.Error(err))
	}

	b := indexer.NewBuilder(enc,
		indexer.WithSplits(cfg.Build.Splits),
		indexer.WithWorkers(cfg.Build.Workers),
		indexer.WithVectorOptions(vecOpts...),
		indexer.WithLogger(logger))
	idx, stats, err := b.BuildAndSaveIndex(context.Background(), rows, cfg.Storage.IndexPath)
	if err != nil {
		logger.Fatal("Index build failed", zap.Error(err))
	}
	defer idx.Close()
	fmt.Printf("Indexed %d images (%d skipped, %d classes) into %s [%s]\n",
		stats.Indexed, stats.Skipped, stats.Classes, cfg.Storage.IndexPath, idx.Backend())

	if *withCentroids {
		store, err := b.BuildCentroids(idx, cfg.Storage.CentroidsPath)
		if err != nil {
			logger.Fatal("Centroid build failed", zap.Error(err))
		}
		fmt.Printf("Wrote %d centroids to %s\n", store.Len(), cfg.Storage.CentroidsPath)
	}
}

func runBuildCentroids(args []string) {
	fs := flag.NewFlagSet("build-centroids", flag.ExitOnError)
	common := newCommandFlags(fs)
	_ = fs.Parse(args)
	cfg, logger := common.setup()
	defer logger.Sync()

	idx, err := vector.Load(cfg.Storage.IndexPath, vector.WithBackend(vector.BackendBruteForce), vector.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to load index (did you run ajimi build-index?)", zap.Error(err))
	}
	defer idx.Close()
	store, err := indexer.NewBuilder(nil, indexer.WithLogger(logger)).BuildCentroids(idx, cfg.Storage.CentroidsPath)
	if err != nil {
		logger.Fatal("Centroid build failed", zap.Error(err))
	}
	fmt.Printf("Wrote %d centroids to %s\n", store.Len(), cfg.Storage.CentroidsPath)
}

func runImportRecipes(args []string) {
	fs := flag.NewFlagSet("import-recipes", flag.ExitOnError)
	common := newCommandFlags(fs)
	csvPath := fs.String("csv", "", "recipes CSV path (default from config)")
	_ = fs.Parse(args)
	cfg, logger := common.setup()
	defer logger.Sync()

	if *csvPath == "" {
		*csvPath = cfg.Recipes.CSVPath
	}
	store, err := recipe.NewSQLiteStore(cfg.Storage.RecipesDBPath)
	if err != nil {
		logger.Fatal("Failed to open recipe store", zap.Error(err))
	}
	defer store.Close()
	search, err := recipe.NewSearchIndex(cfg.Storage.RecipesSearchPath)
	if err != nil {
		logger.Fatal("Failed to open dish search index", zap.Error(err))
	}
	defer search.Close()

	cols := recipe.Columns{
		Food:         cfg.Recipes.Columns.Food,
		Ingredients:  cfg.Recipes.Columns.Ingredients,
		Instructions: cfg.Recipes.Columns.Instructions,
		Title:        cfg.Recipes.Columns.Title,
	}
	stats, err := recipe.ImportCSV(context.Background(), *csvPath, cols, store, search, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d recipes from %d rows (%d duplicates, %d dropped)\n",
		stats.Recipes, stats.Rows, stats.Duplicates, stats.Dropped)
}

func runPredict(args []string) {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	common := newCommandFlags(fs)
	outputFormat := fs.String("output", "text", "output format: text or json")
	serverURL := fs.String("server", "", "server URL (empty = predict locally)")
	sessionID := fs.String("session", "", "session id for personalized ranking (server mode)")
	_ = fs.Parse(argsReorder(args))

	if fs.NArg() < 1 {
		fmt.Println("Usage: ajimi predict [flags] <image>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	imagePath := fs.Arg(0)

	var pred *recommender.Prediction
	if *serverURL != "" {
		pred, err = predictViaHTTP(*serverURL, imagePath, *sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Prediction failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, logger := common.setup()
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()
		img, err := embedding.LoadImage(imagePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
			os.Exit(1)
		}
		pred, err = components.Recommender.PredictImage(context.Background(), img, session.NewFeedback())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Prediction failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WritePrediction(os.Stdout, pred, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func predictViaHTTP(serverURL, imagePath, sessionID string) (*recommender.Prediction, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if sessionID != "" {
		if err := mw.WriteField("session_id", sessionID); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/predict", mw.FormDataContentType(), &body)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var pred recommender.Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &pred, nil
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	common := newCommandFlags(fs)
	limit := fs.Int("limit", 10, "number of results")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))

	query := joinQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: ajimi search [flags] <query>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, logger := common.setup()
	defer logger.Sync()

	search, err := recipe.NewSearchIndex(cfg.Storage.RecipesSearchPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open dish search index (is the server running?): %v\n", err)
		os.Exit(1)
	}
	defer search.Close()
	hits, err := search.Search(context.Background(), query, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchHits(os.Stdout, query, hits, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if len(hits) == 0 && format == cli.OutputText {
		if corrected, changed, err := search.Correct(query); err == nil && changed {
			fmt.Printf("Did you mean: %s\n", corrected)
		}
	}
}

func runEvaluate(args []string) {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	common := newCommandFlags(fs)
	manifestPath := fs.String("manifest", "", "manifest path (default from config)")
	reportPath := fs.String("report", "", "report path (default from config)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, logger := common.setup()
	defer logger.Sync()

	if *manifestPath == "" {
		*manifestPath = cfg.Build.ManifestPath
	}
	if *reportPath == "" {
		*reportPath = cfg.Build.ReportPath
	}
	rows, err := indexer.ReadManifest(*manifestPath)
	if err != nil {
		logger.Fatal("Failed to read manifest", zap.Error(err))
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	report, err := evaluation.Evaluate(context.Background(), components.Recommender, rows, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Evaluation failed: %v\n", err)
		os.Exit(1)
	}
	if err := report.WriteJSON(*reportPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteReport(os.Stdout, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if format == cli.OutputText {
		fmt.Printf("\nReport saved to %s\n", *reportPath)
	}
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Index          recommender.Status     `json:"index"`
	Sessions       int                    `json:"sessions"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	status, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("backend:            %s\n", status.Index.Backend)
		fmt.Printf("entries:            %d   # reference images in the index\n", status.Index.Entries)
		fmt.Printf("dimension:          %d\n", status.Index.Dimension)
		fmt.Printf("centroids:          %d   # classes with a centroid\n", status.Index.Centroids)
		fmt.Printf("groups:             %d\n", status.Index.Groups)
		fmt.Printf("sessions:           %d\n", status.Sessions)
		if !status.Index.LoadedAt.IsZero() {
			fmt.Printf("loaded_at:          %s\n", status.Index.LoadedAt.Format(time.RFC3339))
		}
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:   %d   # artifacts on disk\n", *status.DiskUsageBytes)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}
