// Package indexer builds the reference-image index and class centroids from a folder of
// labelled dish photos.
package indexer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/ajimi/internal/fileid"
	"github.com/hyperjump/ajimi/internal/recipe"
	"go.uber.org/zap"
)

// Split names after normalization.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// ImageExtensions are the file extensions ScanManifest picks up.
var ImageExtensions = []string{".jpg", ".jpeg", ".png"}

var manifestHeader = []string{"image_path", "split", "split_raw", "food_name", "food_name_raw"}

// Row is one labelled image. FoodName is the normalized class label.
type Row struct {
	ImagePath   string
	Split       string
	SplitRaw    string
	FoodName    string
	FoodNameRaw string
}

// NormalizeSplit maps split folder names onto train, val and test. Unknown names are
// lowercased and kept.
func NormalizeSplit(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	switch s {
	case "train", "training":
		return SplitTrain
	case "val", "valid", "validation", "validate":
		return SplitVal
	case "test", "testing":
		return SplitTest
	}
	return s
}

// ScanManifest walks imagesDir laid out as {split}/{class}/*.{jpg,jpeg,png}. Splits and
// classes are visited in case-insensitive name order; classes whose name normalizes to an
// empty label are skipped.
func ScanManifest(imagesDir string, logger *zap.Logger) ([]Row, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	absDir, err := filepath.Abs(imagesDir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	splitDirs, err := subdirs(absDir)
	if err != nil {
		return nil, fmt.Errorf("images directory: %w", err)
	}

	var rows []Row
	for _, splitRaw := range splitDirs {
		split := NormalizeSplit(splitRaw)
		classDirs, err := subdirs(filepath.Join(absDir, splitRaw))
		if err != nil {
			return nil, err
		}
		if len(classDirs) == 0 {
			logger.Warn("no class folders under split", zap.String("split", splitRaw))
			continue
		}
		for _, classRaw := range classDirs {
			label := recipe.NormalizeKey(classRaw)
			if label == "" {
				logger.Warn("skipping class with empty normalized label", zap.String("folder", classRaw))
				continue
			}
			images, err := imageFiles(filepath.Join(absDir, splitRaw, classRaw))
			if err != nil {
				return nil, err
			}
			for _, img := range images {
				rows = append(rows, Row{
					ImagePath:   img,
					Split:       split,
					SplitRaw:    splitRaw,
					FoodName:    label,
					FoodNameRaw: classRaw,
				})
			}
		}
	}
	logger.Info("manifest scanned",
		zap.String("images_dir", absDir),
		zap.Int("images", len(rows)),
		zap.Int("classes", len(Classes(rows))),
		zap.Any("splits", SplitCounts(rows)))
	return rows, nil
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sortFold(names)
	return names, nil
}

func imageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && extensionAllowed(filepath.Ext(e.Name()), ImageExtensions) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func sortFold(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// FilterSplits returns the rows whose split is in splits, keeping order.
func FilterSplits(rows []Row, splits []string) []Row {
	want := make(map[string]bool, len(splits))
	for _, s := range splits {
		want[NormalizeSplit(s)] = true
	}
	var out []Row
	for _, r := range rows {
		if want[r.Split] {
			out = append(out, r)
		}
	}
	return out
}

// Classes returns the distinct labels in rows, sorted.
func Classes(rows []Row) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		if !seen[r.FoodName] {
			seen[r.FoodName] = true
			out = append(out, r.FoodName)
		}
	}
	sort.Strings(out)
	return out
}

// SplitCounts returns the number of rows per split.
func SplitCounts(rows []Row) map[string]int {
	out := make(map[string]int)
	for _, r := range rows {
		out[r.Split]++
	}
	return out
}

// WriteManifest writes rows as CSV to path.
func WriteManifest(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()
	if err := writeRows(f, rows); err != nil {
		return err
	}
	return f.Close()
}

func writeRows(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(manifestHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.ImagePath, r.Split, r.SplitRaw, r.FoodName, r.FoodNameRaw}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadManifest reads a manifest written by WriteManifest. Repeated image paths keep the first row.
func ReadManifest(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return readRows(f)
}

func readRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read manifest header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	for _, col := range []string{"image_path", "split", "food_name"} {
		if _, ok := pos[col]; !ok {
			return nil, fmt.Errorf("manifest is missing column %q", col)
		}
	}
	get := func(rec []string, col string) string {
		i, ok := pos[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	seen := make(map[string]bool)
	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		row := Row{
			ImagePath:   get(rec, "image_path"),
			Split:       NormalizeSplit(get(rec, "split")),
			SplitRaw:    get(rec, "split_raw"),
			FoodName:    get(rec, "food_name"),
			FoodNameRaw: get(rec, "food_name_raw"),
		}
		id := fileid.PathID(row.ImagePath)
		if row.ImagePath == "" || seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, row)
	}
	return rows, nil
}
