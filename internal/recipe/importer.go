package recipe

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Columns names the CSV headers holding each recipe field. Title is optional.
type Columns struct {
	Food         string `yaml:"food"`
	Ingredients  string `yaml:"ingredients"`
	Instructions string `yaml:"instructions"`
	Title        string `yaml:"title"`
}

// DefaultColumns returns the header names of the bundled recipes CSV.
func DefaultColumns() Columns {
	return Columns{
		Food:         "class_name",
		Ingredients:  "ingredients",
		Instructions: "instructions",
		Title:        "vietnamese_name",
	}
}

// ImportStats summarizes a CSV import.
type ImportStats struct {
	Rows       int
	Dropped    int
	Duplicates int
	Recipes    int
}

// ParseCSV reads recipes from r. Rows whose name normalizes to an empty key are dropped.
// When several rows share a key the one with the longest instructions wins, the earliest on ties.
func ParseCSV(r io.Reader, cols Columns) ([]*Recipe, ImportStats, error) {
	var stats ImportStats
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("failed to read CSV header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, c := range []string{cols.Food, cols.Ingredients, cols.Instructions} {
		if _, ok := pos[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, stats, fmt.Errorf("missing required columns %v (available: %v)", missing, header)
	}
	titleCol, hasTitle := pos[cols.Title]

	field := func(rec []string, i int) string {
		if i < len(rec) {
			return rec[i]
		}
		return ""
	}

	best := make(map[string]*Recipe)
	bestLen := make(map[string]int)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("failed to read CSV row %d: %w", stats.Rows+2, err)
		}
		stats.Rows++
		name := strings.TrimSpace(field(rec, pos[cols.Food]))
		key := NormalizeKey(name)
		if key == "" {
			stats.Dropped++
			continue
		}
		rawIng := field(rec, pos[cols.Ingredients])
		rawInstr := field(rec, pos[cols.Instructions])
		n := utf8.RuneCountInString(rawInstr)
		if prev, ok := bestLen[key]; ok {
			stats.Duplicates++
			if n <= prev {
				continue
			}
		}
		r := &Recipe{
			Key:             key,
			NameRaw:         name,
			Ingredients:     CleanText(rawIng),
			Instructions:    CleanText(rawInstr),
			RawIngredients:  rawIng,
			RawInstructions: rawInstr,
		}
		if hasTitle {
			r.Title = strings.TrimSpace(field(rec, titleCol))
		}
		best[key] = r
		bestLen[key] = n
	}

	keys := make([]string, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Recipe, len(keys))
	for i, k := range keys {
		out[i] = best[k]
	}
	stats.Recipes = len(out)
	return out, stats, nil
}

// ImportCSV parses the CSV at path and writes the recipes to store and, when non-nil, to index.
func ImportCSV(ctx context.Context, path string, cols Columns, store *SQLiteStore, index *SearchIndex, logger *zap.Logger) (ImportStats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("failed to open recipes CSV: %w", err)
	}
	defer f.Close()

	recipes, stats, err := ParseCSV(f, cols)
	if err != nil {
		return stats, err
	}
	if stats.Dropped > 0 {
		logger.Warn("dropped rows with empty normalized key", zap.Int("count", stats.Dropped))
	}
	if err := store.BatchUpsert(ctx, recipes); err != nil {
		return stats, fmt.Errorf("failed to store recipes: %w", err)
	}
	if index != nil {
		for _, r := range recipes {
			if err := index.Index(ctx, r); err != nil {
				return stats, fmt.Errorf("failed to index recipe %s: %w", r.Key, err)
			}
		}
	}
	logger.Info("recipes imported",
		zap.String("path", path),
		zap.Int("rows", stats.Rows),
		zap.Int("recipes", stats.Recipes),
		zap.Int("duplicates", stats.Duplicates))
	return stats, nil
}
