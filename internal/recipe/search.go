package recipe

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// SearchHit is one dish matching a free-text query.
type SearchHit struct {
	Key   string  `json:"key"`
	Score float64 `json:"score"`
}

// SearchIndex is a full-text index over dish names and ingredients, used to pick the
// right dish when correcting a prediction.
type SearchIndex struct {
	index bleve.Index
}

type searchDoc struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Ingredients string `json:"ingredients"`
}

// NewSearchIndex creates or opens a Bleve index at path. An empty path gives an in-memory index.
func NewSearchIndex(path string) (*SearchIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase + tokenize, no stemming. Text is folded to ASCII before indexing.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	docMapping.AddFieldMappingsAt("ingredients", textFieldMapping)
	docMapping.AddFieldMappingsAt("key", bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("dish", docMapping)
	im.DefaultType = "dish"
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &SearchIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &SearchIndex{index: index}, nil
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &SearchIndex{index: index}, nil
}

// Index adds or replaces a recipe.
func (s *SearchIndex) Index(ctx context.Context, r *Recipe) error {
	names := []string{strings.ReplaceAll(r.Key, "_", " "), Fold(r.NameRaw)}
	if r.Title != "" {
		names = append(names, Fold(r.Title))
	}
	return s.index.Index(r.Key, searchDoc{
		Key:         r.Key,
		Name:        strings.Join(names, " "),
		Ingredients: Fold(r.Ingredients),
	})
}

// Search returns up to limit dishes matching query, with typo tolerance on names.
// Name matches outrank ingredient matches.
func (s *SearchIndex) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	terms := strings.Fields(strings.ToLower(Fold(query)))
	if len(terms) == 0 || limit <= 0 {
		return []SearchHit{}, nil
	}
	queries := make([]blevequery.Query, 0, 2*len(terms))
	for _, term := range terms {
		fuzzy := len([]rune(term)) > 3
		if fuzzy {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetField("name")
			fq.SetFuzziness(1)
			fq.SetBoost(3)
			queries = append(queries, fq)
		} else {
			tq := bleve.NewTermQuery(term)
			tq.SetField("name")
			tq.SetBoost(3)
			queries = append(queries, tq)
		}

		mq := bleve.NewMatchQuery(term)
		mq.SetField("ingredients")
		if fuzzy {
			mq.SetFuzziness(1)
		}
		queries = append(queries, mq)
	}
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(queries...))
	req.Size = limit
	results, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]SearchHit, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = SearchHit{Key: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// DocCount returns the number of indexed dishes.
func (s *SearchIndex) DocCount() (uint64, error) {
	return s.index.DocCount()
}

// Close closes the Bleve index.
func (s *SearchIndex) Close() error {
	return s.index.Close()
}
