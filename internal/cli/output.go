// Package cli renders predictions and reports for the ajimi command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/ajimi/internal/evaluation"
	"github.com/hyperjump/ajimi/internal/recipe"
	"github.com/hyperjump/ajimi/internal/recommender"
	"github.com/hyperjump/ajimi/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// instructionPreview bounds how much of a recipe's instructions text output shows.
const instructionPreview = 400

// ParseFormat validates an output format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WritePrediction writes a prediction to w in the given format.
func WritePrediction(w io.Writer, p *recommender.Prediction, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, p)
	}
	writePredictionText(w, p)
	return nil
}

func writePredictionText(w io.Writer, p *recommender.Prediction) {
	fmt.Fprintf(w, "\nPrediction: %s (confidence %.4f)\n", displayName(p.TopClass, p.Recipe), p.Confidence)
	if p.IsUncertain {
		fmt.Fprintln(w, "Low confidence: the photo may not match any known dish closely.")
	}
	if p.Personalized && p.PersonalizedTop != p.TopClass {
		fmt.Fprintf(w, "Personalized pick: %s\n", p.PersonalizedTop)
	}

	fmt.Fprintln(w, "\n--- Ranked dishes ---")
	for i, c := range p.Ranked {
		marker := ""
		switch {
		case c.Liked:
			marker = " [liked]"
		case c.Disliked:
			marker = " [disliked]"
		}
		fmt.Fprintf(w, "%2d. %-24s %.4f%s\n", i+1, c.ClassLabel, c.Score, marker)
	}

	fmt.Fprintln(w, "\n--- Nearest reference images ---")
	for _, n := range p.Neighbors {
		fmt.Fprintf(w, "  %.4f  %-20s %s\n", n.Similarity, n.ClassLabel, n.SourceRef)
	}

	if len(p.SimilarDishes) > 0 {
		fmt.Fprintf(w, "\nLooks similar: %s\n", strings.Join(p.SimilarDishes, ", "))
	}
	if len(p.GroupMembers) > 0 {
		fmt.Fprintf(w, "Also in %s: %s\n", p.GroupName, strings.Join(p.GroupMembers, ", "))
	}

	if p.Recipe == nil {
		fmt.Fprintln(w, "\nNo recipe available.")
		return
	}
	writeRecipeText(w, p.Recipe)
}

func writeRecipeText(w io.Writer, r *recipe.Recipe) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Recipe: %s\n", r.DisplayName())
	if r.Ingredients != "" {
		fmt.Fprintf(w, "\nIngredients:\n%s\n", r.Ingredients)
	}
	if r.Instructions != "" {
		fmt.Fprintf(w, "\nInstructions:\n%s\n", utils.Truncate(r.Instructions, instructionPreview))
	}
	fmt.Fprintln(w)
}

func displayName(label string, r *recipe.Recipe) string {
	if r != nil && r.DisplayName() != "" {
		return fmt.Sprintf("%s (%s)", r.DisplayName(), label)
	}
	return label
}

// WriteReport writes an evaluation report summary to w in the given format.
// JSON output includes the per-image details.
func WriteReport(w io.Writer, r *evaluation.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, r)
	}
	fmt.Fprintln(w, "Evaluation Report")
	fmt.Fprintln(w, "=================")
	fmt.Fprintf(w, "Split:          %s\n", r.Split)
	fmt.Fprintf(w, "Images:         %d (%d failed)\n", r.Images, r.Failed)
	fmt.Fprintf(w, "Top-1 Accuracy: %.4f\n", r.Metrics.Top1Accuracy)
	fmt.Fprintf(w, "Top-K Hit Rate: %.4f\n", r.Metrics.TopKHitRate)
	fmt.Fprintf(w, "MRR:            %.4f\n", r.Metrics.MRR)
	return nil
}

// WriteSearchHits writes dish search results to w in the given format.
func WriteSearchHits(w io.Writer, query string, hits []recipe.SearchHit, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"query": query, "results": hits})
	}
	fmt.Fprintf(w, "Found %d dishes for %q\n", len(hits), query)
	for i, h := range hits {
		fmt.Fprintf(w, "%2d. %-24s %.4f\n", i+1, h.Key, h.Score)
	}
	return nil
}
