// Package recipe stores recipes keyed by normalized dish label and answers lookups
// for predicted classes.
package recipe

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Recipe is one dish's recipe. Key is the normalized class label.
type Recipe struct {
	Key             string `json:"key"`
	NameRaw         string `json:"name"`
	Title           string `json:"title,omitempty"`
	Ingredients     string `json:"ingredients"`
	Instructions    string `json:"instructions"`
	RawIngredients  string `json:"-"`
	RawInstructions string `json:"-"`
}

// DisplayName returns Title when set, else the raw name.
func (r *Recipe) DisplayName() string {
	if r.Title != "" {
		return r.Title
	}
	return r.NameRaw
}

// Lookup returns the recipe for a class label, or nil with no error when there is none.
type Lookup interface {
	GetRecipe(ctx context.Context, label string) (*Recipe, error)
}

// NormalizeKey maps a dish name to its class key: lowercase, diacritics removed,
// runs of anything other than a-z and 0-9 replaced by one underscore, no leading or
// trailing underscores. "Bánh Bèo" and "banh_beo" both give "banh_beo".
func NormalizeKey(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return ""
	}
	s = Fold(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// Fold removes combining marks and maps đ to d, keeping case.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), runes.Map(foldStroke), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func foldStroke(r rune) rune {
	switch r {
	case 'đ':
		return 'd'
	case 'Đ':
		return 'D'
	}
	return r
}

// CleanText turns CR into LF, trims every line and drops blank lines.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
