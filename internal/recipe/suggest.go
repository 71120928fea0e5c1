package recipe

import (
	"fmt"
	"sort"
	"strings"
)

// MaxSuggestDistance is the largest edit distance Suggest accepts.
const MaxSuggestDistance = 2

// Suggestion is a dish-name term close to a query term. Frequency is the number of dishes
// whose name contains the term.
type Suggestion struct {
	Term      string `json:"term"`
	Distance  int    `json:"distance"`
	Frequency int    `json:"frequency"`
}

// nameTerms returns every term in the name field with its document frequency.
func (s *SearchIndex) nameTerms() (map[string]int, error) {
	dict, err := s.index.FieldDict("name")
	if err != nil {
		return nil, fmt.Errorf("failed to read name terms: %w", err)
	}
	defer dict.Close()
	terms := make(map[string]int)
	for {
		entry, err := dict.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to read name terms: %w", err)
		}
		if entry == nil {
			break
		}
		terms[entry.Term] = int(entry.Count)
	}
	return terms, nil
}

// Suggest returns up to limit dish-name terms within MaxSuggestDistance edits of term,
// closest first, then most frequent, then alphabetical. An exact match is not a suggestion.
func (s *SearchIndex) Suggest(term string, limit int) ([]Suggestion, error) {
	terms, err := s.nameTerms()
	if err != nil {
		return nil, err
	}
	return suggestFrom(terms, strings.ToLower(Fold(term)), limit), nil
}

func suggestFrom(terms map[string]int, term string, limit int) []Suggestion {
	if term == "" || limit <= 0 {
		return nil
	}
	n := len([]rune(term))
	var out []Suggestion
	for t, freq := range terms {
		if t == term {
			continue
		}
		diff := len([]rune(t)) - n
		if diff > MaxSuggestDistance || -diff > MaxSuggestDistance {
			continue
		}
		if d := levenshtein(term, t); d <= MaxSuggestDistance {
			out = append(out, Suggestion{Term: t, Distance: d, Frequency: freq})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Correct replaces every query term that is not a dish-name term with its best suggestion.
// Terms with no suggestion are kept. The bool reports whether anything changed.
func (s *SearchIndex) Correct(query string) (string, bool, error) {
	terms, err := s.nameTerms()
	if err != nil {
		return "", false, err
	}
	words := strings.Fields(strings.ToLower(Fold(query)))
	changed := false
	for i, w := range words {
		if _, ok := terms[w]; ok {
			continue
		}
		if best := suggestFrom(terms, w, 1); len(best) > 0 {
			words[i] = best[0].Term
			changed = true
		}
	}
	return strings.Join(words, " "), changed, nil
}

// levenshtein is the number of single-rune insertions, deletions or substitutions
// turning a into b.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
