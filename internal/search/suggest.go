package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	bsearch "github.com/blevesearch/bleve/v2/search"

	"github.com/docsift/docsift/internal/index"
)

// maxEditDistance bounds how far a suggested term may be from the typed one.
const maxEditDistance = 2

// suggest returns raw with every unknown single-word content clause replaced
// by the closest known content term, or "" when nothing would change.
// Candidates share the first letter of the typed word; ties go to the term
// found in more documents.
func suggest(src termSource, raw string) (string, error) {
	type replacement struct {
		start, end int
		term       string
	}
	var repl []replacement

	for _, it := range lexQuery(raw) {
		c := it.clause
		if it.op != "" || c.kind != clauseTerm || strings.ContainsAny(c.value, "*?") {
			continue
		}
		if c.field != "" && c.field != index.FieldContent {
			continue
		}

		terms, err := src.Analyze(index.FieldContent, c.value)
		if err != nil {
			return "", err
		}
		if len(terms) != 1 {
			continue
		}
		word := terms[0]

		df, err := src.DocFrequency(index.FieldContent, word)
		if err != nil {
			return "", err
		}
		if df > 0 {
			continue
		}

		best, err := closestTerm(src, word)
		if err != nil {
			return "", err
		}
		if best != "" {
			repl = append(repl, replacement{c.start, c.end, best})
		}
	}

	if len(repl) == 0 {
		return "", nil
	}

	var b strings.Builder
	last := 0
	for _, r := range repl {
		b.WriteString(raw[last:r.start])
		b.WriteString(r.term)
		last = r.end
	}
	b.WriteString(raw[last:])
	return b.String(), nil
}

func closestTerm(src termSource, word string) (string, error) {
	first, _ := utf8.DecodeRuneInString(word)
	candidates, err := src.Terms(index.FieldContent, string(first))
	if err != nil {
		return "", err
	}

	type scored struct {
		term  string
		dist  int
		count uint64
	}
	var matches []scored
	for _, c := range candidates {
		d, exceeded := bsearch.LevenshteinDistanceMax(word, c.Term, maxEditDistance)
		if exceeded || d > maxEditDistance {
			continue
		}
		matches = append(matches, scored{c.Term, d, c.Count})
	}
	if len(matches) == 0 {
		return "", nil
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].dist != matches[j].dist {
			return matches[i].dist < matches[j].dist
		}
		if matches[i].count != matches[j].count {
			return matches[i].count > matches[j].count
		}
		return matches[i].term < matches[j].term
	})
	return matches[0].term, nil
}
