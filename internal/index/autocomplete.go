package index

import (
	"math"
	"sort"
	"strings"
)

// Autocomplete returns up to limit content terms starting with prefix
// (lowercased), most distinctive first. Distinctiveness is df*ln(N/df), so
// terms present in every document rank last.
func Autocomplete(r *Reader, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	total, err := r.DocCount()
	if err != nil {
		return nil, err
	}
	entries, err := r.Terms(FieldContent, strings.ToLower(prefix))
	if err != nil {
		return nil, err
	}

	type scored struct {
		term  string
		score float64
	}
	ranked := make([]scored, 0, len(entries))
	for _, e := range entries {
		if e.Count == 0 {
			continue
		}
		df := float64(e.Count)
		ranked = append(ranked, scored{term: e.Term, score: df * math.Log(float64(total)/df)})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].term < ranked[j].term
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	terms := make([]string, len(ranked))
	for i, s := range ranked {
		terms[i] = s.term
	}
	return terms, nil
}
