package search

import (
	"context"
	"math"
	"sort"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/docsift/docsift/internal/index"
)

// DefaultMoreLikeTerms is the number of key terms a similarity query uses.
const DefaultMoreLikeTerms = 20

// ContentSource provides document content from the document-of-record.
// A missing document is reported with an errors.NotFound error.
type ContentSource interface {
	DocumentContent(ctx context.Context, id int64) (string, error)
}

// KeyTerm is a term of a reference text and its weight.
type KeyTerm struct {
	Term   string
	Weight float64
}

// KeyTerms extracts the n most distinctive content terms of text using the
// Bo1 divergence-from-randomness model. Weights are scaled so the best term
// has weight 1. Terms unknown to the index are skipped.
func KeyTerms(src termSource, text string, n int) ([]KeyTerm, error) {
	tokens, err := src.Analyze(index.FieldContent, text)
	if err != nil {
		return nil, err
	}

	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}

	docs, err := src.DocCount()
	if err != nil {
		return nil, err
	}
	if docs == 0 {
		return nil, nil
	}

	terms := make([]KeyTerm, 0, len(tf))
	for term, freq := range tf {
		df, err := src.DocFrequency(index.FieldContent, term)
		if err != nil {
			return nil, err
		}
		if df == 0 {
			continue
		}
		terms = append(terms, KeyTerm{Term: term, Weight: bo1(float64(freq), float64(df), float64(docs))})
	}

	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Weight != terms[j].Weight {
			return terms[i].Weight > terms[j].Weight
		}
		return terms[i].Term < terms[j].Term
	})
	if len(terms) > n {
		terms = terms[:n]
	}

	if len(terms) > 0 && terms[0].Weight > 0 {
		best := terms[0].Weight
		for i := range terms {
			terms[i].Weight /= best
		}
	}
	return terms, nil
}

// bo1 weighs a term seen tf times in the reference text and in df of n
// documents of the collection.
func bo1(tf, df, n float64) float64 {
	f := df / n
	return tf*math.Log2((1+f)/f) + math.Log2(1+f)
}

// moreLikeQuery ORs the key terms of the reference document, each boosted by
// its weight, and masks the reference document itself.
func moreLikeQuery(ctx context.Context, src termSource, content ContentSource, id int64, n int) (query.Query, []string, error) {
	text, err := content.DocumentContent(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	terms, err := KeyTerms(src, text, n)
	if err != nil {
		return nil, nil, err
	}

	mask := []string{strconv.FormatInt(id, 10)}
	if len(terms) == 0 {
		return bleve.NewMatchNoneQuery(), mask, nil
	}

	disjuncts := make([]query.Query, 0, len(terms))
	for _, t := range terms {
		q := bleve.NewTermQuery(t.Term)
		q.SetField(index.FieldContent)
		q.SetBoost(t.Weight)
		disjuncts = append(disjuncts, q)
	}
	return bleve.NewDisjunctionQuery(disjuncts...), mask, nil
}
