// Package matching decides whether classification rules apply to document
// text, and selects the correspondents, document types, tags and storage
// paths a document should receive.
package matching

import (
	"fmt"
	"strings"
)

// Algorithm selects how a rule's match expression is applied. The numeric
// values are the ones stored by the document-of-record.
type Algorithm int

// Matching algorithms.
const (
	AlgorithmNone    Algorithm = 0
	AlgorithmAny     Algorithm = 1
	AlgorithmAll     Algorithm = 2
	AlgorithmLiteral Algorithm = 3
	AlgorithmRegex   Algorithm = 4
	AlgorithmFuzzy   Algorithm = 5
	AlgorithmAuto    Algorithm = 6
)

var algorithmNames = map[Algorithm]string{
	AlgorithmNone:    "none",
	AlgorithmAny:     "any",
	AlgorithmAll:     "all",
	AlgorithmLiteral: "literal",
	AlgorithmRegex:   "regex",
	AlgorithmFuzzy:   "fuzzy",
	AlgorithmAuto:    "auto",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("algorithm(%d)", int(a))
}

// ParseAlgorithm accepts an algorithm name or its numeric value.
func ParseAlgorithm(s string) (Algorithm, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, name := range algorithmNames {
		if s == name || s == fmt.Sprint(int(a)) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown matching algorithm %q", s)
}

// Rule is the matching configuration of a rule-bearing entity.
type Rule struct {
	Algorithm       Algorithm
	Match           string
	CaseInsensitive bool
}

// Entity is a correspondent, document type, tag or storage path together
// with its rule.
type Entity struct {
	ID   int64
	Name string
	Rule Rule
}

// Document is the text a rule set is evaluated against.
type Document struct {
	ID      int64
	Title   string
	Content string
}
