package search

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/docsift/docsift/internal/index"
)

// allField is the composite field holding every free-text field.
const allField = "_all"

// termSource is the part of an index reader the query variants need.
type termSource interface {
	Analyze(field, text string) ([]string, error)
	Terms(field, prefix string) ([]index.TermEntry, error)
	DocFrequency(field, term string) (uint64, error)
	DocCount() (uint64, error)
}

type clauseKind int

const (
	clauseTerm clauseKind = iota
	clausePhrase
	clauseRange
)

// clause is one unit of a free-text query, such as `invoice`, `-draft`,
// `title:"march bill"` or `created:[2020 to 2021]`.
type clause struct {
	field   string
	value   string
	kind    clauseKind
	negated bool
	// offsets of value in the raw query, used to build suggestions
	start, end int
}

// item is either a clause or one of the operators OR, AND, NOT.
type item struct {
	op     string
	clause clause
}

var (
	fieldPrefixRe = regexp.MustCompile(`^([A-Za-z_]+):`)
	relativeNumRe = regexp.MustCompile(`^[+-]\d+$`)
)

var textFields = map[string]bool{
	index.FieldContent:       true,
	index.FieldTitle:         true,
	index.FieldCorrespondent: true,
	index.FieldTag:           true,
	index.FieldType:          true,
	index.FieldNotes:         true,
	index.FieldPath:          true,
	index.FieldOwner:         true,
}

var dateFields = map[string]bool{
	index.FieldCreated:  true,
	index.FieldModified: true,
	index.FieldAdded:    true,
}

var numericFields = map[string]bool{
	index.FieldASN: true,
	index.FieldID:  true,
}

func knownField(name string) bool {
	return textFields[name] || dateFields[name] || numericFields[name]
}

// lexQuery splits a free-text query into clauses and operators. It never
// fails: unbalanced quotes or brackets run to the end of the input.
func lexQuery(src string) []item {
	var items []item
	pos := 0

	for {
		pos = skipSpace(src, pos)
		if pos >= len(src) {
			return items
		}

		var c clause
		if src[pos] == '-' || src[pos] == '+' {
			c.negated = src[pos] == '-'
			pos++
			if pos >= len(src) || isSpaceAt(src, pos) {
				continue
			}
		}

		if m := fieldPrefixRe.FindStringSubmatch(src[pos:]); m != nil && knownField(strings.ToLower(m[1])) {
			c.field = strings.ToLower(m[1])
			pos += len(m[0])
		}

		switch {
		case pos < len(src) && src[pos] == '"':
			c.kind = clausePhrase
			c.start = pos + 1
			end := strings.IndexByte(src[c.start:], '"')
			if end < 0 {
				c.end, pos = len(src), len(src)
			} else {
				c.end = c.start + end
				pos = c.end + 1
			}
		case pos < len(src) && src[pos] == '[':
			c.kind = clauseRange
			c.start = pos
			end := strings.IndexByte(src[pos:], ']')
			if end < 0 {
				c.end = len(src)
			} else {
				c.end = pos + end + 1
			}
			pos = c.end
		default:
			c.kind = clauseTerm
			c.start = pos
			pos = wordEnd(src, pos)
			c.end = pos

			// "last week", "-3 days" span two words
			if dateFields[c.field] {
				word := strings.ToLower(src[c.start:c.end])
				if word == "this" || word == "last" || relativeNumRe.MatchString(word) {
					next := skipSpace(src, pos)
					if next < len(src) {
						pos = wordEnd(src, next)
						c.end = pos
					}
				}
			}
		}
		c.value = src[c.start:c.end]

		if c.field == "" && !c.negated && c.kind == clauseTerm {
			switch c.value {
			case "OR", "AND", "NOT":
				items = append(items, item{op: c.value})
				continue
			}
		}
		items = append(items, item{clause: c})
	}
}

func isSpaceAt(s string, pos int) bool {
	r, _ := utf8.DecodeRuneInString(s[pos:])
	return unicode.IsSpace(r)
}

func skipSpace(s string, pos int) int {
	for pos < len(s) {
		r, size := utf8.DecodeRuneInString(s[pos:])
		if !unicode.IsSpace(r) {
			break
		}
		pos += size
	}
	return pos
}

func wordEnd(s string, pos int) int {
	for pos < len(s) {
		r, size := utf8.DecodeRuneInString(s[pos:])
		if unicode.IsSpace(r) {
			break
		}
		pos += size
	}
	return pos
}

// fullTextCompiler builds the primary query of the full-text variant.
type fullTextCompiler struct {
	src termSource
	now time.Time
}

// compile turns the raw query into a bleve query. Clauses are ANDed;
// OR joins neighbouring clauses into one alternative; NOT and "-" exclude.
// Clauses that analyze to nothing (stop words, punctuation) are dropped.
// A nil query means nothing searchable was left.
func (f fullTextCompiler) compile(raw string) (query.Query, error) {
	var (
		groups  [][]query.Query
		exclude []query.Query
		or      bool
		not     bool
	)

	for _, it := range lexQuery(raw) {
		switch it.op {
		case "OR":
			or = len(groups) > 0
			continue
		case "AND":
			or = false
			continue
		case "NOT":
			not = true
			continue
		}

		c := it.clause
		c.negated = c.negated || not
		not = false

		q, err := f.clauseQuery(c)
		if err != nil {
			return nil, err
		}
		if q == nil {
			or = false
			continue
		}

		switch {
		case c.negated:
			exclude = append(exclude, q)
		case or:
			groups[len(groups)-1] = append(groups[len(groups)-1], q)
		default:
			groups = append(groups, []query.Query{q})
		}
		or = false
	}

	if len(groups) == 0 && len(exclude) == 0 {
		return nil, nil
	}

	b := bleve.NewBooleanQuery()
	for _, g := range groups {
		if len(g) == 1 {
			b.AddMust(g[0])
		} else {
			b.AddMust(bleve.NewDisjunctionQuery(g...))
		}
	}
	for _, q := range exclude {
		b.AddMustNot(q)
	}
	return b, nil
}

func (f fullTextCompiler) clauseQuery(c clause) (query.Query, error) {
	switch {
	case dateFields[c.field]:
		r, err := ParseDateExpr(c.value, f.now)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", c.field, err)
		}
		return dateRangeQuery(c.field, r), nil

	case numericFields[c.field]:
		return numericClause(c)

	case c.kind == clauseRange:
		return nil, fmt.Errorf("range %s is only valid on date and number fields", c.value)
	}

	field := c.field
	if field == "" {
		field = allField
	}

	if c.kind == clauseTerm && strings.ContainsAny(c.value, "*?") {
		q := bleve.NewWildcardQuery(strings.ToLower(c.value))
		q.SetField(field)
		return q, nil
	}

	terms, err := f.src.Analyze(field, c.value)
	if err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return nil, nil
	}

	if c.kind == clausePhrase && len(terms) > 1 {
		q := bleve.NewMatchPhraseQuery(c.value)
		q.SetField(field)
		return q, nil
	}

	q := bleve.NewMatchQuery(c.value)
	q.SetField(field)
	q.SetOperator(query.MatchQueryOperatorAnd)
	return q, nil
}

func numericClause(c clause) (query.Query, error) {
	if c.kind != clauseRange {
		n, err := strconv.ParseInt(c.value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not a number", c.field, c.value)
		}
		return numberEquals(c.field, n), nil
	}

	inner := strings.TrimSuffix(strings.TrimPrefix(c.value, "["), "]")
	lo, hi, found := strings.Cut(strings.ToLower(inner), " to ")
	if !found {
		return nil, fmt.Errorf("field %s: malformed range %s", c.field, c.value)
	}

	var bounds [2]*float64
	for i, s := range []string{lo, hi} {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not a number", c.field, s)
		}
		bounds[i] = &n
	}
	if bounds[0] == nil && bounds[1] == nil {
		return nil, fmt.Errorf("field %s: empty range", c.field)
	}

	inclusive := true
	q := bleve.NewNumericRangeInclusiveQuery(bounds[0], bounds[1], &inclusive, &inclusive)
	q.SetField(c.field)
	return q, nil
}

// dateRangeQuery matches [r.Start, r.End) on field.
func dateRangeQuery(field string, r DateRange) query.Query {
	startInc, endInc := true, false
	q := bleve.NewDateRangeInclusiveQuery(r.Start, r.End, &startInc, &endInc)
	q.SetField(field)
	return q
}
