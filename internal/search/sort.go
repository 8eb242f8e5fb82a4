package search

import (
	"strings"

	bsearch "github.com/blevesearch/bleve/v2/search"

	"github.com/docsift/docsift/internal/index"
)

type sortKey struct {
	field string
	typ   bsearch.SortFieldType
}

// sortKeys maps ordering values to index fields. Text keys sort on their
// lowercase single-term companions.
var sortKeys = map[string]sortKey{
	"created":               {index.FieldCreated, bsearch.SortFieldAsDate},
	"modified":              {index.FieldModified, bsearch.SortFieldAsDate},
	"added":                 {index.FieldAdded, bsearch.SortFieldAsDate},
	"title":                 {index.FieldTitleSort, bsearch.SortFieldAsString},
	"correspondent__name":   {index.FieldCorrespondentSort, bsearch.SortFieldAsString},
	"document_type__name":   {index.FieldTypeSort, bsearch.SortFieldAsString},
	"archive_serial_number": {index.FieldASN, bsearch.SortFieldAsNumber},
}

// SortOrder returns the sort requested by the ordering parameter. A leading
// "-" reverses it. Missing or unknown orderings return false, meaning
// relevance order.
func SortOrder(p Params) (bsearch.SortOrder, bool) {
	v, ok := p.Get(KeyOrdering)
	if !ok {
		return nil, false
	}

	desc := strings.HasPrefix(v, "-")
	key, known := sortKeys[strings.TrimPrefix(v, "-")]
	if !known {
		return nil, false
	}

	return bsearch.SortOrder{
		&bsearch.SortField{
			Field:   key.field,
			Desc:    desc,
			Type:    key.typ,
			Missing: bsearch.SortFieldMissingLast,
		},
		// document id breaks ties
		&bsearch.SortField{
			Field: index.FieldID,
			Desc:  desc,
			Type:  bsearch.SortFieldAsNumber,
		},
	}, true
}
