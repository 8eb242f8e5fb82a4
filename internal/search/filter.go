package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/index"
)

// criterionFunc turns one parameter value into a filter predicate.
type criterionFunc func(key, value string) (query.Query, error)

// criteria maps every recognised filter key to its predicate builder.
// Keys missing from this table are ignored.
var criteria = map[string]criterionFunc{
	KeyCorrespondentID:     idEquals(index.FieldCorrespondentID),
	KeyDocumentTypeID:      idEquals(index.FieldTypeID),
	KeyStoragePathID:       idEquals(index.FieldPathID),
	KeyTagsAll:             tagsAll,
	KeyTagsNone:            tagsNone,
	KeyCorrespondentIsNull: hasRelation(index.FieldHasCorrespondent, false),
	KeyDocumentTypeIsNull:  hasRelation(index.FieldHasType, false),
	KeyStoragePathIsNull:   hasRelation(index.FieldHasPath, false),
	KeyIsTagged:            hasRelation(index.FieldHasTag, true),
	KeyCreatedBefore:       dateBound(index.FieldCreated, false),
	KeyCreatedAfter:        dateBound(index.FieldCreated, true),
	KeyAddedBefore:         dateBound(index.FieldAdded, false),
	KeyAddedAfter:          dateBound(index.FieldAdded, true),
}

// PermissionFilter is the visibility predicate: unowned records, plus,
// when user is non-nil, records the user owns or was granted.
func PermissionFilter(user *int64) query.Query {
	unowned := bleve.NewBoolFieldQuery(false)
	unowned.SetField(index.FieldHasOwner)

	if user == nil {
		return bleve.NewDisjunctionQuery(unowned)
	}

	viewer := bleve.NewTermQuery(strconv.FormatInt(*user, 10))
	viewer.SetField(index.FieldViewerID)

	return bleve.NewDisjunctionQuery(unowned, numberEquals(index.FieldOwnerID, *user), viewer)
}

// CompileFilter builds the filter for p: every recognised criterion ANDed
// with the permission predicate. Keys are applied in sorted order so the
// same parameters always compile to the same query.
func CompileFilter(p Params) (query.Query, error) {
	var user *int64
	if id, ok, err := p.User(); err != nil {
		return nil, err
	} else if ok {
		user = &id
	}

	keys := make([]string, 0, len(p))
	for k := range p {
		if _, ok := criteria[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]query.Query, 0, len(keys)+1)
	for _, k := range keys {
		q, err := criteria[k](k, strings.TrimSpace(p[k]))
		if err != nil {
			return nil, err
		}
		parts = append(parts, q)
	}

	perm := PermissionFilter(user)
	if len(parts) == 0 {
		return perm, nil
	}
	return bleve.NewConjunctionQuery(append(parts, perm)...), nil
}

// restrict limits primary to the documents matching filter and outside mask.
// The filter sits behind a double negation so it selects documents without
// adding to their score.
func restrict(primary, filter query.Query, mask []string) query.Query {
	q := bleve.NewBooleanQuery()
	q.AddMust(primary)

	if filter != nil {
		outside := bleve.NewBooleanQuery()
		outside.AddMustNot(filter)
		q.AddMustNot(outside)
	}
	if len(mask) > 0 {
		q.AddMustNot(bleve.NewDocIDQuery(mask))
	}
	return q
}

func idEquals(field string) criterionFunc {
	return func(key, value string) (query.Query, error) {
		id, err := parseID(key, value)
		if err != nil {
			return nil, err
		}
		return numberEquals(field, id), nil
	}
}

func numberEquals(field string, v int64) query.Query {
	f := float64(v)
	inclusive := true
	q := bleve.NewNumericRangeInclusiveQuery(&f, &f, &inclusive, &inclusive)
	q.SetField(field)
	return q
}

func tagTerm(id int64) query.Query {
	q := bleve.NewTermQuery(strconv.FormatInt(id, 10))
	q.SetField(index.FieldTagID)
	return q
}

func tagsAll(key, value string) (query.Query, error) {
	ids, err := parseIDList(key, value)
	if err != nil {
		return nil, err
	}
	q := bleve.NewBooleanQuery()
	for _, id := range ids {
		q.AddMust(tagTerm(id))
	}
	if len(ids) == 0 {
		return bleve.NewMatchAllQuery(), nil
	}
	return q, nil
}

func tagsNone(key, value string) (query.Query, error) {
	ids, err := parseIDList(key, value)
	if err != nil {
		return nil, err
	}
	q := bleve.NewBooleanQuery()
	for _, id := range ids {
		q.AddMustNot(tagTerm(id))
	}
	if len(ids) == 0 {
		return bleve.NewMatchAllQuery(), nil
	}
	return q, nil
}

// hasRelation compares the has-flag of field against the boolean value of
// the parameter. For the __isnull keys the flag is true when the value is
// false, so those pass want=false.
func hasRelation(field string, want bool) criterionFunc {
	return func(key, value string) (query.Query, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, serrors.New(serrors.ErrCodeInvalidFilter,
				fmt.Sprintf("parameter %s: %q is not a boolean", key, value), err)
		}
		q := bleve.NewBoolFieldQuery(b == want)
		q.SetField(field)
		return q, nil
	}
}

// dateBound is an inclusive bound on one side of field, open on the other.
func dateBound(field string, lower bool) criterionFunc {
	return func(key, value string) (query.Query, error) {
		t, err := parseFilterDate(value)
		if err != nil {
			return nil, serrors.New(serrors.ErrCodeInvalidFilter,
				fmt.Sprintf("parameter %s: %q is not a date", key, value), err)
		}

		inclusive := true
		var q *query.DateRangeQuery
		if lower {
			q = bleve.NewDateRangeInclusiveQuery(t, time.Time{}, &inclusive, nil)
		} else {
			q = bleve.NewDateRangeInclusiveQuery(time.Time{}, t, nil, &inclusive)
		}
		q.SetField(field)
		return q, nil
	}
}

// parseFilterDate accepts ISO 8601 dates and datetimes, falling back to
// dateparse for looser layouts.
func parseFilterDate(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return dateparse.ParseAny(v)
}
