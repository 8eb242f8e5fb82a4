package search

import (
	"fmt"
	"strconv"
	"strings"

	serrors "github.com/docsift/docsift/internal/errors"
)

// Parameter keys understood by the cursor and the filter compiler.
const (
	KeyQuery      = "query"
	KeyMoreLikeID = "more_like_id"
	KeyOrdering   = "ordering"
	KeyUser       = "user"

	KeyCorrespondentID     = "correspondent__id"
	KeyTagsAll             = "tags__id__all"
	KeyTagsNone            = "tags__id__none"
	KeyDocumentTypeID      = "document_type__id"
	KeyCorrespondentIsNull = "correspondent__isnull"
	KeyIsTagged            = "is_tagged"
	KeyDocumentTypeIsNull  = "document_type__isnull"
	KeyCreatedBefore       = "created__date__lt"
	KeyCreatedAfter        = "created__date__gt"
	KeyAddedBefore         = "added__date__lt"
	KeyAddedAfter          = "added__date__gt"
	KeyStoragePathID       = "storage_path__id"
	KeyStoragePathIsNull   = "storage_path__isnull"
)

// Params are the query parameters of one request. A Params value is not
// modified after the cursor is built.
type Params map[string]string

// Get returns the trimmed value of key and whether it is present.
func (p Params) Get(key string) (string, bool) {
	v, ok := p[key]
	return strings.TrimSpace(v), ok
}

// User returns the requesting user id, if any.
func (p Params) User() (int64, bool, error) {
	v, ok := p.Get(KeyUser)
	if !ok || v == "" {
		return 0, false, nil
	}
	id, err := parseID(KeyUser, v)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// MoreLikeID returns the reference document id of a similarity query.
func (p Params) MoreLikeID() (int64, bool, error) {
	v, ok := p.Get(KeyMoreLikeID)
	if !ok || v == "" {
		return 0, false, nil
	}
	id, err := parseID(KeyMoreLikeID, v)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func parseID(key, v string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, serrors.New(serrors.ErrCodeInvalidFilter,
			fmt.Sprintf("parameter %s: %q is not a valid id", key, v), err)
	}
	return id, nil
}

// parseIDList parses a comma-separated id list, skipping empty items.
func parseIDList(key, v string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := parseID(key, part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
