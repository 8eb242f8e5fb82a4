package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/docsift/docsift/internal/errors"
)

func TestPermissionFilter_Visibility(t *testing.T) {
	s := newCorpusStore(t)

	tests := []struct {
		name string
		user string
		want []int64
	}{
		{"anonymous sees unowned only", "", []int64{2, 4}},
		{"owner sees own documents", "10", []int64{1, 2, 4}},
		{"viewer sees granted documents", "11", []int64{1, 2, 4}},
		{"other owner", "20", []int64{2, 3, 4}},
		{"stranger", "99", []int64{2, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := Params{KeyQuery: "document"}
			if tt.user != "" {
				params[KeyUser] = tt.user
			}
			assert.ElementsMatch(t, tt.want, searchIDs(t, s, params))
		})
	}
}

func TestCompileFilter_Criteria(t *testing.T) {
	s := newCorpusStore(t)

	tests := []struct {
		name   string
		params Params
		want   []int64
	}{
		{"correspondent id", Params{KeyCorrespondentID: "7", KeyUser: "10"}, []int64{1}},
		{"all tags", Params{KeyTagsAll: "4,5", KeyUser: "20"}, nil},
		{"all tags as owner", Params{KeyTagsAll: "4, 5", KeyUser: "10"}, []int64{1}},
		{"no listed tags", Params{KeyTagsNone: "4", KeyUser: "20"}, []int64{2, 4}},
		{"untagged", Params{KeyIsTagged: "false", KeyUser: "10"}, []int64{2}},
		{"tagged", Params{KeyIsTagged: "true", KeyUser: "20"}, []int64{3, 4}},
		{"no correspondent", Params{KeyCorrespondentIsNull: "true", KeyUser: "10"}, []int64{2}},
		{"has correspondent", Params{KeyCorrespondentIsNull: "false"}, []int64{4}},
		{"document type", Params{KeyDocumentTypeID: "5"}, []int64{4}},
		{"no document type", Params{KeyDocumentTypeIsNull: "true", KeyUser: "20"}, []int64{2, 3}},
		{"storage path", Params{KeyStoragePathID: "2", KeyUser: "11"}, []int64{1}},
		{"no storage path", Params{KeyStoragePathIsNull: "true", KeyUser: "10"}, []int64{2, 4}},
		{"created after is inclusive", Params{KeyCreatedAfter: "2024-03-10T09:00:00Z"}, []int64{4}},
		{"created before", Params{KeyCreatedBefore: "2024-03-01", KeyUser: "20"}, []int64{2, 3}},
		{"added window", Params{KeyAddedAfter: "2024-01-01", KeyAddedBefore: "2024-03-12", KeyUser: "10"}, []int64{2, 4}},
		{"unknown keys are ignored", Params{"colour": "blue", "tags__name": "x"}, []int64{2, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := Params{KeyQuery: "document"}
			for k, v := range tt.params {
				params[k] = v
			}
			assert.ElementsMatch(t, tt.want, searchIDs(t, s, params))
		})
	}
}

func TestCompileFilter_RejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"id", Params{KeyCorrespondentID: "seven"}},
		{"id list", Params{KeyTagsAll: "4,x"}},
		{"boolean", Params{KeyIsTagged: "maybe"}},
		{"isnull boolean", Params{KeyCorrespondentIsNull: "yes"}},
		{"date", Params{KeyCreatedBefore: "not a date"}},
		{"user", Params{KeyUser: "alice"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileFilter(tt.params)

			require.Error(t, err)
			assert.True(t, serrors.IsValidation(err))
			assert.Equal(t, serrors.ErrCodeInvalidFilter, serrors.GetCode(err))
		})
	}
}

func TestCompileFilter_MalformedValueFailsPage(t *testing.T) {
	s := newCorpusStore(t)

	withCursor(t, s, Params{KeyQuery: "document", KeyDocumentTypeID: "x"}, func(c *Cursor) {
		_, err := c.Page(context.Background(), 0)
		assert.True(t, serrors.IsValidation(err))
	})
}

func TestCompileFilter_DoesNotChangeScores(t *testing.T) {
	// Given: the same query with a loose and a narrow filter that both admit doc 1
	s := newCorpusStore(t)

	score := func(params Params) float64 {
		var raw float64
		withCursor(t, s, params, func(c *Cursor) {
			p, err := c.Page(context.Background(), 0)
			require.NoError(t, err)
			for _, h := range p.Hits {
				if h.ID == 1 {
					raw = h.RawScore
				}
			}
		})
		return raw
	}

	// When: scoring doc 1 under each filter
	loose := score(Params{KeyQuery: "invoice", KeyUser: "10"})
	narrow := score(Params{KeyQuery: "invoice", KeyUser: "10", KeyCorrespondentID: "7", KeyTagsAll: "4,5"})

	// Then: the filter selected documents without touching relevance
	require.Greater(t, loose, 0.0)
	assert.InDelta(t, loose, narrow, 1e-9)
}

func TestParams_User(t *testing.T) {
	id, ok, err := Params{KeyUser: " 42 "}.User()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok, err = Params{}.User()
	require.NoError(t, err)
	assert.False(t, ok)
}
