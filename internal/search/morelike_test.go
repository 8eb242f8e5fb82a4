package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/index"
)

func TestBo1_RareTermsWeighMore(t *testing.T) {
	assert.Greater(t, bo1(1, 1, 10), bo1(1, 5, 10))
	assert.Greater(t, bo1(3, 2, 10), bo1(1, 2, 10))
}

func TestKeyTerms(t *testing.T) {
	s := newCorpusStore(t)

	require.NoError(t, s.WithReader(func(r *index.Reader) error {
		// When: extracting key terms from the water invoice
		terms, err := KeyTerms(r, corpus()[2].Content, 3)
		require.NoError(t, err)

		// Then: at most n terms, best first with weight 1
		require.Len(t, terms, 3)
		assert.InDelta(t, 1.0, terms[0].Weight, 1e-9)
		for i := 1; i < len(terms); i++ {
			assert.LessOrEqual(t, terms[i].Weight, terms[i-1].Weight)
		}
		for _, kt := range terms {
			assert.NotEqual(t, "document", kt.Term, "a term in every document is never distinctive")
		}
		return nil
	}))
}

func TestKeyTerms_SkipsUnknownTerms(t *testing.T) {
	s := newCorpusStore(t)

	require.NoError(t, s.WithReader(func(r *index.Reader) error {
		terms, err := KeyTerms(r, "quantum chromodynamics", DefaultMoreLikeTerms)
		require.NoError(t, err)
		assert.Empty(t, terms)
		return nil
	}))
}

func TestMoreLike_MasksReferenceDocument(t *testing.T) {
	s := newCorpusStore(t)

	// user 10 can see the reference document itself
	got := searchIDs(t, s, Params{KeyMoreLikeID: "1", KeyUser: "10"}, WithContentSource(corpusContent()))

	assert.NotContains(t, got, int64(1))
	assert.NotEmpty(t, got)
}

func TestMoreLike_RanksSimilarDocumentFirst(t *testing.T) {
	s := newCorpusStore(t)

	got := searchIDs(t, s, Params{KeyMoreLikeID: "1", KeyUser: "20"}, WithContentSource(corpusContent()))

	require.NotEmpty(t, got)
	assert.Equal(t, int64(3), got[0])
}

func TestMoreLike_MissingReference(t *testing.T) {
	s := newCorpusStore(t)

	withCursor(t, s, Params{KeyMoreLikeID: "404"}, func(c *Cursor) {
		assert.Equal(t, VariantMoreLike, c.Variant())

		_, err := c.Page(context.Background(), 0)

		assert.True(t, serrors.IsNotFound(err))
	}, WithContentSource(corpusContent()))
}

func TestMoreLike_NeedsContentSource(t *testing.T) {
	s := newCorpusStore(t)

	require.NoError(t, s.WithReader(func(r *index.Reader) error {
		_, err := NewCursor(r, Params{KeyMoreLikeID: "1"})
		assert.Error(t, err)
		return nil
	}))
}
