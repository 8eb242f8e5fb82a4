package search

import (
	"context"
	"strings"
	"testing"

	"github.com/blevesearch/bleve/v2/search/highlight"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/internal/index"
	"github.com/docsift/docsift/internal/logging"
)

// highlightOf indexes one document with content and returns the highlight
// of its hit for query.
func highlightOf(t *testing.T, content, query string) string {
	t.Helper()
	s, err := index.OpenMemory(index.WithLogger(logging.NewRecorder().Logger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	doc := index.Document{ID: 1, Title: "Zoo report", Content: content, Created: now, Modified: now, Added: now}
	require.NoError(t, s.AddOrUpdateDocument(context.Background(), doc))

	var out string
	withCursor(t, s, Params{KeyQuery: query}, func(c *Cursor) {
		p, err := c.Page(context.Background(), 0)
		require.NoError(t, err)
		require.Len(t, p.Hits, 1)
		out = p.Hits[0].Highlight
	})
	return out
}

func TestHighlight_FarApartMatchesGetOwnFragments(t *testing.T) {
	// Given: three matches separated by about 800 characters
	filler := strings.Repeat("lorem ipsum ", 67)
	content := "zebra " + filler + "zebra " + filler + "zebra at the end"

	// When: highlighting the hit
	got := highlightOf(t, content, "zebra")

	// Then: each match sits in its own fragment, joined by the separator
	assert.Equal(t, 3, strings.Count(got, MatchOpen+"zebra"+MatchClose))
	parts := strings.Split(got, FragmentSeparator)
	require.Len(t, parts, 3)
	for _, part := range parts {
		plain := strings.NewReplacer(MatchOpen, "", MatchClose, "").Replace(part)
		assert.LessOrEqual(t, len([]rune(plain)), 2*DefaultHighlightContext+len("zebra"))
	}
	assert.True(t, strings.HasPrefix(got, MatchOpen+"zebra"+MatchClose+" lorem"))
	assert.True(t, strings.HasSuffix(got, "at the end"))
}

func TestHighlight_KeepsTopThreeFragments(t *testing.T) {
	// Given: five isolated matches, the fourth one doubled
	filler := strings.Repeat("lorem ipsum ", 20)
	content := "zebra " + filler + "zebra " + filler + "zebra " + filler + "zebra zebra " + filler + "zebra"

	got := highlightOf(t, content, "zebra")

	// Then: the doubled fragment wins, then the first two in document order
	parts := strings.Split(got, FragmentSeparator)
	require.Len(t, parts, 3)
	assert.Equal(t, 1, strings.Count(parts[0], MatchOpen))
	assert.Equal(t, 1, strings.Count(parts[1], MatchOpen))
	assert.Equal(t, 2, strings.Count(parts[2], MatchOpen))
}

func TestHighlight_NearbyMatchesShareAFragment(t *testing.T) {
	got := highlightOf(t, "the zebra met another zebra by the river", "zebra")

	assert.NotContains(t, got, FragmentSeparator)
	assert.Equal(t, 2, strings.Count(got, MatchOpen+"zebra"+MatchClose))
	assert.Equal(t, "the "+MatchOpen+"zebra"+MatchClose+" met another "+MatchOpen+"zebra"+MatchClose+" by the river", got)
}

func TestContextFragmenter_CountsRunesNotBytes(t *testing.T) {
	// Given: multi-byte characters around a match
	orig := []byte("ééééé zebra ööööö")
	start := strings.Index(string(orig), "zebra")
	loc := &highlight.TermLocation{Term: "zebra", Start: start, End: start + len("zebra")}

	// When: keeping three runes on each side
	frags := (&contextFragmenter{surround: 3}).Fragment(orig, highlight.TermLocations{loc})

	// Then: the fragment spans three runes either way
	require.Len(t, frags, 1)
	assert.Equal(t, "éé zebra öö", string(orig[frags[0].Start:frags[0].End]))
}

func TestContextFragmenter_MergesOverlaps(t *testing.T) {
	orig := []byte("aa zebra bb zebra cc")
	first := &highlight.TermLocation{Start: 3, End: 8}
	second := &highlight.TermLocation{Start: 12, End: 17}

	frags := (&contextFragmenter{surround: 4}).Fragment(orig, highlight.TermLocations{first, second})

	require.Len(t, frags, 1)
	assert.Equal(t, 0, frags[0].Start)
	assert.Equal(t, len(orig), frags[0].End)
}
