package search

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/registry"
	bsearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/highlight"
	htmlformat "github.com/blevesearch/bleve/v2/search/highlight/format/html"
	simplehighlighter "github.com/blevesearch/bleve/v2/search/highlight/highlighter/simple"
	bindex "github.com/blevesearch/bleve_index_api"
)

// Highlight markup.
const (
	MatchOpen         = `<span class="match">`
	MatchClose        = `</span>`
	FragmentSeparator = " ... "
)

// DefaultHighlightContext is the number of characters kept on each side of a match.
const DefaultHighlightContext = 50

// MaxFragments is the number of context fragments a highlight keeps.
const MaxFragments = 3

var (
	highlightersMu sync.Mutex
	highlighters   = map[int]string{}
)

// highlighterFor returns the name of a registered highlighter keeping
// surround characters of context on each side of every match. Registrations
// are process-wide, so each size is registered once.
func highlighterFor(surround int) (string, error) {
	highlightersMu.Lock()
	defer highlightersMu.Unlock()

	if name, ok := highlighters[surround]; ok {
		return name, nil
	}

	fragmenterName := fmt.Sprintf("docsift_context_%d", surround)
	err := registry.RegisterFragmenter(fragmenterName, func(map[string]interface{}, *registry.Cache) (highlight.Fragmenter, error) {
		return &contextFragmenter{surround: surround}, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to register fragmenter: %w", err)
	}

	name := fmt.Sprintf("docsift_html_%d", surround)
	err = registry.RegisterHighlighter(name, func(_ map[string]interface{}, cache *registry.Cache) (highlight.Highlighter, error) {
		fragmenter, err := cache.FragmenterNamed(fragmenterName)
		if err != nil {
			return nil, err
		}
		formatter := htmlformat.NewFragmentFormatter(MatchOpen, MatchClose)
		return &contextHighlighter{
			Highlighter: simplehighlighter.NewHighlighter(fragmenter, formatter, FragmentSeparator),
			top:         MaxFragments,
		}, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to register highlighter: %w", err)
	}

	highlighters[surround] = name
	return name, nil
}

// contextFragmenter cuts one fragment per match, reaching surround runes to
// either side. Fragments that touch or overlap are merged.
type contextFragmenter struct {
	surround int
}

func (f *contextFragmenter) Fragment(orig []byte, locations highlight.TermLocations) []*highlight.Fragment {
	var out []*highlight.Fragment
	for _, tl := range locations {
		if tl == nil || tl.Start < 0 || tl.Start > tl.End || tl.End > len(orig) {
			continue
		}
		start := runesBefore(orig, tl.Start, f.surround)
		end := runesAfter(orig, tl.End, f.surround)

		if n := len(out); n > 0 && start <= out[n-1].End {
			if end > out[n-1].End {
				out[n-1].End = end
			}
			continue
		}
		out = append(out, &highlight.Fragment{Orig: orig, Start: start, End: end})
	}
	return out
}

// runesBefore moves pos back by up to n runes.
func runesBefore(b []byte, pos, n int) int {
	for i := 0; i < n && pos > 0; i++ {
		_, size := utf8.DecodeLastRune(b[:pos])
		pos -= size
	}
	return pos
}

// runesAfter moves pos forward by up to n runes.
func runesAfter(b []byte, pos, n int) int {
	for i := 0; i < n && pos < len(b); i++ {
		_, size := utf8.DecodeRune(b[pos:])
		pos += size
	}
	return pos
}

// contextHighlighter keeps the top fragments of a field, best scoring first
// and earlier on ties, and emits them in document order joined by the
// separator. bleve asks for a single fragment; the requested count is
// ignored and the joined text is stored as the field's only fragment.
type contextHighlighter struct {
	*simplehighlighter.Highlighter
	top int
}

func (h *contextHighlighter) BestFragmentInField(dm *bsearch.DocumentMatch, doc bindex.Document, field string) string {
	if fragments := h.BestFragmentsInField(dm, doc, field, 1); len(fragments) > 0 {
		return fragments[0]
	}
	return ""
}

func (h *contextHighlighter) BestFragmentsInField(dm *bsearch.DocumentMatch, doc bindex.Document, field string, _ int) []string {
	ordered := highlight.OrderTermLocations(dm.Locations[field])

	var fragments []*highlight.Fragment
	doc.VisitFields(func(f bindex.Field) {
		if f.Name() != field {
			return
		}
		if _, ok := f.(bindex.TextField); !ok {
			return
		}
		var locations highlight.TermLocations
		for _, tl := range ordered {
			if tl.ArrayPositions.Equals(f.ArrayPositions()) {
				locations = append(locations, tl)
			}
		}
		for _, frag := range h.Fragmenter().Fragment(f.Value(), locations) {
			frag.ArrayPositions = f.ArrayPositions()
			frag.Score = float64(matchesIn(frag, locations))
			fragments = append(fragments, frag)
		}
	})
	if len(fragments) == 0 {
		return nil
	}

	sort.SliceStable(fragments, func(i, j int) bool { return fragments[i].Score > fragments[j].Score })
	if len(fragments) > h.top {
		fragments = fragments[:h.top]
	}
	sort.SliceStable(fragments, func(i, j int) bool { return fragments[i].Start < fragments[j].Start })

	ordered.MergeOverlapping()
	parts := make([]string, len(fragments))
	for i, frag := range fragments {
		parts[i] = h.FragmentFormatter().Format(frag, ordered)
	}
	joined := []string{strings.Join(parts, h.Separator())}

	if dm.Fragments == nil {
		dm.Fragments = make(bsearch.FieldFragmentMap)
	}
	dm.Fragments[field] = joined
	return joined
}

func matchesIn(frag *highlight.Fragment, locations highlight.TermLocations) int {
	n := 0
	for _, tl := range locations {
		if tl.Start >= frag.Start && tl.End <= frag.End {
			n++
		}
	}
	return n
}
