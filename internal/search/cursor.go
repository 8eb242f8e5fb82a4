package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	bsearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/index"
	"github.com/docsift/docsift/internal/telemetry"
)

// Query variants, also used as the metrics label.
const (
	VariantFullText = "fulltext"
	VariantMoreLike = "more_like"
)

// Defaults for cursor options.
const (
	DefaultPageSize      = 10
	DefaultPageCacheSize = 32
)

// Hit is one result of a page.
type Hit struct {
	ID    int64
	Title string
	// Score is the raw score divided by the first page's top score, nil
	// when no top score is known (sorted queries, empty first page).
	Score    *float64
	RawScore float64
	// Highlight is the content with matches wrapped in MatchOpen/MatchClose.
	Highlight string
}

// Page is one executed page of results.
type Page struct {
	Start    int
	Number   int
	Size     int
	Total    uint64
	Hits     []Hit
	TopScore float64
}

// Cursor lazily executes pages of one request's query and keeps every page
// it ran, keyed by start offset, for its whole life. A Cursor belongs to one
// request and must not be shared between goroutines; it is only valid
// inside the Reader's scope.
type Cursor struct {
	reader  *index.Reader
	params  Params
	variant string

	pageSize    int
	moreTerms   int
	surround    int
	now         time.Time
	content     ContentSource
	logger      *slog.Logger
	metrics     *telemetry.Metrics
	pages       map[int]*Page
	cacheSize   int
	compiled    bool
	query       query.Query
	order       bsearch.SortOrder
	sorted      bool
	suggestion  string
	firstScore  float64
	highlighter string
}

// CursorOption configures a Cursor.
type CursorOption func(*Cursor)

// WithPageSize sets the number of hits per page.
func WithPageSize(n int) CursorOption {
	return func(c *Cursor) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithPageCacheSize sizes the page cache for the number of pages a request
// is expected to visit. Pages are never dropped, whatever the size.
func WithPageCacheSize(n int) CursorOption {
	return func(c *Cursor) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// WithMoreLikeTerms sets how many key terms a similarity query uses.
func WithMoreLikeTerms(n int) CursorOption {
	return func(c *Cursor) {
		if n > 0 {
			c.moreTerms = n
		}
	}
}

// WithHighlightContext sets the characters of context kept around matches.
func WithHighlightContext(n int) CursorOption {
	return func(c *Cursor) {
		if n > 0 {
			c.surround = n
		}
	}
}

// WithNow fixes the moment relative dates are resolved against.
func WithNow(t time.Time) CursorOption {
	return func(c *Cursor) {
		c.now = t
	}
}

// WithContentSource sets where similarity queries read reference content.
func WithContentSource(src ContentSource) CursorOption {
	return func(c *Cursor) {
		c.content = src
	}
}

// WithLogger sets the cursor's logger.
func WithLogger(l *slog.Logger) CursorOption {
	return func(c *Cursor) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records page executions and cache lookups in m.
func WithMetrics(m *telemetry.Metrics) CursorOption {
	return func(c *Cursor) {
		c.metrics = m
	}
}

// NewCursor creates a cursor over r for params. A more_like_id parameter
// selects the similarity variant, which needs a ContentSource; otherwise the
// query parameter is searched as free text.
func NewCursor(r *index.Reader, params Params, opts ...CursorOption) (*Cursor, error) {
	c := &Cursor{
		reader:    r,
		params:    params,
		variant:   VariantFullText,
		pageSize:  DefaultPageSize,
		cacheSize: DefaultPageCacheSize,
		moreTerms: DefaultMoreLikeTerms,
		surround:  DefaultHighlightContext,
		now:       time.Now(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if _, ok := params[KeyMoreLikeID]; ok {
		c.variant = VariantMoreLike
		if c.content == nil {
			return nil, serrors.New(serrors.ErrCodeInvalidInput, "similarity search needs a content source", nil)
		}
	}

	c.pages = make(map[int]*Page, c.cacheSize)

	var err error
	c.highlighter, err = highlighterFor(c.surround)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Variant reports which query variant the cursor runs.
func (c *Cursor) Variant() string {
	return c.variant
}

// PageSize returns the number of hits per page.
func (c *Cursor) PageSize() int {
	return c.pageSize
}

// Len returns the total number of hits, running the first page if needed.
func (c *Cursor) Len(ctx context.Context) (uint64, error) {
	p, err := c.Page(ctx, 0)
	if err != nil {
		return 0, err
	}
	return p.Total, nil
}

// Suggestion returns the spelling-corrected form of a free-text query, or ""
// when there is none. It is available once a page has been executed and is
// never searched.
func (c *Cursor) Suggestion() string {
	return c.suggestion
}

// Page returns the page holding start, executing it unless a page for the
// same start offset was already computed.
func (c *Cursor) Page(ctx context.Context, start int) (*Page, error) {
	if start < 0 {
		return nil, serrors.Newf(serrors.ErrCodeInvalidInput, "negative page start %d", start)
	}
	if p, ok := c.pages[start]; ok {
		c.metrics.PageCache(true)
		return p, nil
	}
	c.metrics.PageCache(false)

	if err := c.compile(ctx); err != nil {
		return nil, err
	}

	number := start/c.pageSize + 1
	req := bleve.NewSearchRequestOptions(c.query, c.pageSize, (number-1)*c.pageSize, false)
	req.Fields = []string{index.FieldTitle}
	req.Highlight = bleve.NewHighlightWithStyle(c.highlighter)
	req.Highlight.AddField(index.FieldContent)
	if c.sorted {
		req.SortByCustom(c.order)
	}

	began := time.Now()
	res, err := c.reader.Search(ctx, req)
	if err != nil {
		c.metrics.ObserveSearch(c.variant, time.Since(began), 0, err)
		return nil, err
	}
	c.metrics.ObserveSearch(c.variant, time.Since(began), res.Total, nil)

	if c.firstScore == 0 && len(res.Hits) > 0 && !c.sorted {
		c.firstScore = res.Hits[0].Score
	}

	p := &Page{
		Start:  start,
		Number: number,
		Size:   c.pageSize,
		Total:  res.Total,
		Hits:   make([]Hit, 0, len(res.Hits)),
	}
	if len(res.Hits) > 0 {
		p.TopScore = res.Hits[0].Score
	}

	for _, dm := range res.Hits {
		id, err := strconv.ParseInt(dm.ID, 10, 64)
		if err != nil {
			c.logger.Warn("Skipping search hit with malformed id", slog.String("id", dm.ID))
			continue
		}

		hit := Hit{
			ID:        id,
			RawScore:  dm.Score,
			Highlight: strings.Join(dm.Fragments[index.FieldContent], FragmentSeparator),
		}
		if title, ok := dm.Fields[index.FieldTitle].(string); ok {
			hit.Title = title
		}
		if c.firstScore != 0 {
			score := dm.Score / c.firstScore
			hit.Score = &score
		}
		p.Hits = append(p.Hits, hit)
	}

	c.pages[start] = p
	return p, nil
}

// compile builds the final query once per cursor: the variant's primary
// query restricted by the filter and the variant's mask.
func (c *Cursor) compile(ctx context.Context) error {
	if c.compiled {
		return nil
	}

	filter, err := CompileFilter(c.params)
	if err != nil {
		return err
	}

	var (
		primary query.Query
		mask    []string
	)
	switch c.variant {
	case VariantMoreLike:
		id, _, err := c.params.MoreLikeID()
		if err != nil {
			return err
		}
		primary, mask, err = moreLikeQuery(ctx, c.reader, c.content, id, c.moreTerms)
		if err != nil {
			return err
		}
	default:
		primary = c.fullText()
	}

	c.query = restrict(primary, filter, mask)
	c.order, c.sorted = SortOrder(c.params)
	c.compiled = true
	return nil
}

// fullText compiles the free-text query and computes its suggestion. Parse
// failures are logged and match nothing.
func (c *Cursor) fullText() query.Query {
	raw, _ := c.params.Get(KeyQuery)

	if s, err := suggest(c.reader, raw); err != nil {
		c.logger.Warn("Query suggestion failed", slog.String("query", raw), slog.String("error", err.Error()))
	} else if s != raw {
		c.suggestion = s
	}

	q, err := fullTextCompiler{src: c.reader, now: c.now}.compile(raw)
	if err != nil {
		perr := serrors.New(serrors.ErrCodeInvalidQuery, fmt.Sprintf("cannot parse query %q", raw), err)
		c.logger.Warn("Failed to parse query, matching nothing", serrors.LogAttrs(perr)...)
		return bleve.NewMatchNoneQuery()
	}
	if q == nil {
		return bleve.NewMatchNoneQuery()
	}
	return q
}
