package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/index"
	"github.com/docsift/docsift/internal/search"
)

// queryOptions holds the flags shared by search and more-like.
type queryOptions struct {
	page     int
	user     int64
	filters  []string
	ordering string
}

type searchHit struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Score     *float64 `json:"score"`
	Highlight string   `json:"highlight,omitempty"`
}

type searchResult struct {
	Variant    string      `json:"variant"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	Total      uint64      `json:"total"`
	Suggestion string      `json:"suggestion,omitempty"`
	Hits       []searchHit `json:"hits"`
}

func addQueryFlags(cmd *cobra.Command, opts *queryOptions) {
	cmd.Flags().IntVarP(&opts.page, "page", "p", 1, "Result page, starting at 1")
	cmd.Flags().Int64VarP(&opts.user, "user", "u", 0, "Only show documents this user id may view")
	cmd.Flags().StringArrayVarP(&opts.filters, "filter", "f", nil, "Filter as key=value (repeatable, e.g. --filter tags__id__all=1,2)")
	cmd.Flags().StringVarP(&opts.ordering, "ordering", "o", "", "Sort field, '-' prefix for descending (e.g. -created)")
}

func newSearchCmd(a *app) *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over the indexed documents",
		Long: `Search titles, content, notes and metadata of the indexed documents.

Queries support field prefixes (tag:, correspondent:, type:, path:,
owner:, notes:, asn:), date ranges such as created:[2020 to 2021] or
added:yesterday, quoted phrases, and AND, OR and NOT.

Filters narrow the results with exact conditions on ids and dates:
  correspondent__id, document_type__id, storage_path__id,
  tags__id__all, tags__id__none, is_tagged,
  correspondent__isnull, document_type__isnull, storage_path__isnull,
  created__date__lt, created__date__gt, added__date__lt, added__date__gt

Examples:
  docsift search "electricity invoice"
  docsift search "tag:bank created:[2021 to 2022]" --ordering -created
  docsift search invoice --user 3 --filter is_tagged=0 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := opts.params(cmd)
			if err != nil {
				return err
			}
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return serrors.New(serrors.ErrCodeInvalidQuery, "search query is empty", nil).
					WithSuggestion("pass the words to search for, e.g. docsift search invoice")
			}
			params[search.KeyQuery] = query
			return runQuery(cmd.Context(), cmd, a, params, opts.page)
		},
	}
	addQueryFlags(cmd, &opts)

	return cmd
}

func newMoreLikeCmd(a *app) *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "more-like <document-id>",
		Short: "Find documents similar to a document",
		Long: `Find documents whose content shares the most informative terms of the
given document. The document itself is never part of the results.

Examples:
  docsift more-like 42
  docsift more-like 42 --user 3 --page 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return serrors.ValidationError(fmt.Sprintf("invalid document id %q", args[0]), err)
			}
			params, err := opts.params(cmd)
			if err != nil {
				return err
			}
			params[search.KeyMoreLikeID] = args[0]
			return runQuery(cmd.Context(), cmd, a, params, opts.page)
		},
	}
	addQueryFlags(cmd, &opts)

	return cmd
}

// params converts the flags into search parameters. --user 0 is a user
// like any other; only an absent flag leaves the permission filter out.
func (o queryOptions) params(cmd *cobra.Command) (search.Params, error) {
	if o.page < 1 {
		return nil, serrors.Newf(serrors.ErrCodeInvalidInput, "page must be at least 1, got %d", o.page)
	}
	p := search.Params{}
	for _, f := range o.filters {
		key, value, ok := strings.Cut(f, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, serrors.Newf(serrors.ErrCodeInvalidFilter, "filter %q is not key=value", f)
		}
		p[key] = strings.TrimSpace(value)
	}
	if cmd.Flags().Changed("user") {
		p[search.KeyUser] = strconv.FormatInt(o.user, 10)
	}
	if o.ordering != "" {
		p[search.KeyOrdering] = o.ordering
	}
	return p, nil
}

func runQuery(ctx context.Context, cmd *cobra.Command, a *app, params search.Params, page int) error {
	if ctx == nil {
		ctx = context.Background()
	}

	idx, err := a.openIndexReadOnly(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	opts := []search.CursorOption{
		search.WithPageSize(a.cfg.Search.PageSize),
		search.WithPageCacheSize(a.cfg.Search.PageCacheSize),
		search.WithMoreLikeTerms(a.cfg.Search.MoreLikeTerms),
		search.WithHighlightContext(a.cfg.Search.HighlightContext),
		search.WithLogger(a.logger),
		search.WithMetrics(a.metrics),
	}
	if _, ok := params[search.KeyMoreLikeID]; ok {
		docs, err := a.openDocs(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = docs.Close() }()
		opts = append(opts, search.WithContentSource(docs))
	}

	var result searchResult
	err = idx.WithReader(func(r *index.Reader) error {
		cursor, err := search.NewCursor(r, params, opts...)
		if err != nil {
			return err
		}
		// The first page fixes the score normalisation for later pages.
		if _, err := cursor.Len(ctx); err != nil {
			return err
		}
		p, err := cursor.Page(ctx, (page-1)*cursor.PageSize())
		if err != nil {
			return err
		}
		result = newSearchResult(cursor, p)
		return nil
	})
	if err != nil {
		return err
	}

	return printSearchResult(a, cmd, result)
}

func newSearchResult(c *search.Cursor, p *search.Page) searchResult {
	res := searchResult{
		Variant:    c.Variant(),
		Page:       p.Number,
		PageSize:   p.Size,
		Total:      p.Total,
		Suggestion: c.Suggestion(),
		Hits:       make([]searchHit, 0, len(p.Hits)),
	}
	for _, h := range p.Hits {
		res.Hits = append(res.Hits, searchHit{
			ID:        h.ID,
			Title:     h.Title,
			Score:     h.Score,
			Highlight: h.Highlight,
		})
	}
	return res
}

func printSearchResult(a *app, cmd *cobra.Command, res searchResult) error {
	out := a.output(cmd)
	if out.JSONMode() {
		return out.JSON(res)
	}

	if res.Suggestion != "" {
		out.Statusf("💡", "Did you mean: %s", res.Suggestion)
	}
	if res.Total == 0 {
		out.Status("🔍", "No documents found")
		return nil
	}

	pages := (res.Total + uint64(res.PageSize) - 1) / uint64(res.PageSize)
	out.Statusf("🔍", "%d documents (page %d of %d)", res.Total, res.Page, pages)
	out.Newline()
	first := (res.Page-1)*res.PageSize + 1
	for i, h := range res.Hits {
		trailer := ""
		if h.Score != nil {
			trailer = fmt.Sprintf("score %.2f", *h.Score)
		}
		out.Item(first+i, fmt.Sprintf("[%d] %s", h.ID, h.Title), trailer)
		out.Detail(out.Highlight(h.Highlight))
	}
	return nil
}
