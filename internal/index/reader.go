package index

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	bsearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/collector"
	"github.com/blevesearch/bleve/v2/search/highlight"
	bindex "github.com/blevesearch/bleve_index_api"

	serrors "github.com/docsift/docsift/internal/errors"
)

// Reader is a read-only view of the index, valid only inside WithReader.
// It sees the index as it was when the scope opened: batches committed
// later, even while the scope is still running, are never visible.
type Reader struct {
	snap    bindex.IndexReader
	mapping mapping.IndexMapping
	closed  atomic.Bool
}

// TermEntry is a term and the number of documents containing it.
type TermEntry struct {
	Term  string
	Count uint64
}

// WithReader runs fn with a Reader over a snapshot of the index. The
// snapshot is released when fn returns, panics included.
func (s *Store) WithReader(fn func(*Reader) error) (err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.index()
	if err != nil {
		return err
	}

	adv, err := idx.Advanced()
	if err != nil {
		return serrors.New(serrors.ErrCodeIndexOpen, "cannot access index", err)
	}
	snap, err := adv.Reader()
	if err != nil {
		return serrors.New(serrors.ErrCodeIndexOpen, "cannot open index snapshot", err)
	}

	r := &Reader{snap: snap, mapping: idx.Mapping()}
	defer func() {
		r.closed.Store(true)
		if cerr := snap.Close(); cerr != nil && err == nil {
			err = serrors.New(serrors.ErrCodeIndexOpen, "cannot release index snapshot", cerr)
		}
	}()
	return fn(r)
}

func (r *Reader) check() error {
	if r.closed.Load() {
		return serrors.New(serrors.ErrCodeReaderClosed, "index reader used after its scope ended", nil)
	}
	return nil
}

// Search executes req against the snapshot. Requested stored fields are
// loaded and highlights computed with the highlighter named by the request.
func (r *Reader) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	res, err := r.search(ctx, req)
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeSearchFailed, "search failed", err)
	}
	return res, nil
}

func (r *Reader) search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	began := time.Now()

	order := req.Sort
	if len(order) == 0 {
		order = bsearch.SortOrder{&bsearch.SortScore{Desc: true}}
	}

	searcher, err := req.Query.Searcher(ctx, r.snap, r.mapping, bsearch.SearcherOptions{
		Explain:            req.Explain,
		IncludeTermVectors: req.IncludeLocations || req.Highlight != nil,
		Score:              req.Score,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = searcher.Close() }()

	coll := collector.NewTopNCollector(req.Size, req.From, order)
	if err := coll.Collect(ctx, searcher, r.snap); err != nil {
		return nil, err
	}

	var highlighter highlight.Highlighter
	if req.Highlight != nil {
		name := bleve.Config.DefaultHighlighter
		if req.Highlight.Style != nil {
			name = *req.Highlight.Style
		}
		highlighter, err = bleve.Config.Cache.HighlighterNamed(name)
		if err != nil {
			return nil, err
		}
	}

	hits := coll.Results()
	for _, hit := range hits {
		if err, _ := bleve.LoadAndHighlightFields(hit, req, "", r.snap, highlighter); err != nil {
			return nil, err
		}
	}

	return &bleve.SearchResult{
		Status:   &bleve.SearchStatus{Total: 1, Successful: 1},
		Hits:     hits,
		Total:    coll.Total(),
		MaxScore: coll.MaxScore(),
		Took:     time.Since(began),
	}, nil
}

// Document reads back the stored record for id.
func (r *Reader) Document(ctx context.Context, id int64) (Record, bool, error) {
	if err := r.check(); err != nil {
		return Record{}, false, err
	}

	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{strconv.FormatInt(id, 10)}))
	req.Size = 1
	req.Fields = []string{"*"}

	res, err := r.search(ctx, req)
	if err != nil {
		return Record{}, false, serrors.New(serrors.ErrCodeSearchFailed, fmt.Sprintf("cannot load document %d", id), err)
	}
	if len(res.Hits) == 0 {
		return Record{}, false, nil
	}
	return recordFromFields(res.Hits[0].Fields), true, nil
}

// AllIDs returns the ids of every indexed record.
func (r *Reader) AllIDs(ctx context.Context) ([]int64, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	ids, err := r.snap.DocIDReaderAll()
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeSearchFailed, "failed to list indexed ids", err)
	}
	defer func() { _ = ids.Close() }()

	var out []int64
	for {
		internal, err := ids.Next()
		if err != nil {
			return nil, serrors.New(serrors.ErrCodeSearchFailed, "failed to list indexed ids", err)
		}
		if internal == nil {
			return out, nil
		}
		ext, err := r.snap.ExternalID(internal)
		if err != nil {
			return nil, serrors.New(serrors.ErrCodeSearchFailed, "failed to list indexed ids", err)
		}
		id, err := strconv.ParseInt(ext, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
}

// DocCount returns the number of indexed records.
func (r *Reader) DocCount() (uint64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	n, err := r.snap.DocCount()
	if err != nil {
		return 0, serrors.New(serrors.ErrCodeSearchFailed, "cannot count documents", err)
	}
	return n, nil
}

// DocFrequency returns how many records contain term in field.
func (r *Reader) DocFrequency(field, term string) (uint64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	dict, err := r.snap.FieldDictRange(field, []byte(term), []byte(term))
	if err != nil {
		return 0, serrors.New(serrors.ErrCodeSearchFailed, "cannot read term dictionary", err)
	}
	entries, err := drain(dict)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.Term == term {
			return e.Count, nil
		}
	}
	return 0, nil
}

// Terms lists the terms of field starting with prefix, in term order.
func (r *Reader) Terms(field, prefix string) ([]TermEntry, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	dict, err := r.snap.FieldDictPrefix(field, []byte(prefix))
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeSearchFailed, "cannot read term dictionary", err)
	}
	return drain(dict)
}

func drain(dict bindex.FieldDict) ([]TermEntry, error) {
	defer func() { _ = dict.Close() }()

	var out []TermEntry
	for {
		entry, err := dict.Next()
		if err != nil {
			return nil, serrors.New(serrors.ErrCodeSearchFailed, "cannot iterate term dictionary", err)
		}
		if entry == nil {
			return out, nil
		}
		out = append(out, TermEntry{Term: entry.Term, Count: entry.Count})
	}
}

// Analyze runs text through the analyzer configured for field and returns the terms.
func (r *Reader) Analyze(field, text string) ([]string, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	analyzer := r.mapping.AnalyzerNamed(r.mapping.AnalyzerNameForPath(field))
	if analyzer == nil {
		return nil, serrors.New(serrors.ErrCodeInternal, fmt.Sprintf("no analyzer for field %s", field), nil)
	}

	tokens := analyzer.Analyze([]byte(text))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, string(tok.Term))
	}
	return terms, nil
}
