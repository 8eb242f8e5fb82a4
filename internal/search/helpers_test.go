package search

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/index"
	"github.com/docsift/docsift/internal/logging"
)

var now = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func asn(n int64) *int64 { return &n }

// corpus has two owned and two unowned documents:
//
//	1 owned by 10, viewable by 11 and 12
//	2 unowned, no relations
//	3 owned by 20
//	4 unowned
func corpus() []index.Document {
	return []index.Document{
		{
			ID:            1,
			Title:         "Electricity invoice March",
			Content:       "Electricity invoice document for March. Amount due 120 EUR.",
			Correspondent: &index.Relation{ID: 7, Name: "City Power"},
			DocumentType:  &index.Relation{ID: 3, Name: "Invoice"},
			StoragePath:   &index.Relation{ID: 2, Name: "bills"},
			Owner:         &index.Relation{ID: 10, Name: "alice"},
			Tags:          []index.Relation{{ID: 4, Name: "Utilities"}, {ID: 5, Name: "Paid"}},
			ViewerIDs:     []int64{11, 12},
			ASN:           asn(1001),
			Created:       day(2024, 3, 15),
			Modified:      day(2024, 3, 15),
			Added:         day(2024, 3, 16),
		},
		{
			ID:       2,
			Title:    "Letter from the bank",
			Content:  "Bank letter document about new account terms.",
			Created:  day(2024, 2, 15),
			Modified: day(2024, 2, 15),
			Added:    day(2024, 2, 16),
		},
		{
			ID:            3,
			Title:         "Water invoice June",
			Content:       "Water invoice document for June. Amount due 45 EUR.",
			Correspondent: &index.Relation{ID: 8, Name: "Waterworks"},
			Owner:         &index.Relation{ID: 20, Name: "bob"},
			Tags:          []index.Relation{{ID: 4, Name: "Utilities"}},
			Created:       day(2023, 6, 1),
			Modified:      day(2023, 6, 1),
			Added:         day(2023, 6, 2),
		},
		{
			ID:            4,
			Title:         "Insurance policy",
			Content:       "Insurance policy document with yearly premium.",
			Correspondent: &index.Relation{ID: 9, Name: "Acme Insurance"},
			DocumentType:  &index.Relation{ID: 5, Name: "Policy"},
			Tags:          []index.Relation{{ID: 6, Name: "Insurance"}},
			ASN:           asn(5),
			Created:       day(2024, 3, 10),
			Modified:      day(2024, 3, 11),
			Added:         day(2024, 3, 11),
		},
	}
}

// newCorpusStore returns an in-memory index holding corpus().
func newCorpusStore(t *testing.T) *index.Store {
	t.Helper()
	s, err := index.OpenMemory(index.WithLogger(logging.NewRecorder().Logger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.WithWriter(context.Background(), false, func(w *index.Writer) error {
		for _, d := range corpus() {
			if err := w.UpdateDocument(d); err != nil {
				return err
			}
		}
		return nil
	}))
	return s
}

// withCursor runs fn with a cursor over s for params.
func withCursor(t *testing.T, s *index.Store, params Params, fn func(c *Cursor), opts ...CursorOption) {
	t.Helper()
	opts = append([]CursorOption{WithNow(now), WithLogger(logging.NewRecorder().Logger())}, opts...)
	require.NoError(t, s.WithReader(func(r *index.Reader) error {
		c, err := NewCursor(r, params, opts...)
		require.NoError(t, err)
		fn(c)
		return nil
	}))
}

// searchIDs returns the ids of all hits for params in result order.
func searchIDs(t *testing.T, s *index.Store, params Params, opts ...CursorOption) []int64 {
	t.Helper()
	var ids []int64
	withCursor(t, s, params, func(c *Cursor) {
		p, err := c.Page(context.Background(), 0)
		require.NoError(t, err)
		for _, h := range p.Hits {
			ids = append(ids, h.ID)
		}
	}, append([]CursorOption{WithPageSize(100)}, opts...)...)
	return ids
}

// counterValue sums the samples of a counter family whose label matches.
// An empty label matches every sample.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label == "" || hasLabel(m.GetLabel(), label, value) {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func hasLabel(pairs []*dto.LabelPair, name, value string) bool {
	for _, p := range pairs {
		if p.GetName() == name && p.GetValue() == value {
			return true
		}
	}
	return false
}

// staticContent is a ContentSource backed by a map.
type staticContent map[int64]string

func (s staticContent) DocumentContent(_ context.Context, id int64) (string, error) {
	text, ok := s[id]
	if !ok {
		return "", serrors.NotFound(id)
	}
	return text, nil
}

func corpusContent() staticContent {
	out := staticContent{}
	for _, d := range corpus() {
		out[d.ID] = d.Content
	}
	return out
}
