package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/internal/logging"
)

var baseTime = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func asn(n int64) *int64 { return &n }

func invoiceDoc() Document {
	return Document{
		ID:            1,
		Title:         "Electricity invoice March",
		Content:       "Your electricity invoice for March. Amount due 120 EUR.",
		Correspondent: &Relation{ID: 7, Name: "City Power"},
		DocumentType:  &Relation{ID: 3, Name: "Invoice"},
		StoragePath:   &Relation{ID: 2, Name: "bills"},
		Owner:         &Relation{ID: 10, Name: "alice"},
		Tags:          []Relation{{ID: 4, Name: "Utilities"}, {ID: 5, Name: "Paid"}},
		Notes:         []string{"paid online", "check meter"},
		ViewerIDs:     []int64{11, 12},
		ASN:           asn(1001),
		Created:       baseTime,
		Modified:      baseTime.Add(time.Hour),
		Added:         baseTime.Add(2 * time.Hour),
	}
}

func letterDoc() Document {
	return Document{
		ID:       2,
		Title:    "Letter from the bank",
		Content:  "The bank informs you about new account terms.",
		Created:  baseTime.AddDate(0, -1, 0),
		Modified: baseTime,
		Added:    baseTime,
	}
}

// newMemStore returns an in-memory store logging to a Recorder.
func newMemStore(t *testing.T, opts ...Option) (*Store, *logging.Recorder) {
	t.Helper()
	rec := logging.NewRecorder()
	s, err := OpenMemory(append([]Option{WithLogger(rec.Logger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, rec
}

func indexDocs(t *testing.T, s *Store, docs ...Document) {
	t.Helper()
	require.NoError(t, s.WithWriter(context.Background(), false, func(w *Writer) error {
		for _, d := range docs {
			if err := w.UpdateDocument(d); err != nil {
				return err
			}
		}
		return nil
	}))
}

func docCount(t *testing.T, s *Store) uint64 {
	t.Helper()
	var n uint64
	require.NoError(t, s.WithReader(func(r *Reader) error {
		var err error
		n, err = r.DocCount()
		return err
	}))
	return n
}
