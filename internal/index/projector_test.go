package index

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/internal/telemetry"
)

func TestProject_FlattensRelations(t *testing.T) {
	s, _ := newMemStore(t)

	rec := s.Project(invoiceDoc())

	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, "City Power", rec.Correspondent)
	assert.Equal(t, int64(7), rec.CorrespondentID)
	assert.True(t, rec.HasCorrespondent)
	assert.Equal(t, "Utilities,Paid", rec.Tag)
	assert.Equal(t, "4,5", rec.TagID)
	assert.True(t, rec.HasTag)
	assert.Equal(t, "Invoice", rec.Type)
	assert.Equal(t, "bills", rec.Path)
	assert.Equal(t, "alice", rec.Owner)
	assert.Equal(t, int64(10), rec.OwnerID)
	assert.Equal(t, "11,12", rec.ViewerID)
	assert.Equal(t, "paid online,check meter", rec.Notes)
	assert.Equal(t, int64(1001), rec.ASN)
}

func TestProject_AbsentRelations(t *testing.T) {
	s, _ := newMemStore(t)

	rec := s.Project(letterDoc())

	assert.False(t, rec.HasCorrespondent)
	assert.False(t, rec.HasTag)
	assert.False(t, rec.HasType)
	assert.False(t, rec.HasPath)
	assert.False(t, rec.HasOwner)
	assert.Empty(t, rec.Tag)
	assert.Empty(t, rec.ViewerID)
	assert.Zero(t, rec.ASN)
}

func TestProject_ASNOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		asn  int64
	}{
		{"negative", -1},
		{"above max", 4294967296},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a store with the default range and metrics
			reg := prometheus.NewRegistry()
			s, rec := newMemStore(t, WithMetrics(telemetry.NewMetrics(reg)))
			doc := invoiceDoc()
			doc.ASN = asn(tt.asn)

			// When: indexing the document
			require.NoError(t, s.AddOrUpdateDocument(context.Background(), doc))

			// Then: exactly one error is logged and asn is stored as 0
			assert.Equal(t, 1, rec.Count(slog.LevelError, ""))
			assert.Equal(t, 1, rec.Count(slog.LevelError, "Archive serial number out of range, not indexed"))
			assert.Equal(t, 1.0, counterValue(t, reg, "docsift_asn_out_of_range_total"))

			require.NoError(t, s.WithReader(func(r *Reader) error {
				got, ok, err := r.Document(context.Background(), doc.ID)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Zero(t, got.ASN)
				return nil
			}))
		})
	}
}

func TestProject_ASNBoundsAreInclusive(t *testing.T) {
	s, rec := newMemStore(t, WithASNRange(10, 20))

	for _, n := range []int64{10, 20} {
		doc := letterDoc()
		doc.ASN = asn(n)
		assert.Equal(t, n, s.Project(doc).ASN)
	}
	assert.Zero(t, rec.Count(slog.LevelError, ""))
}

func TestRoundTrip_StoredFields(t *testing.T) {
	// Given: an indexed document with every relation
	s, _ := newMemStore(t)
	doc := invoiceDoc()
	require.NoError(t, s.AddOrUpdateDocument(context.Background(), doc))

	// When: reading it back
	var got Record
	require.NoError(t, s.WithReader(func(r *Reader) error {
		var ok bool
		var err error
		got, ok, err = r.Document(context.Background(), doc.ID)
		require.True(t, ok)
		return err
	}))

	// Then: the stored record equals the projection
	want := s.Project(doc)
	assert.True(t, want.Created.Equal(got.Created), "created %v != %v", want.Created, got.Created)
	assert.True(t, want.Modified.Equal(got.Modified))
	assert.True(t, want.Added.Equal(got.Added))
	got.Created, got.Modified, got.Added = want.Created, want.Modified, want.Added
	assert.Equal(t, want, got)
}

func TestRoundTrip_AbsentRelations(t *testing.T) {
	s, _ := newMemStore(t)
	doc := letterDoc()
	require.NoError(t, s.AddOrUpdateDocument(context.Background(), doc))

	require.NoError(t, s.WithReader(func(r *Reader) error {
		got, ok, err := r.Document(context.Background(), doc.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, got.HasCorrespondent)
		assert.Zero(t, got.CorrespondentID)
		assert.Empty(t, got.Correspondent)
		assert.Zero(t, got.ASN)
		assert.Equal(t, doc.Title, got.Title)
		return nil
	}))
}

func TestRemoveDocumentFromIndex(t *testing.T) {
	s, _ := newMemStore(t)
	indexDocs(t, s, invoiceDoc(), letterDoc())

	require.NoError(t, s.RemoveDocumentFromIndex(context.Background(), 1))

	assert.Equal(t, uint64(1), docCount(t, s))
	require.NoError(t, s.WithReader(func(r *Reader) error {
		_, ok, err := r.Document(context.Background(), 1)
		assert.False(t, ok)
		return err
	}))
}

func TestUpdateDocument_Upserts(t *testing.T) {
	s, _ := newMemStore(t)
	indexDocs(t, s, invoiceDoc())

	doc := invoiceDoc()
	doc.Title = "Corrected invoice"
	indexDocs(t, s, doc)

	assert.Equal(t, uint64(1), docCount(t, s))
	require.NoError(t, s.WithReader(func(r *Reader) error {
		got, _, err := r.Document(context.Background(), 1)
		assert.Equal(t, "Corrected invoice", got.Title)
		return err
	}))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
