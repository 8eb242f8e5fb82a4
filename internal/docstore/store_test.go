package docstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/index"
	"github.com/docsift/docsift/internal/matching"
	"github.com/docsift/docsift/internal/search"
)

var _ search.ContentSource = (*Store)(nil)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "docsift.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seed stores the entities and one fully populated document.
func seed(t *testing.T, s *Store) index.Document {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, 10, "alice"))
	require.NoError(t, s.SaveUser(ctx, 11, "bob"))
	require.NoError(t, s.SaveCorrespondent(ctx, matching.Entity{ID: 7, Name: "City Power",
		Rule: matching.Rule{Algorithm: matching.AlgorithmAny, Match: "electricity", CaseInsensitive: true}}))
	require.NoError(t, s.SaveDocumentType(ctx, matching.Entity{ID: 3, Name: "Invoice",
		Rule: matching.Rule{Algorithm: matching.AlgorithmFuzzy, Match: "invoice"}}))
	require.NoError(t, s.SaveStoragePath(ctx, matching.Entity{ID: 2, Name: "bills"}))
	require.NoError(t, s.SaveTag(ctx, matching.Entity{ID: 4, Name: "utilities",
		Rule: matching.Rule{Algorithm: matching.AlgorithmRegex, Match: `power|water`}}))
	require.NoError(t, s.SaveTag(ctx, matching.Entity{ID: 5, Name: "paid"}))

	asn := int64(1001)
	doc := index.Document{
		ID:            1,
		Title:         "March electricity",
		Content:       "Electricity invoice for March",
		Correspondent: &index.Relation{ID: 7},
		DocumentType:  &index.Relation{ID: 3},
		StoragePath:   &index.Relation{ID: 2},
		Owner:         &index.Relation{ID: 10},
		Tags:          []index.Relation{{ID: 5}, {ID: 4}},
		Notes:         []string{"paid by card", "scanned twice"},
		ViewerIDs:     []int64{11},
		ASN:           &asn,
		Created:       day(2024, 3, 15),
		Modified:      day(2024, 3, 16),
		Added:         day(2024, 3, 16),
	}
	require.NoError(t, s.SaveDocument(ctx, doc))
	return doc
}

func TestDocument_RoundTrip(t *testing.T) {
	// Given: a document pointing at every kind of entity
	s := newTestStore(t)
	seed(t, s)

	// When: it is loaded back
	got, err := s.Document(context.Background(), 1)

	// Then: relations carry their names and lists are ordered by id
	require.NoError(t, err)
	assert.Equal(t, "March electricity", got.Title)
	assert.Equal(t, &index.Relation{ID: 7, Name: "City Power"}, got.Correspondent)
	assert.Equal(t, &index.Relation{ID: 3, Name: "Invoice"}, got.DocumentType)
	assert.Equal(t, &index.Relation{ID: 2, Name: "bills"}, got.StoragePath)
	assert.Equal(t, &index.Relation{ID: 10, Name: "alice"}, got.Owner)
	assert.Equal(t, []index.Relation{{ID: 4, Name: "utilities"}, {ID: 5, Name: "paid"}}, got.Tags)
	assert.Equal(t, []string{"paid by card", "scanned twice"}, got.Notes)
	assert.Equal(t, []int64{11}, got.ViewerIDs)
	require.NotNil(t, got.ASN)
	assert.Equal(t, int64(1001), *got.ASN)
	assert.True(t, got.Created.Equal(day(2024, 3, 15)))
	assert.True(t, got.Modified.Equal(day(2024, 3, 16)))
}

func TestDocument_OptionalRelationsAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveDocument(ctx, index.Document{ID: 2, Title: "loose", Modified: day(2024, 1, 1)}))

	got, err := s.Document(ctx, 2)

	require.NoError(t, err)
	assert.Nil(t, got.Correspondent)
	assert.Nil(t, got.Owner)
	assert.Nil(t, got.ASN)
	assert.Empty(t, got.Tags)
	assert.Empty(t, got.ViewerIDs)
}

func TestDocument_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Document(context.Background(), 404)
	assert.True(t, serrors.IsNotFound(err))

	_, err = s.DocumentContent(context.Background(), 404)
	assert.True(t, serrors.IsNotFound(err))
}

func TestSaveDocument_ReplacesLists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := seed(t, s)

	doc.Tags = []index.Relation{{ID: 5}}
	doc.Notes = nil
	doc.Owner = nil
	require.NoError(t, s.SaveDocument(ctx, doc))

	got, err := s.Document(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []index.Relation{{ID: 5, Name: "paid"}}, got.Tags)
	assert.Empty(t, got.Notes)
	assert.Nil(t, got.Owner)
}

func TestSaveDocument_UnknownRelation(t *testing.T) {
	s := newTestStore(t)

	err := s.SaveDocument(context.Background(), index.Document{ID: 1, Correspondent: &index.Relation{ID: 99}})

	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeDatabase, serrors.GetCode(err))
}

func TestSaveDocument_StampsModified(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	before := time.Now().Add(-time.Second)

	require.NoError(t, s.SaveDocument(ctx, index.Document{ID: 3}))

	got, err := s.Document(ctx, 3)
	require.NoError(t, err)
	assert.True(t, got.Modified.After(before))
}

func TestModifiedSince(t *testing.T) {
	// Given: documents modified on different days
	s := newTestStore(t)
	ctx := context.Background()
	for id, d := range map[int64]time.Time{
		1: day(2024, 1, 1),
		2: day(2024, 2, 1),
		3: day(2024, 3, 1),
	} {
		require.NoError(t, s.SaveDocument(ctx, index.Document{ID: id, Modified: d}))
	}

	// When/Then: the bound is inclusive
	ids, err := s.ModifiedSince(ctx, day(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ids)

	ids, err = s.ModifiedSince(ctx, day(2025, 1, 1))
	require.NoError(t, err)
	assert.Empty(t, ids)

	all, err := s.DocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, all)
}

func TestDeleteDocument_CascadesRelations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s)

	require.NoError(t, s.DeleteDocument(ctx, 1))
	require.NoError(t, s.DeleteDocument(ctx, 1))

	ids, err := s.DocumentIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDocumentContent(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	got, err := s.DocumentContent(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "Electricity invoice for March", got)
}

func TestEntities(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	corr, err := s.Correspondents(ctx)
	require.NoError(t, err)
	require.Len(t, corr, 1)
	assert.Equal(t, matching.Entity{ID: 7, Name: "City Power",
		Rule: matching.Rule{Algorithm: matching.AlgorithmAny, Match: "electricity", CaseInsensitive: true}}, corr[0])

	tags, err := s.Tags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, matching.AlgorithmRegex, tags[0].Rule.Algorithm)
	assert.False(t, tags[0].Rule.CaseInsensitive)

	types, err := s.DocumentTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, 1)

	paths, err := s.StoragePaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, matching.AlgorithmNone, paths[0].Rule.Algorithm)
}

func TestEntities_FeedMatchingEngine(t *testing.T) {
	// Given: rules stored in the database
	s := newTestStore(t)
	doc := seed(t, s)

	// When: a batch is classified straight from the store
	got, err := matching.NewEngine(nil).SuggestFrom(context.Background(), s,
		[]matching.Document{{ID: doc.ID, Title: doc.Title, Content: doc.Content}})

	// Then: the stored rules select the expected entities
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Correspondents, 1)
	assert.Equal(t, int64(7), got[0].Correspondents[0].ID)
	require.Len(t, got[0].DocumentTypes, 1)
	assert.Empty(t, got[0].Tags)
}

func TestOpen_ReopensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "docsift.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.SaveDocument(ctx, index.Document{ID: 1, Title: "kept", Modified: day(2024, 1, 1)}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Document(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Title)
	assert.Equal(t, path, s.Path())
}

func TestOpen_RejectsCorruptDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsift.db")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("not a database ", 128)), 0o644))

	_, err := Open(context.Background(), path)

	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeDatabase, serrors.GetCode(err))

	// the file is left for recovery
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestOpen_InMemory(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveDocument(ctx, index.Document{ID: 1, Modified: day(2024, 1, 1)}))
	ids, err := s.DocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestClosedStore(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.DocumentIDs(context.Background())
	assert.Error(t, err)
}
