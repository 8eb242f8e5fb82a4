package docstore

import (
	"context"
	"fmt"

	"github.com/docsift/docsift/internal/matching"
)

// Rule-bearing entity tables. They share one layout.
const (
	tableCorrespondents = "correspondents"
	tableDocumentTypes  = "document_types"
	tableTags           = "tags"
	tableStoragePaths   = "storage_paths"
)

var _ matching.EntitySource = (*Store)(nil)

// Correspondents returns every correspondent with its matching rule.
func (s *Store) Correspondents(ctx context.Context) ([]matching.Entity, error) {
	return s.entities(ctx, tableCorrespondents)
}

// DocumentTypes returns every document type with its matching rule.
func (s *Store) DocumentTypes(ctx context.Context) ([]matching.Entity, error) {
	return s.entities(ctx, tableDocumentTypes)
}

// Tags returns every tag with its matching rule.
func (s *Store) Tags(ctx context.Context) ([]matching.Entity, error) {
	return s.entities(ctx, tableTags)
}

// StoragePaths returns every storage path with its matching rule.
func (s *Store) StoragePaths(ctx context.Context) ([]matching.Entity, error) {
	return s.entities(ctx, tableStoragePaths)
}

func (s *Store) entities(ctx context.Context, table string) ([]matching.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, name, match, matching_algorithm, is_insensitive FROM %s ORDER BY id`, table))
	if err != nil {
		return nil, dbError(fmt.Sprintf("cannot list %s", table), err)
	}
	defer rows.Close()

	out := []matching.Entity{}
	for rows.Next() {
		var (
			e           matching.Entity
			algorithm   int64
			insensitive int64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Rule.Match, &algorithm, &insensitive); err != nil {
			return nil, dbError(fmt.Sprintf("cannot read %s", table), err)
		}
		e.Rule.Algorithm = matching.Algorithm(algorithm)
		e.Rule.CaseInsensitive = insensitive != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveCorrespondent inserts or replaces a correspondent.
func (s *Store) SaveCorrespondent(ctx context.Context, e matching.Entity) error {
	return s.saveEntity(ctx, tableCorrespondents, e)
}

// SaveDocumentType inserts or replaces a document type.
func (s *Store) SaveDocumentType(ctx context.Context, e matching.Entity) error {
	return s.saveEntity(ctx, tableDocumentTypes, e)
}

// SaveTag inserts or replaces a tag.
func (s *Store) SaveTag(ctx context.Context, e matching.Entity) error {
	return s.saveEntity(ctx, tableTags, e)
}

// SaveStoragePath inserts or replaces a storage path.
func (s *Store) SaveStoragePath(ctx context.Context, e matching.Entity) error {
	return s.saveEntity(ctx, tableStoragePaths, e)
}

func (s *Store) saveEntity(ctx context.Context, table string, e matching.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return err
	}

	insensitive := 0
	if e.Rule.CaseInsensitive {
		insensitive = 1
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, name, match, matching_algorithm, is_insensitive)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			match = excluded.match,
			matching_algorithm = excluded.matching_algorithm,
			is_insensitive = excluded.is_insensitive`, table),
		e.ID, e.Name, e.Rule.Match, int64(e.Rule.Algorithm), insensitive)
	if err != nil {
		return dbError(fmt.Sprintf("cannot save %s %d", table, e.ID), err)
	}
	return nil
}

// SaveUser inserts or renames a user.
func (s *Store) SaveUser(ctx context.Context, id int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO users (id, username) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username`, id, username)
	if err != nil {
		return dbError(fmt.Sprintf("cannot save user %d", id), err)
	}
	return nil
}
