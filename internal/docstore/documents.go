package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/index"
)

const documentQuery = `
SELECT d.id, d.title, d.content,
       c.id, c.name, t.id, t.name, p.id, p.name, u.id, u.username,
       d.archive_serial_number, d.created, d.modified, d.added
FROM documents d
LEFT JOIN correspondents c ON c.id = d.correspondent_id
LEFT JOIN document_types t ON t.id = d.document_type_id
LEFT JOIN storage_paths p ON p.id = d.storage_path_id
LEFT JOIN users u ON u.id = d.owner_id
WHERE d.id = ?`

// Document loads the document with the given id and everything it points at.
// A missing document is an ErrCodeDocumentNotFound error.
func (s *Store) Document(ctx context.Context, id int64) (index.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return index.Document{}, err
	}

	var (
		doc                          index.Document
		corrID, typeID, pathID, uid  sql.NullInt64
		corrName, typeName, pathName sql.NullString
		userName                     sql.NullString
		asn                          sql.NullInt64
		created, modified, added     string
	)
	err = db.QueryRowContext(ctx, documentQuery, id).Scan(
		&doc.ID, &doc.Title, &doc.Content,
		&corrID, &corrName, &typeID, &typeName, &pathID, &pathName, &uid, &userName,
		&asn, &created, &modified, &added)
	if errors.Is(err, sql.ErrNoRows) {
		return index.Document{}, serrors.NotFound(id)
	}
	if err != nil {
		return index.Document{}, dbError(fmt.Sprintf("cannot load document %d", id), err)
	}

	doc.Correspondent = relation(corrID, corrName)
	doc.DocumentType = relation(typeID, typeName)
	doc.StoragePath = relation(pathID, pathName)
	doc.Owner = relation(uid, userName)
	if asn.Valid {
		v := asn.Int64
		doc.ASN = &v
	}
	if doc.Created, err = parseTime(created); err != nil {
		return index.Document{}, err
	}
	if doc.Modified, err = parseTime(modified); err != nil {
		return index.Document{}, err
	}
	if doc.Added, err = parseTime(added); err != nil {
		return index.Document{}, err
	}

	if doc.Tags, err = s.documentTags(ctx, db, id); err != nil {
		return index.Document{}, err
	}
	if doc.Notes, err = queryStrings(ctx, db, `SELECT note FROM notes WHERE document_id = ? ORDER BY id`, id); err != nil {
		return index.Document{}, err
	}
	if doc.ViewerIDs, err = queryIDs(ctx, db, `SELECT user_id FROM document_viewers WHERE document_id = ? ORDER BY user_id`, id); err != nil {
		return index.Document{}, err
	}
	return doc, nil
}

func relation(id sql.NullInt64, name sql.NullString) *index.Relation {
	if !id.Valid {
		return nil
	}
	return &index.Relation{ID: id.Int64, Name: name.String}
}

func (s *Store) documentTags(ctx context.Context, db *sql.DB, id int64) ([]index.Relation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT t.id, t.name FROM document_tags dt
		JOIN tags t ON t.id = dt.tag_id
		WHERE dt.document_id = ? ORDER BY t.id`, id)
	if err != nil {
		return nil, dbError("cannot load tags", err)
	}
	defer rows.Close()

	var tags []index.Relation
	for rows.Next() {
		var r index.Relation
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, dbError("cannot read tag", err)
		}
		tags = append(tags, r)
	}
	return tags, rows.Err()
}

// DocumentContent returns only the content of a document.
func (s *Store) DocumentContent(ctx context.Context, id int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return "", err
	}

	var content string
	err = db.QueryRowContext(ctx, `SELECT content FROM documents WHERE id = ?`, id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", serrors.NotFound(id)
	}
	if err != nil {
		return "", dbError(fmt.Sprintf("cannot load content of document %d", id), err)
	}
	return content, nil
}

// DocumentIDs returns the ids of all documents in ascending order.
func (s *Store) DocumentIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	return queryIDs(ctx, db, `SELECT id FROM documents ORDER BY id`)
}

// ModifiedSince returns the ids of documents modified at or after t.
func (s *Store) ModifiedSince(ctx context.Context, t time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	return queryIDs(ctx, db, `SELECT id FROM documents WHERE modified >= ? ORDER BY id`, formatTime(t))
}

// SaveDocument inserts or replaces doc. Relations are referenced by id and
// must exist; their names are ignored. Tags, notes and viewers are replaced.
// A zero Modified is set to the current time.
func (s *Store) SaveDocument(ctx context.Context, doc index.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return err
	}
	if doc.Modified.IsZero() {
		doc.Modified = time.Now()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var asn any
	if doc.ASN != nil {
		asn = *doc.ASN
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, correspondent_id, document_type_id,
			storage_path_id, owner_id, archive_serial_number, created, modified, added)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			correspondent_id = excluded.correspondent_id,
			document_type_id = excluded.document_type_id,
			storage_path_id = excluded.storage_path_id,
			owner_id = excluded.owner_id,
			archive_serial_number = excluded.archive_serial_number,
			created = excluded.created,
			modified = excluded.modified,
			added = excluded.added`,
		doc.ID, doc.Title, doc.Content,
		relationID(doc.Correspondent), relationID(doc.DocumentType),
		relationID(doc.StoragePath), relationID(doc.Owner),
		asn, formatTime(doc.Created), formatTime(doc.Modified), formatTime(doc.Added))
	if err != nil {
		return dbError(fmt.Sprintf("cannot save document %d", doc.ID), err)
	}

	for _, stmt := range []string{
		`DELETE FROM document_tags WHERE document_id = ?`,
		`DELETE FROM notes WHERE document_id = ?`,
		`DELETE FROM document_viewers WHERE document_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, doc.ID); err != nil {
			return dbError(fmt.Sprintf("cannot reset relations of document %d", doc.ID), err)
		}
	}
	for _, tag := range doc.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO document_tags (document_id, tag_id) VALUES (?, ?)`, doc.ID, tag.ID); err != nil {
			return dbError(fmt.Sprintf("cannot tag document %d", doc.ID), err)
		}
	}
	for _, note := range doc.Notes {
		if _, err := tx.ExecContext(ctx, `INSERT INTO notes (document_id, note) VALUES (?, ?)`, doc.ID, note); err != nil {
			return dbError(fmt.Sprintf("cannot add note to document %d", doc.ID), err)
		}
	}
	for _, uid := range doc.ViewerIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO document_viewers (document_id, user_id) VALUES (?, ?)`, doc.ID, uid); err != nil {
			return dbError(fmt.Sprintf("cannot grant view on document %d", doc.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("failed to commit", err)
	}
	return nil
}

// DeleteDocument removes a document. Unknown ids are ignored.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return dbError(fmt.Sprintf("cannot delete document %d", id), err)
	}
	return nil
}

func relationID(r *index.Relation) any {
	if r == nil {
		return nil
	}
	return r.ID
}

func queryIDs(ctx context.Context, db *sql.DB, query string, args ...any) ([]int64, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("query failed", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, dbError("cannot read id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("query failed", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, dbError("cannot read value", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
