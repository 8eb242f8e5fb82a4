package index

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Project flattens doc into its index record. An archive serial number
// outside the store's range is dropped (stored as 0) with one error log.
func (s *Store) Project(doc Document) Record {
	rec := Record{
		ID:       doc.ID,
		Title:    doc.Title,
		Content:  doc.Content,
		Notes:    strings.Join(doc.Notes, ","),
		Created:  doc.Created,
		Modified: doc.Modified,
		Added:    doc.Added,
	}

	if r := doc.Correspondent; r != nil {
		rec.Correspondent, rec.CorrespondentID, rec.HasCorrespondent = r.Name, r.ID, true
	}
	if r := doc.DocumentType; r != nil {
		rec.Type, rec.TypeID, rec.HasType = r.Name, r.ID, true
	}
	if r := doc.StoragePath; r != nil {
		rec.Path, rec.PathID, rec.HasPath = r.Name, r.ID, true
	}
	if r := doc.Owner; r != nil {
		rec.Owner, rec.OwnerID, rec.HasOwner = r.Name, r.ID, true
	}

	if len(doc.Tags) > 0 {
		names := make([]string, len(doc.Tags))
		ids := make([]string, len(doc.Tags))
		for i, t := range doc.Tags {
			names[i] = t.Name
			ids[i] = strconv.FormatInt(t.ID, 10)
		}
		rec.Tag = strings.Join(names, ",")
		rec.TagID = strings.Join(ids, ",")
		rec.HasTag = true
	}

	if len(doc.ViewerIDs) > 0 {
		ids := make([]string, len(doc.ViewerIDs))
		for i, id := range doc.ViewerIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		rec.ViewerID = strings.Join(ids, ",")
	}

	if doc.ASN != nil {
		asn := *doc.ASN
		if asn < s.asnMin || asn > s.asnMax {
			s.logger.Error("Archive serial number out of range, not indexed",
				slog.Int64("document_id", doc.ID),
				slog.Int64("asn", asn),
				slog.Int64("min", s.asnMin),
				slog.Int64("max", s.asnMax))
			s.metrics.ASNViolation()
		} else {
			rec.ASN = asn
		}
	}

	return rec
}

// UpdateDocument projects doc and upserts it.
func (w *Writer) UpdateDocument(doc Document) error {
	return w.Update(w.store.Project(doc))
}

// RemoveDocument deletes the record for document id.
func (w *Writer) RemoveDocument(id int64) error {
	return w.Delete(id)
}

// AddOrUpdateDocument indexes doc in its own writer scope.
func (s *Store) AddOrUpdateDocument(ctx context.Context, doc Document) error {
	return s.WithWriter(ctx, false, func(w *Writer) error {
		return w.UpdateDocument(doc)
	})
}

// RemoveDocumentFromIndex removes document id in its own writer scope.
func (s *Store) RemoveDocumentFromIndex(ctx context.Context, id int64) error {
	return s.WithWriter(ctx, false, func(w *Writer) error {
		return w.RemoveDocument(id)
	})
}

// recordFields is the bleve document for rec. Absent relations leave their
// name and id fields out; flags and asn are always present.
func recordFields(rec Record) map[string]interface{} {
	f := map[string]interface{}{
		FieldID:               float64(rec.ID),
		FieldTitle:            rec.Title,
		FieldTitleSort:        rec.Title,
		FieldContent:          rec.Content,
		FieldNotes:            rec.Notes,
		FieldHasCorrespondent: rec.HasCorrespondent,
		FieldHasTag:           rec.HasTag,
		FieldHasType:          rec.HasType,
		FieldHasPath:          rec.HasPath,
		FieldHasOwner:         rec.HasOwner,
		FieldASN:              float64(rec.ASN),
	}

	if rec.HasCorrespondent {
		f[FieldCorrespondent] = rec.Correspondent
		f[FieldCorrespondentSort] = rec.Correspondent
		f[FieldCorrespondentID] = float64(rec.CorrespondentID)
	}
	if rec.HasType {
		f[FieldType] = rec.Type
		f[FieldTypeSort] = rec.Type
		f[FieldTypeID] = float64(rec.TypeID)
	}
	if rec.HasPath {
		f[FieldPath] = rec.Path
		f[FieldPathID] = float64(rec.PathID)
	}
	if rec.HasOwner {
		f[FieldOwner] = rec.Owner
		f[FieldOwnerID] = float64(rec.OwnerID)
	}
	if rec.HasTag {
		f[FieldTag] = rec.Tag
		f[FieldTagID] = rec.TagID
	}
	if rec.ViewerID != "" {
		f[FieldViewerID] = rec.ViewerID
	}

	for name, t := range map[string]time.Time{FieldCreated: rec.Created, FieldModified: rec.Modified, FieldAdded: rec.Added} {
		if !t.IsZero() {
			f[name] = t
		}
	}
	return f
}

// recordFromFields rebuilds a Record from stored hit fields.
func recordFromFields(f map[string]interface{}) Record {
	return Record{
		ID:               fieldInt(f, FieldID),
		Title:            fieldString(f, FieldTitle),
		Content:          fieldString(f, FieldContent),
		Notes:            fieldString(f, FieldNotes),
		Correspondent:    fieldString(f, FieldCorrespondent),
		CorrespondentID:  fieldInt(f, FieldCorrespondentID),
		HasCorrespondent: fieldBool(f, FieldHasCorrespondent),
		Tag:              fieldString(f, FieldTag),
		TagID:            fieldString(f, FieldTagID),
		HasTag:           fieldBool(f, FieldHasTag),
		Type:             fieldString(f, FieldType),
		TypeID:           fieldInt(f, FieldTypeID),
		HasType:          fieldBool(f, FieldHasType),
		Path:             fieldString(f, FieldPath),
		PathID:           fieldInt(f, FieldPathID),
		HasPath:          fieldBool(f, FieldHasPath),
		ASN:              fieldInt(f, FieldASN),
		Created:          fieldTime(f, FieldCreated),
		Modified:         fieldTime(f, FieldModified),
		Added:            fieldTime(f, FieldAdded),
		Owner:            fieldString(f, FieldOwner),
		OwnerID:          fieldInt(f, FieldOwnerID),
		HasOwner:         fieldBool(f, FieldHasOwner),
		ViewerID:         fieldString(f, FieldViewerID),
	}
}

// Stored multi-value fields come back as []interface{}; the first value wins.
func first(v interface{}) interface{} {
	if list, ok := v.([]interface{}); ok && len(list) > 0 {
		return list[0]
	}
	return v
}

func fieldString(f map[string]interface{}, name string) string {
	s, _ := first(f[name]).(string)
	return s
}

func fieldInt(f map[string]interface{}, name string) int64 {
	n, _ := first(f[name]).(float64)
	return int64(n)
}

func fieldBool(f map[string]interface{}, name string) bool {
	b, _ := first(f[name]).(bool)
	return b
}

func fieldTime(f map[string]interface{}, name string) time.Time {
	s := fieldString(f, name)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
