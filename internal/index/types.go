package index

import "time"

// Relation is a named entity a document points at (correspondent, tag, owner, ...).
type Relation struct {
	ID   int64
	Name string
}

// Document is the document-of-record view the index is built from.
type Document struct {
	ID            int64
	Title         string
	Content       string
	Correspondent *Relation
	DocumentType  *Relation
	StoragePath   *Relation
	Owner         *Relation
	Tags          []Relation
	Notes         []string
	// ViewerIDs are users explicitly granted view permission.
	ViewerIDs []int64
	// ASN is the archive serial number, nil when unset.
	ASN      *int64
	Created  time.Time
	Modified time.Time
	Added    time.Time
}

// Record is the flattened, stored form of a Document inside the index.
// Relation fields are zero and their Has flag false when the relation is absent.
type Record struct {
	ID      int64
	Title   string
	Content string
	Notes   string

	Correspondent    string
	CorrespondentID  int64
	HasCorrespondent bool

	// Tag and TagID are comma-joined lists.
	Tag    string
	TagID  string
	HasTag bool

	Type    string
	TypeID  int64
	HasType bool

	Path    string
	PathID  int64
	HasPath bool

	// ASN is 0 when absent or out of range.
	ASN int64

	Created  time.Time
	Modified time.Time
	Added    time.Time

	Owner    string
	OwnerID  int64
	HasOwner bool

	// ViewerID is a comma-joined list of user ids.
	ViewerID string
}
