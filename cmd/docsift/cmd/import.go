package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/docsift/docsift/internal/docstore"
	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/index"
	"github.com/docsift/docsift/internal/matching"
)

// archive is the JSON layout accepted by `docsift import`.
type archive struct {
	Users          []archiveUser     `json:"users"`
	Correspondents []archiveEntity   `json:"correspondents"`
	DocumentTypes  []archiveEntity   `json:"document_types"`
	Tags           []archiveEntity   `json:"tags"`
	StoragePaths   []archiveEntity   `json:"storage_paths"`
	Documents      []archiveDocument `json:"documents"`
}

type archiveUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type archiveEntity struct {
	ID                int64         `json:"id"`
	Name              string        `json:"name"`
	Match             string        `json:"match"`
	MatchingAlgorithm algorithmName `json:"matching_algorithm"`
	IsInsensitive     bool          `json:"is_insensitive"`
}

type archiveDocument struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Correspondent *int64    `json:"correspondent"`
	DocumentType  *int64    `json:"document_type"`
	StoragePath   *int64    `json:"storage_path"`
	Owner         *int64    `json:"owner"`
	Tags          []int64   `json:"tags"`
	Notes         []string  `json:"notes"`
	Viewers       []int64   `json:"viewers"`
	ASN           *int64    `json:"archive_serial_number"`
	Created       time.Time `json:"created"`
	Modified      time.Time `json:"modified"`
	Added         time.Time `json:"added"`
}

// algorithmName accepts an algorithm as a name ("fuzzy") or a number (5).
type algorithmName matching.Algorithm

func (a *algorithmName) UnmarshalJSON(b []byte) error {
	alg, err := matching.ParseAlgorithm(string(bytes.Trim(b, `"`)))
	if err != nil {
		return err
	}
	*a = algorithmName(alg)
	return nil
}

func (e archiveEntity) entity() matching.Entity {
	return matching.Entity{
		ID:   e.ID,
		Name: e.Name,
		Rule: matching.Rule{
			Algorithm:       matching.Algorithm(e.MatchingAlgorithm),
			Match:           e.Match,
			CaseInsensitive: e.IsInsensitive,
		},
	}
}

func (d archiveDocument) document(now time.Time) index.Document {
	doc := index.Document{
		ID:            d.ID,
		Title:         d.Title,
		Content:       d.Content,
		Correspondent: relation(d.Correspondent),
		DocumentType:  relation(d.DocumentType),
		StoragePath:   relation(d.StoragePath),
		Owner:         relation(d.Owner),
		Notes:         d.Notes,
		ViewerIDs:     d.Viewers,
		ASN:           d.ASN,
		Created:       d.Created,
		Modified:      d.Modified,
		Added:         d.Added,
	}
	for _, id := range d.Tags {
		doc.Tags = append(doc.Tags, index.Relation{ID: id})
	}
	if doc.Added.IsZero() {
		doc.Added = now
	}
	if doc.Created.IsZero() {
		doc.Created = doc.Added
	}
	return doc
}

func relation(id *int64) *index.Relation {
	if id == nil {
		return nil
	}
	return &index.Relation{ID: *id}
}

type importResult struct {
	Users     int `json:"users"`
	Entities  int `json:"entities"`
	Documents int `json:"documents"`
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json|->",
		Short: "Load users, rule entities and documents into the database",
		Long: `Load a JSON archive into the document database. Existing rows with the
same id are replaced. Run 'docsift index' afterwards, or keep
'docsift index --watch' running, to make the documents searchable.

The archive holds the arrays users, correspondents, document_types, tags,
storage_paths and documents. Matching algorithms may be given by name
(any, all, literal, regex, fuzzy, auto, none) or number.

Examples:
  docsift import archive.json
  cat archive.json | docsift import -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), cmd, a, args[0])
		},
	}
}

func runImport(ctx context.Context, cmd *cobra.Command, a *app, source string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	arc, err := readArchive(cmd.InOrStdin(), source)
	if err != nil {
		return err
	}

	docs, err := a.openDocs(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = docs.Close() }()

	res, err := importArchive(ctx, docs, arc, time.Now())
	if err != nil {
		return err
	}
	a.logger.Info("Archive imported",
		"users", res.Users,
		"entities", res.Entities,
		"documents", res.Documents)

	out := a.output(cmd)
	if out.JSONMode() {
		return out.JSON(res)
	}
	out.Successf("Imported %d documents, %d entities and %d users", res.Documents, res.Entities, res.Users)
	return nil
}

func readArchive(stdin io.Reader, source string) (*archive, error) {
	var r io.Reader = stdin
	if source != "-" {
		f, err := os.Open(source)
		if err != nil {
			return nil, serrors.New(serrors.ErrCodeFileNotFound, fmt.Sprintf("cannot open %s", source), err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var arc archive
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&arc); err != nil {
		return nil, serrors.ValidationError(fmt.Sprintf("invalid archive %s", strings.TrimSpace(source)), err)
	}
	return &arc, nil
}

// importArchive saves users first, then entities, then documents, so that
// document relations refer to rows that exist.
func importArchive(ctx context.Context, docs *docstore.Store, arc *archive, now time.Time) (importResult, error) {
	var res importResult

	for _, u := range arc.Users {
		if err := docs.SaveUser(ctx, u.ID, u.Username); err != nil {
			return res, err
		}
		res.Users++
	}

	groups := []struct {
		entities []archiveEntity
		save     func(context.Context, matching.Entity) error
	}{
		{arc.Correspondents, docs.SaveCorrespondent},
		{arc.DocumentTypes, docs.SaveDocumentType},
		{arc.Tags, docs.SaveTag},
		{arc.StoragePaths, docs.SaveStoragePath},
	}
	for _, g := range groups {
		for _, e := range g.entities {
			if err := g.save(ctx, e.entity()); err != nil {
				return res, err
			}
			res.Entities++
		}
	}

	for _, d := range arc.Documents {
		if err := docs.SaveDocument(ctx, d.document(now)); err != nil {
			return res, err
		}
		res.Documents++
	}
	return res, nil
}
