package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/matching"
)

type matchedEntity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type matchResult struct {
	DocumentID     int64           `json:"document_id"`
	Title          string          `json:"title"`
	Correspondents []matchedEntity `json:"correspondents"`
	DocumentTypes  []matchedEntity `json:"document_types"`
	Tags           []matchedEntity `json:"tags"`
	StoragePaths   []matchedEntity `json:"storage_paths"`
}

func newMatchCmd(a *app) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "match [document-id...]",
		Short: "Suggest correspondents, types, tags and storage paths",
		Long: `Evaluate the matching rule of every correspondent, document type, tag and
storage path against each document and list the entities that apply.
Without ids, every document in the database is classified.

Examples:
  docsift match 42
  docsift match --workers 8 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return serrors.ValidationError(fmt.Sprintf("invalid document id %q", arg), err)
				}
				ids = append(ids, id)
			}
			return runMatch(cmd.Context(), cmd, a, ids, workers)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Documents classified in parallel (default from config)")

	return cmd
}

func runMatch(ctx context.Context, cmd *cobra.Command, a *app, ids []int64, workers int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if workers <= 0 {
		workers = a.cfg.Matching.Workers
	}

	docs, err := a.openDocs(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = docs.Close() }()

	if len(ids) == 0 {
		if ids, err = docs.DocumentIDs(ctx); err != nil {
			return err
		}
	}

	batch := make([]matching.Document, 0, len(ids))
	titles := make(map[int64]string, len(ids))
	for _, id := range ids {
		doc, err := docs.Document(ctx, id)
		if err != nil {
			return err
		}
		titles[id] = doc.Title
		batch = append(batch, matching.Document{ID: doc.ID, Title: doc.Title, Content: doc.Content})
	}

	engine := matching.NewEngine(
		matching.NewMatcher(matching.WithLogger(a.logger), matching.WithMetrics(a.metrics)),
		matching.WithWorkers(workers),
		matching.WithEngineLogger(a.logger))
	suggestions, err := engine.SuggestFrom(ctx, docs, batch)
	if err != nil {
		return err
	}

	results := make([]matchResult, 0, len(suggestions))
	for _, s := range suggestions {
		results = append(results, matchResult{
			DocumentID:     s.DocumentID,
			Title:          titles[s.DocumentID],
			Correspondents: matched(s.Correspondents),
			DocumentTypes:  matched(s.DocumentTypes),
			Tags:           matched(s.Tags),
			StoragePaths:   matched(s.StoragePaths),
		})
	}

	out := a.output(cmd)
	if out.JSONMode() {
		return out.JSON(results)
	}
	if len(results) == 0 {
		out.Status("🔍", "No documents to classify")
		return nil
	}
	for i, r := range results {
		out.Item(i+1, fmt.Sprintf("[%d] %s", r.DocumentID, r.Title), "")
		out.Detail(entityLine("correspondents", r.Correspondents))
		out.Detail(entityLine("document types", r.DocumentTypes))
		out.Detail(entityLine("tags", r.Tags))
		out.Detail(entityLine("storage paths", r.StoragePaths))
	}
	return nil
}

func matched(entities []matching.Entity) []matchedEntity {
	out := make([]matchedEntity, 0, len(entities))
	for _, e := range entities {
		out = append(out, matchedEntity{ID: e.ID, Name: e.Name})
	}
	return out
}

// entityLine returns "" for an empty list so Detail skips it.
func entityLine(label string, entities []matchedEntity) string {
	if len(entities) == 0 {
		return ""
	}
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	return label + ": " + strings.Join(names, ", ")
}
