package matching

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the batch parallelism used when none is configured.
const DefaultWorkers = 4

// EntitySource lists the rule-bearing entities of the document-of-record.
type EntitySource interface {
	Correspondents(ctx context.Context) ([]Entity, error)
	DocumentTypes(ctx context.Context) ([]Entity, error)
	Tags(ctx context.Context) ([]Entity, error)
	StoragePaths(ctx context.Context) ([]Entity, error)
}

// Suggestion holds the entities selected for one document.
type Suggestion struct {
	DocumentID     int64
	Correspondents []Entity
	DocumentTypes  []Entity
	Tags           []Entity
	StoragePaths   []Entity
}

// RuleSets are the entity lists a batch is evaluated against.
type RuleSets struct {
	Correspondents []Entity
	DocumentTypes  []Entity
	Tags           []Entity
	StoragePaths   []Entity
}

// LoadRuleSets reads every rule-bearing entity from src.
func LoadRuleSets(ctx context.Context, src EntitySource) (RuleSets, error) {
	var (
		rs  RuleSets
		err error
	)
	if rs.Correspondents, err = src.Correspondents(ctx); err != nil {
		return RuleSets{}, fmt.Errorf("failed to load correspondents: %w", err)
	}
	if rs.DocumentTypes, err = src.DocumentTypes(ctx); err != nil {
		return RuleSets{}, fmt.Errorf("failed to load document types: %w", err)
	}
	if rs.Tags, err = src.Tags(ctx); err != nil {
		return RuleSets{}, fmt.Errorf("failed to load tags: %w", err)
	}
	if rs.StoragePaths, err = src.StoragePaths(ctx); err != nil {
		return RuleSets{}, fmt.Errorf("failed to load storage paths: %w", err)
	}
	return rs, nil
}

// Engine classifies batches of documents concurrently.
type Engine struct {
	matcher    *Matcher
	classifier Classifier
	workers    int
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClassifier sets the classifier consulted alongside the rules.
func WithClassifier(c Classifier) EngineOption {
	return func(e *Engine) {
		e.classifier = orNone(c)
	}
}

// WithWorkers bounds how many documents are evaluated at once.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithEngineLogger sets the engine's logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine evaluating rules with m.
func NewEngine(m *Matcher, opts ...EngineOption) *Engine {
	if m == nil {
		m = NewMatcher()
	}
	e := &Engine{
		matcher:    m,
		classifier: NoClassifier{},
		workers:    DefaultWorkers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Suggest evaluates all four rule sets for every document. Results are in
// document order. A fatal rule error, such as an unsupported algorithm,
// cancels the batch and is returned.
func (e *Engine) Suggest(ctx context.Context, rules RuleSets, docs []Document) ([]Suggestion, error) {
	results := make([]Suggestion, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := e.suggestOne(rules, doc)
			if err != nil {
				e.logger.Error("Classification failed",
					slog.Int64("document_id", doc.ID),
					slog.String("error", err.Error()))
				return err
			}
			results[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// SuggestFrom loads the rule sets from src and runs Suggest.
func (e *Engine) SuggestFrom(ctx context.Context, src EntitySource, docs []Document) ([]Suggestion, error) {
	rules, err := LoadRuleSets(ctx, src)
	if err != nil {
		return nil, err
	}
	return e.Suggest(ctx, rules, docs)
}

func (e *Engine) suggestOne(rules RuleSets, doc Document) (Suggestion, error) {
	s := Suggestion{DocumentID: doc.ID}
	var err error

	if s.Correspondents, err = e.matcher.MatchCorrespondents(doc, rules.Correspondents, e.classifier); err != nil {
		return s, err
	}
	if s.DocumentTypes, err = e.matcher.MatchDocumentTypes(doc, rules.DocumentTypes, e.classifier); err != nil {
		return s, err
	}
	if s.Tags, err = e.matcher.MatchTags(doc, rules.Tags, e.classifier); err != nil {
		return s, err
	}
	if s.StoragePaths, err = e.matcher.MatchStoragePaths(doc, rules.StoragePaths, e.classifier); err != nil {
		return s, err
	}
	return s, nil
}
