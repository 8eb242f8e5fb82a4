package matching

// Classifier predicts classifications from document content. It backs the
// AUTO algorithm and can also add entities whose rules did not match.
type Classifier interface {
	PredictCorrespondent(content string) (int64, bool)
	PredictDocumentType(content string) (int64, bool)
	PredictTags(content string) []int64
	PredictStoragePath(content string) (int64, bool)
}

// NoClassifier predicts nothing.
type NoClassifier struct{}

func (NoClassifier) PredictCorrespondent(string) (int64, bool) { return 0, false }
func (NoClassifier) PredictDocumentType(string) (int64, bool)  { return 0, false }
func (NoClassifier) PredictTags(string) []int64                { return nil }
func (NoClassifier) PredictStoragePath(string) (int64, bool)   { return 0, false }

func orNone(c Classifier) Classifier {
	if c == nil {
		return NoClassifier{}
	}
	return c
}

// MatchCorrespondents returns the correspondents whose rule matches doc or
// that the classifier predicts.
func (m *Matcher) MatchCorrespondents(doc Document, correspondents []Entity, c Classifier) ([]Entity, error) {
	id, ok := orNone(c).PredictCorrespondent(doc.Content)
	return m.selectEntities(doc, correspondents, predicted(id, ok))
}

// MatchDocumentTypes returns the document types whose rule matches doc or
// that the classifier predicts.
func (m *Matcher) MatchDocumentTypes(doc Document, types []Entity, c Classifier) ([]Entity, error) {
	id, ok := orNone(c).PredictDocumentType(doc.Content)
	return m.selectEntities(doc, types, predicted(id, ok))
}

// MatchTags returns the tags whose rule matches doc or that the classifier
// predicts.
func (m *Matcher) MatchTags(doc Document, tags []Entity, c Classifier) ([]Entity, error) {
	return m.selectEntities(doc, tags, predicted(0, false, orNone(c).PredictTags(doc.Content)...))
}

// MatchStoragePaths returns the storage paths whose rule matches doc or
// that the classifier predicts.
func (m *Matcher) MatchStoragePaths(doc Document, paths []Entity, c Classifier) ([]Entity, error) {
	id, ok := orNone(c).PredictStoragePath(doc.Content)
	return m.selectEntities(doc, paths, predicted(id, ok))
}

func predicted(id int64, ok bool, more ...int64) map[int64]bool {
	set := make(map[int64]bool, len(more)+1)
	if ok {
		set[id] = true
	}
	for _, m := range more {
		set[m] = true
	}
	return set
}

// selectEntities keeps entities in input order. The first fatal error
// aborts the selection.
func (m *Matcher) selectEntities(doc Document, entities []Entity, predicted map[int64]bool) ([]Entity, error) {
	var out []Entity
	for _, e := range entities {
		ok, err := m.Matches(e.Rule, doc.Content)
		if err != nil {
			return nil, err
		}
		if ok || predicted[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}
