package index

import (
	"bytes"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

// SchemaVersion is bumped whenever the mapping changes; an index written
// with another version is recreated on open.
const SchemaVersion = 1

// Field names.
const (
	FieldID               = "id"
	FieldTitle            = "title"
	FieldContent          = "content"
	FieldNotes            = "notes"
	FieldCorrespondent    = "correspondent"
	FieldCorrespondentID  = "correspondent_id"
	FieldHasCorrespondent = "has_correspondent"
	FieldTag              = "tag"
	FieldTagID            = "tag_id"
	FieldHasTag           = "has_tag"
	FieldType             = "type"
	FieldTypeID           = "type_id"
	FieldHasType          = "has_type"
	FieldPath             = "path"
	FieldPathID           = "path_id"
	FieldHasPath          = "has_path"
	FieldASN              = "asn"
	FieldCreated          = "created"
	FieldModified         = "modified"
	FieldAdded            = "added"
	FieldOwner            = "owner"
	FieldOwnerID          = "owner_id"
	FieldHasOwner         = "has_owner"
	FieldViewerID         = "viewer_id"

	// Lowercase single-token companions used only for sorting.
	FieldTitleSort         = "title_sort"
	FieldCorrespondentSort = "correspondent_sort"
	FieldTypeSort          = "type_sort"
)

// FullTextFields are searched when a query clause names no field.
var FullTextFields = []string{FieldContent, FieldTitle, FieldCorrespondent, FieldTag, FieldType, FieldNotes}

const (
	// CommaTokenizerName splits comma-separated keyword lists.
	CommaTokenizerName = "docsift_comma"

	// KeywordListAnalyzer indexes comma lists verbatim (ids).
	KeywordListAnalyzer = "docsift_keywords"

	// LowerKeywordListAnalyzer indexes comma lists lowercased (tag names).
	LowerKeywordListAnalyzer = "docsift_keywords_lower"

	// SortAnalyzer indexes a whole value as one lowercase term.
	SortAnalyzer = "docsift_sort"
)

var schemaVersionKey = []byte("_docsift_schema_version")

func init() {
	_ = registry.RegisterTokenizer(CommaTokenizerName, commaTokenizerConstructor)
}

// NewMapping builds the index mapping. Only the free-text fields feed the
// composite _all field, so unqualified query terms search exactly those.
func NewMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name
	im.IndexDynamic = false
	im.StoreDynamic = false
	im.DocValuesDynamic = false

	analyzers := map[string]map[string]interface{}{
		KeywordListAnalyzer: {
			"type":      custom.Name,
			"tokenizer": CommaTokenizerName,
		},
		LowerKeywordListAnalyzer: {
			"type":          custom.Name,
			"tokenizer":     CommaTokenizerName,
			"token_filters": []string{lowercase.Name},
		},
		SortAnalyzer: {
			"type":          custom.Name,
			"tokenizer":     single.Name,
			"token_filters": []string{lowercase.Name},
		},
	}
	for name, def := range analyzers {
		if err := im.AddCustomAnalyzer(name, def); err != nil {
			return nil, fmt.Errorf("failed to add analyzer %s: %w", name, err)
		}
	}

	doc := bleve.NewDocumentStaticMapping()

	for _, name := range FullTextFields {
		fm := textField(true, true)
		if name == FieldTag {
			// free-text searchable, but tokenized as a keyword list
			fm.Analyzer = LowerKeywordListAnalyzer
		}
		doc.AddFieldMappingsAt(name, fm)
	}

	doc.AddFieldMappingsAt(FieldPath, textField(false, false))
	doc.AddFieldMappingsAt(FieldOwner, textField(false, false))

	for _, name := range []string{FieldTagID, FieldViewerID} {
		fm := textField(false, false)
		fm.Analyzer = KeywordListAnalyzer
		doc.AddFieldMappingsAt(name, fm)
	}

	for _, name := range []string{FieldID, FieldCorrespondentID, FieldTypeID, FieldPathID, FieldOwnerID, FieldASN} {
		fm := bleve.NewNumericFieldMapping()
		fm.Store = true
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(name, fm)
	}

	for _, name := range []string{FieldHasCorrespondent, FieldHasTag, FieldHasType, FieldHasPath, FieldHasOwner} {
		fm := bleve.NewBooleanFieldMapping()
		fm.Store = true
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(name, fm)
	}

	for _, name := range []string{FieldCreated, FieldModified, FieldAdded} {
		fm := bleve.NewDateTimeFieldMapping()
		fm.Store = true
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(name, fm)
	}

	for _, name := range []string{FieldTitleSort, FieldCorrespondentSort, FieldTypeSort} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = SortAnalyzer
		fm.Store = false
		fm.IncludeInAll = false
		fm.IncludeTermVectors = false
		doc.AddFieldMappingsAt(name, fm)
	}

	im.DefaultMapping = doc
	return im, nil
}

// textField is a stored standard-analyzed field. Fields in _all keep term
// vectors so hits can be highlighted.
func textField(inAll, vectors bool) *mapping.FieldMapping {
	fm := bleve.NewTextFieldMapping()
	fm.Analyzer = standard.Name
	fm.Store = true
	fm.IncludeInAll = inAll
	fm.IncludeTermVectors = vectors
	return fm
}

func commaTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &commaTokenizer{}, nil
}

// commaTokenizer emits one token per comma-separated item, trimmed of spaces.
type commaTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *commaTokenizer) Tokenize(input []byte) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, bytes.Count(input, []byte{','})+1)
	pos := 1
	start := 0
	for start <= len(input) {
		end := bytes.IndexByte(input[start:], ',')
		if end < 0 {
			end = len(input)
		} else {
			end += start
		}

		item := input[start:end]
		lead := len(item) - len(bytes.TrimLeft(item, " \t"))
		item = bytes.TrimSpace(item)
		if len(item) > 0 {
			result = append(result, &analysis.Token{
				Term:     append([]byte(nil), item...),
				Start:    start + lead,
				End:      start + lead + len(item),
				Position: pos,
				Type:     analysis.AlphaNumeric,
			})
			pos++
		}
		start = end + 1
	}
	return result
}
