package archive

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/yacinebz/relay/internal/stream"
)

// SearchResult is one full-text match over the archive.
type SearchResult struct {
	SessionID string
	Score     float64
	Fragment  string // Highlighted snippet from the matched content
}

// searchDoc is the shape indexed per session.
type searchDoc struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Prompt    string `json:"prompt"`
	Content   string `json:"content"`
}

// SearchIndex provides full-text search over archived sessions.
type SearchIndex struct {
	index bleve.Index
}

// OpenSearchIndex opens or creates the bleve index at path.
func OpenSearchIndex(path string) (*SearchIndex, error) {
	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create search index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}
	return &SearchIndex{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	idField.Store = true
	docMapping.AddFieldMappingsAt("session_id", idField)

	statusField := bleve.NewTextFieldMapping()
	statusField.Analyzer = keyword.Name
	statusField.Store = true
	docMapping.AddFieldMappingsAt("status", statusField)

	promptField := bleve.NewTextFieldMapping()
	promptField.Analyzer = standard.Name
	promptField.Store = true
	docMapping.AddFieldMappingsAt("prompt", promptField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	docMapping.AddFieldMappingsAt("content", contentField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Index adds or replaces a session in the search index.
func (si *SearchIndex) Index(snap stream.Snapshot) error {
	doc := searchDoc{
		SessionID: snap.ID,
		Status:    string(snap.Status),
		Prompt:    snap.Prompt,
		Content:   snap.AccumulatedContent,
	}
	if err := si.index.Index(snap.ID, doc); err != nil {
		return fmt.Errorf("failed to index session %s: %w", snap.ID, err)
	}
	return nil
}

// Search runs a match query over prompts and content.
func (si *SearchIndex) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"session_id"}
	req.Highlight = bleve.NewHighlight()

	res, err := si.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var results []SearchResult
	for _, hit := range res.Hits {
		r := SearchResult{SessionID: hit.ID, Score: hit.Score}
		for _, fragments := range hit.Fragments {
			if len(fragments) > 0 {
				r.Fragment = fragments[0]
				break
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// Close releases the index.
func (si *SearchIndex) Close() error {
	return si.index.Close()
}
