package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/opencampus/docqa/internal/models"
)

// TitleIndex is a bleve index over document titles, descriptions, and tags,
// serving the catalog's metadata search.
type TitleIndex struct {
	index bleve.Index
}

type titleDoc struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
}

// NewTitleIndex creates or opens the bleve index at path. An existing index
// is reused; remove the directory to force a rebuild after mapping changes.
func NewTitleIndex(path string) (*TitleIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open title index: %w", openErr)
		}
		return &TitleIndex{index: index}, nil
	}

	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so exact words
	// in titles match as typed.
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textField)
	docMapping.AddFieldMappingsAt("description", textField)
	docMapping.AddFieldMappingsAt("tags", textField)
	im.DefaultMapping = docMapping

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("create title index: %w", err)
	}
	return &TitleIndex{index: index}, nil
}

// Index adds or updates the document's metadata.
func (t *TitleIndex) Index(doc *models.Document) error {
	return t.index.Index(doc.ID, titleDoc{
		Title:       doc.Title,
		Description: doc.Description,
		Tags:        strings.Join(doc.Tags, " "),
	})
}

// Remove deletes the document's metadata from the index.
func (t *TitleIndex) Remove(id string) error {
	return t.index.Delete(id)
}

// Search returns document IDs ranked by relevance, up to limit.
func (t *TitleIndex) Search(query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit
	results, err := t.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("title search: %w", err)
	}
	ids := make([]string, len(results.Hits))
	for i, hit := range results.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Close closes the index.
func (t *TitleIndex) Close() error {
	return t.index.Close()
}
