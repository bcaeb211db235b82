// Package search maintains a bleve full-text index over a snapshot's
// chunks and keeps it aligned with the snapshot file on disk.
package search

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/harvestlab/harvest/internal/domain"
	"github.com/harvestlab/harvest/internal/harvest"
)

const (
	// MaxBatchSize is the maximum number of documents per batch
	MaxBatchSize = 500

	// MaxBatchBytes is the maximum content bytes per batch (8MB)
	MaxBatchBytes = 8 * 1024 * 1024
)

// ChunkDocument is the indexed representation of one chunk: the entry's
// identity fields plus the extracted line-range text.
type ChunkDocument struct {
	ID       string `json:"id"`
	FilePath string `json:"file_path"`
	Language string `json:"language"`
	Kind     string `json:"kind"`
	Symbol   string `json:"symbol"`
	Content  string `json:"content"`
	Public   bool   `json:"public"`
}

// CreateIndexMapping creates the bleve index mapping for chunk documents.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	// Content and symbol - analyzed for full-text search
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	contentField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.ChunkFieldContent, contentField)

	symbolField := bleve.NewTextFieldMapping()
	symbolField.Analyzer = standard.Name
	symbolField.Store = true
	docMapping.AddFieldMappingsAt(domain.ChunkFieldSymbol, symbolField)

	// FilePath, language, kind - keyword (not analyzed), stored for retrieval
	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = true
	docMapping.AddFieldMappingsAt(domain.ChunkFieldFilePath, pathField)

	langField := bleve.NewTextFieldMapping()
	langField.Analyzer = keyword.Name
	langField.Store = true
	docMapping.AddFieldMappingsAt(domain.ChunkFieldLanguage, langField)

	kindField := bleve.NewTextFieldMapping()
	kindField.Analyzer = keyword.Name
	kindField.Store = true
	docMapping.AddFieldMappingsAt(domain.ChunkFieldKind, kindField)

	// Public - boolean filter field
	publicField := bleve.NewBooleanFieldMapping()
	publicField.Store = true
	docMapping.AddFieldMappingsAt(domain.ChunkFieldPublic, publicField)

	// ID - stored but not indexed (we use the document ID)
	idField := bleve.NewTextFieldMapping()
	idField.Index = false
	idField.Store = true
	docMapping.AddFieldMappingsAt(domain.ChunkFieldID, idField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// BuildIndex creates an in-memory index over the snapshot's chunks.
// Chunk text comes from the owning file's embedded content; chunks of
// content-free files are indexed on their identity fields alone.
func BuildIndex(snap *domain.Snapshot) (bleve.Index, error) {
	index, err := bleve.NewMemOnly(CreateIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	contentByPath := make(map[string]string, len(snap.Data))
	for _, f := range snap.Data {
		if f.Content != nil {
			contentByPath[f.Path] = *f.Content
		}
	}

	batch := index.NewBatch()
	batchSize := 0
	batchBytes := 0
	for _, chunk := range snap.Chunks {
		doc := ChunkDocument{
			ID:       chunk.ID,
			FilePath: chunk.FilePath,
			Language: chunk.Language,
			Kind:     chunk.Kind,
			Symbol:   chunk.Symbol,
			Public:   chunk.Public,
		}
		if content, ok := contentByPath[chunk.FilePath]; ok {
			doc.Content = harvest.ExtractLines(content, chunk.StartLine, chunk.EndLine)
		}

		if err := batch.Index(doc.ID, doc); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to index chunk %s: %w", doc.ID, err)
		}
		batchSize++
		batchBytes += len(doc.Content)

		if batchSize >= MaxBatchSize || batchBytes >= MaxBatchBytes {
			if err := index.Batch(batch); err != nil {
				_ = index.Close()
				return nil, fmt.Errorf("batch index failed: %w", err)
			}
			batch = index.NewBatch()
			batchSize = 0
			batchBytes = 0
		}
	}

	if batchSize > 0 {
		if err := index.Batch(batch); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("final batch index failed: %w", err)
		}
	}

	return index, nil
}
