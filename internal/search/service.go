package search

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/harvestlab/harvest/internal/domain"
	"github.com/harvestlab/harvest/internal/harvest"
)

// Service serves queries over the snapshot at a fixed path, re-reading
// and re-indexing whenever the file on disk changes. A watcher may be
// replacing the snapshot concurrently; readers always re-validate
// against the file rather than caching a version indefinitely.
type Service struct {
	path       string
	maxResults int

	mu      sync.RWMutex
	snap    *domain.Snapshot
	alias   bleve.IndexAlias
	index   bleve.Index
	mtimeNs int64
	size    int64
}

// SearchParams are the knobs of one full-text search.
type SearchParams struct {
	Query    string
	Language string
	Kind     string
	Public   *bool
	Size     int
}

// NewService loads the snapshot at path and builds its index.
func NewService(path string, maxResults int) (*Service, error) {
	s := &Service{path: path, maxResults: maxResults}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the snapshot path the service is bound to.
func (s *Service) Path() string {
	return s.path
}

// Refresh re-reads the snapshot if the file on disk changed since the
// last load, swapping a freshly built index into the alias. Unchanged
// files cost one stat call.
func (s *Service) Refresh() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("failed to stat snapshot: %w", err)
	}
	mtimeNs, size := info.ModTime().UnixNano(), info.Size()

	s.mu.RLock()
	unchanged := mtimeNs == s.mtimeNs && size == s.size
	s.mu.RUnlock()
	if unchanged {
		return nil
	}

	slog.Info("Snapshot changed on disk, reloading", "path", s.path)
	return s.reload()
}

// reload reads the snapshot and replaces the live index.
func (s *Service) reload() error {
	snap, err := harvest.LoadSnapshot(s.path)
	if err != nil {
		return err
	}
	index, err := BuildIndex(snap)
	if err != nil {
		return err
	}

	info, err := os.Stat(s.path)
	if err != nil {
		_ = index.Close()
		return fmt.Errorf("failed to stat snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.index
	if s.alias == nil {
		s.alias = bleve.NewIndexAlias(index)
	} else {
		s.alias.Swap([]bleve.Index{index}, []bleve.Index{old})
	}
	s.index = index
	s.snap = snap
	s.mtimeNs = info.ModTime().UnixNano()
	s.size = info.Size()

	if old != nil {
		if err := old.Close(); err != nil {
			slog.Warn("Failed to close replaced index", "error", err)
		}
	}
	return nil
}

// Snapshot returns the currently loaded snapshot document.
func (s *Service) Snapshot() *domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Stat returns the (mtime_ns, size) of the snapshot file as of the last
// load, used by HTTP validators.
func (s *Service) Stat() (int64, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mtimeNs, s.size
}

// MaxResults returns the configured result cap.
func (s *Service) MaxResults() int {
	return s.maxResults
}

// Search runs a full-text query over chunk content and symbols, with
// optional term filters. Result size defaults to the configured cap.
func (s *Service) Search(params SearchParams) (*bleve.SearchResult, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	size := params.Size
	if size <= 0 || size > s.maxResults {
		size = s.maxResults
	}

	searchReq := bleve.NewSearchRequest(buildQuery(params))
	searchReq.Size = size
	searchReq.Fields = []string{
		domain.ChunkFieldFilePath, domain.ChunkFieldLanguage, domain.ChunkFieldKind,
		domain.ChunkFieldSymbol, domain.ChunkFieldContent,
	}
	searchReq.Highlight = bleve.NewHighlight()
	searchReq.Highlight.AddField(domain.ChunkFieldContent)

	s.mu.RLock()
	alias := s.alias
	s.mu.RUnlock()

	return alias.Search(searchReq)
}

// buildQuery constructs a bleve query: content OR boosted symbol match,
// conjoined with any term filters.
func buildQuery(params SearchParams) query.Query {
	contentQuery := bleve.NewMatchQuery(params.Query)
	contentQuery.SetField(domain.ChunkFieldContent)

	symbolQuery := bleve.NewMatchQuery(params.Query)
	symbolQuery.SetField(domain.ChunkFieldSymbol)
	symbolQuery.SetBoost(5.0)

	searchQuery := bleve.NewDisjunctionQuery(contentQuery, symbolQuery)

	must := []query.Query{searchQuery}
	if params.Language != "" {
		langQuery := bleve.NewTermQuery(params.Language)
		langQuery.SetField(domain.ChunkFieldLanguage)
		must = append(must, langQuery)
	}
	if params.Kind != "" {
		kindQuery := bleve.NewTermQuery(params.Kind)
		kindQuery.SetField(domain.ChunkFieldKind)
		must = append(must, kindQuery)
	}
	if params.Public != nil {
		publicQuery := bleve.NewBoolFieldQuery(*params.Public)
		publicQuery.SetField(domain.ChunkFieldPublic)
		must = append(must, publicQuery)
	}

	if len(must) == 1 {
		return searchQuery
	}
	return bleve.NewConjunctionQuery(must...)
}

// Close releases the index resources.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index != nil {
		if err := s.index.Close(); err != nil {
			return fmt.Errorf("failed to close index: %w", err)
		}
		s.index = nil
		s.alias = nil
	}
	return nil
}
