package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harvestlab/harvest/internal/domain"
	"github.com/harvestlab/harvest/internal/search"
)

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query    string `json:"query" jsonschema_description:"Search query (matches chunk content and symbol names)"`
	Language string `json:"language,omitempty" jsonschema_description:"Filter by language (e.g., python, typescript)"`
	Kind     string `json:"kind,omitempty" jsonschema_description:"Filter by chunk kind (e.g., function, class, component)"`
}

// SearchHandler handles the search_chunks MCP tool.
type SearchHandler struct {
	service *search.Service
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service *search.Service) *SearchHandler {
	return &SearchHandler{
		service: service,
	}
}

// Handle executes the search and returns formatted results.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	// Pick up snapshot versions a concurrent watcher may have flushed.
	if err := h.service.Refresh(); err != nil {
		return errorResult("Failed to refresh snapshot: %s", err), nil, nil
	}

	results, err := h.service.Search(search.SearchParams{
		Query:    args.Query,
		Language: args.Language,
		Kind:     args.Kind,
	})
	if err != nil {
		return errorResult("Search failed: %s", err), nil, nil
	}

	return formatSearchResults(results, args.Query), nil, nil
}

// formatSearchResults formats bleve search results for the MCP response.
func formatSearchResults(results *bleve.SearchResult, queryStr string) *mcp.CallToolResult {
	if results.Total == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", queryStr))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d results for '%s':\n\n", results.Total, queryStr))

	for i, hit := range results.Hits {
		filePath := ""
		symbol := ""
		kind := ""
		if val, ok := hit.Fields[domain.ChunkFieldFilePath].(string); ok {
			filePath = val
		}
		if val, ok := hit.Fields[domain.ChunkFieldSymbol].(string); ok {
			symbol = val
		}
		if val, ok := hit.Fields[domain.ChunkFieldKind].(string); ok {
			kind = val
		}

		sb.WriteString(fmt.Sprintf("### %d. %s: %s\n", i+1, filePath, symbol))
		sb.WriteString(fmt.Sprintf("**Kind**: %s | **Score**: %.4f\n\n", kind, hit.Score))

		if len(hit.Fragments) > 0 {
			if fragments, ok := hit.Fragments[domain.ChunkFieldContent]; ok {
				sb.WriteString("```\n")
				for _, fragment := range fragments {
					sb.WriteString(fragment)
					sb.WriteString("\n")
				}
				sb.WriteString("```\n")
			}
		}

		sb.WriteString("\n")
	}

	if results.Total > uint64(len(results.Hits)) {
		sb.WriteString(fmt.Sprintf("... and %d more results\n", results.Total-uint64(len(results.Hits))))
	}

	return textResult(sb.String())
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_chunks",
		Description: "Full-text search over harvested code chunks, matching content and symbol names",
	}
}

// RegisterSearchTool registers the search tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, service *search.Service) {
	handler := NewSearchHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
