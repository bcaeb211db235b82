package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harvestlab/harvest/internal/query"
	"github.com/harvestlab/harvest/internal/search"
)

// QueryArgument defines structural filter parameters.
type QueryArgument struct {
	Entity      string `json:"entity,omitempty" jsonschema_description:"Entity to filter: files or chunks (default chunks)"`
	Language    string `json:"language,omitempty" jsonschema_description:"Filter by language (e.g., python, typescript)"`
	Kind        string `json:"kind,omitempty" jsonschema_description:"Filter chunks by kind (e.g., function, class, component)"`
	PathRegex   string `json:"path_regex,omitempty" jsonschema_description:"Regular expression applied to file paths"`
	SymbolRegex string `json:"symbol_regex,omitempty" jsonschema_description:"Regular expression applied to chunk symbols"`
	Public      *bool  `json:"public,omitempty" jsonschema_description:"Filter chunks by public visibility"`
	Limit       int    `json:"limit,omitempty" jsonschema_description:"Maximum number of results to return"`
}

// QueryHandler handles the query_snapshot MCP tool.
type QueryHandler struct {
	service *search.Service
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(service *search.Service) *QueryHandler {
	return &QueryHandler{
		service: service,
	}
}

// Handle runs the structural filter and returns matches as JSON lines.
func (h *QueryHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args QueryArgument) (*mcp.CallToolResult, any, error) {
	filter, err := query.Compile(query.Options{
		Entity:      args.Entity,
		Language:    args.Language,
		Kind:        args.Kind,
		PathRegex:   args.PathRegex,
		SymbolRegex: args.SymbolRegex,
		Public:      args.Public,
	})
	if err != nil {
		return errorResult("Invalid query: %s", err), nil, nil
	}

	if err := h.service.Refresh(); err != nil {
		return errorResult("Failed to refresh snapshot: %s", err), nil, nil
	}
	snap := h.service.Snapshot()

	var sb strings.Builder
	var count int
	if filter.Entity() == query.EntityFiles {
		count, err = writeJSONLines(&sb, filter.Files(snap), args.Limit)
	} else {
		count, err = writeJSONLines(&sb, filter.Chunks(snap), args.Limit)
	}
	if err != nil {
		return errorResult("Failed to encode results: %s", err), nil, nil
	}

	if count == 0 {
		return textResult("No matches."), nil, nil
	}
	return textResult(sb.String()), nil, nil
}

// writeJSONLines encodes up to limit entries as one compact JSON object
// per line; limit <= 0 means unbounded.
func writeJSONLines[T any](sb *strings.Builder, entries []T, limit int) (int, error) {
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return 0, err
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	return len(entries), nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *QueryHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "query_snapshot",
		Description: "Filter harvested files or chunks by language, kind, path, symbol, or visibility",
	}
}

// RegisterQueryTool registers the query tool with an MCP server.
func RegisterQueryTool(server *mcp.Server, service *search.Service) {
	handler := NewQueryHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
