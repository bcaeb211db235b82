package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harvestlab/harvest/internal/domain"
	"github.com/harvestlab/harvest/internal/query"
	"github.com/harvestlab/harvest/internal/search"
)

// ReadArgument defines read parameters.
type ReadArgument struct {
	Path     string `json:"path" jsonschema_description:"File path as recorded in the snapshot (root-relative, forward slashes)"`
	Start    int    `json:"start,omitempty" jsonschema_description:"First line to read (1-based, default 1)"`
	End      int    `json:"end,omitempty" jsonschema_description:"Last line to read (inclusive, default end of file)"`
	Skeleton bool   `json:"skeleton,omitempty" jsonschema_description:"Return the signature-level skeleton instead of raw lines"`
}

// ReadHandler handles the read_file MCP tool. Content comes from the
// snapshot's embedded file entries, never the harvested tree itself.
type ReadHandler struct {
	service *search.Service
}

// NewReadHandler creates a new read handler.
func NewReadHandler(service *search.Service) *ReadHandler {
	return &ReadHandler{
		service: service,
	}
}

// Handle reads a line range or skeleton and returns formatted content.
func (h *ReadHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ReadArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Path) == "" {
		return errorResult("Path cannot be empty"), nil, nil
	}

	if err := h.service.Refresh(); err != nil {
		return errorResult("Failed to refresh snapshot: %s", err), nil, nil
	}
	snap := h.service.Snapshot()

	var rng *query.FileRange
	var err error
	if args.Skeleton {
		rng, err = query.Skeleton(ctx, snap, args.Path)
	} else {
		rng, err = query.ReadRange(snap, args.Path, args.Start, args.End)
	}
	if err != nil {
		if errors.Is(err, query.ErrFileNotFound) {
			return errorResult("File not found in snapshot: %s", args.Path), nil, nil
		}
		return errorResult("Failed to read file: %s", err), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**File**: `%s`\n", rng.Path))
	if args.Skeleton {
		sb.WriteString("**Skeleton** (signatures only)\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("**Lines**: %d-%d\n\n", rng.Start, rng.End))
	}
	sb.WriteString(fmt.Sprintf("```%s\n%s\n```", fenceHint(snap, rng.Path), rng.Text))

	return textResult(sb.String()), nil, nil
}

// fenceHint maps a snapshot language to a markdown code-fence hint.
func fenceHint(snap *domain.Snapshot, path string) string {
	language := ""
	for i := range snap.Data {
		if snap.Data[i].Path == path {
			language = snap.Data[i].Language
			break
		}
	}
	switch language {
	case "typescriptreact":
		return "tsx"
	case "javascriptreact":
		return "jsx"
	default:
		return language
	}
}

// GetToolDefinition returns the MCP tool definition.
func (h *ReadHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "read_file",
		Description: "Read an exact line range or signature skeleton of a harvested file from the snapshot",
	}
}

// RegisterReadTool registers the read tool with an MCP server.
func RegisterReadTool(server *mcp.Server, service *search.Service) {
	handler := NewReadHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
