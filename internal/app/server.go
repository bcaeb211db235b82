package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harvestlab/harvest/internal/auth"
	"github.com/harvestlab/harvest/internal/config"
	mcputil "github.com/harvestlab/harvest/internal/mcp"
	"github.com/harvestlab/harvest/internal/query"
	"github.com/harvestlab/harvest/internal/search"
)

// NewAPIServer assembles the HTTP server for a snapshot: JSON API,
// SSE-mounted MCP tools, and the auth middleware.
func NewAPIServer(svc *search.Service, settings *config.Settings, version string) (*http.Server, error) {
	handler, err := NewAPIHandler(svc, settings, version)
	if err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("%s:%d", settings.Serve.Host, settings.Serve.Port)
	return &http.Server{
		Addr:    addr,
		Handler: handler,
	}, nil
}

// NewAPIHandler builds the full request handler, separated from the
// server so tests can drive it through httptest.
func NewAPIHandler(svc *search.Service, settings *config.Settings, version string) (http.Handler, error) {
	api := &apiHandler{svc: svc}

	mcpServer := mcputil.CreateServer(mcputil.ServerConfig{
		Name:    "harvest",
		Version: version,
		Service: svc,
	})
	sseHandler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/meta", api.handleMeta)
	mux.HandleFunc("/api/search", api.handleSearch)
	mux.HandleFunc("/api/export", api.handleExport)
	mux.HandleFunc("/api/file", api.handleFile)
	mux.Handle("/sse", sseHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	authMiddleware, err := auth.NewMiddleware(settings.Auth, "/health")
	if err != nil {
		return nil, fmt.Errorf("failed to create auth middleware: %w", err)
	}
	return authMiddleware(mux), nil
}

type apiHandler struct {
	svc *search.Service
}

// searchPage is the pagination envelope returned when limit is set.
type searchPage struct {
	Items      []any `json:"items"`
	Total      int   `json:"total"`
	Cursor     int   `json:"cursor"`
	Limit      int   `json:"limit"`
	NextCursor *int  `json:"next_cursor"`
	HasMore    bool  `json:"has_more"`
}

// setAPIHeaders marks every API response as uncacheable: a watcher may
// replace the snapshot between any two requests.
func setAPIHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *apiHandler) handleMeta(w http.ResponseWriter, r *http.Request) {
	setAPIHeaders(w)
	if err := h.svc.Refresh(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	mtimeNs, size := h.svc.Stat()
	etag := fmt.Sprintf(`W/"%d-%d"`, mtimeNs, size)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeJSON(w, http.StatusOK, h.svc.Snapshot().Metadata)
}

// filterFromQuery builds a compiled filter from request parameters.
// Export responses never project fields, so the caller controls whether
// the fields parameter participates.
func filterFromQuery(q url.Values, withFields bool) (*query.Filter, query.Options, error) {
	opts := query.Options{
		Entity:      q.Get("entity"),
		Language:    q.Get("language"),
		Kind:        q.Get("kind"),
		PathGlob:    q.Get("path_glob"),
		PathRegex:   q.Get("path_regex"),
		SymbolRegex: q.Get("symbol_regex"),
	}
	if v := q.Get("public"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, opts, fmt.Errorf("invalid public: %q", v)
		}
		opts.Public = &b
	}
	if withFields {
		if fields := q.Get("fields"); fields != "" {
			opts.Fields = splitFields(fields)
		}
	}
	filter, err := query.Compile(opts)
	return filter, opts, err
}

func (h *apiHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	setAPIHeaders(w)
	params := r.URL.Query()

	filter, opts, err := filterFromQuery(params, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Refresh(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	snap := h.svc.Snapshot()

	var rows []any
	if text := params.Get("q"); text != "" {
		if filter.Entity() == query.EntityFiles {
			writeError(w, http.StatusBadRequest, "free-text q applies to the chunks entity only")
			return
		}
		results, err := h.svc.Search(search.SearchParams{
			Query:    text,
			Language: opts.Language,
			Kind:     opts.Kind,
			Public:   opts.Public,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		// Keep bleve's ranking order, constrained to the chunks the
		// structural filter admits.
		admitted := make(map[string]bool)
		for _, chunk := range filter.Chunks(snap) {
			admitted[chunk.ID] = true
		}
		byID := make(map[string]int, len(snap.Chunks))
		for i, chunk := range snap.Chunks {
			byID[chunk.ID] = i
		}
		for _, hit := range results.Hits {
			if i, ok := byID[hit.ID]; ok && admitted[hit.ID] {
				rows = append(rows, snap.Chunks[i])
			}
		}
	} else if filter.Entity() == query.EntityFiles {
		for _, entry := range filter.Files(snap) {
			rows = append(rows, entry)
		}
	} else {
		for _, chunk := range filter.Chunks(snap) {
			rows = append(rows, chunk)
		}
	}

	if len(opts.Fields) > 0 {
		rows = projectRows(rows, opts.Fields)
	}
	if rows == nil {
		rows = []any{}
	}

	limitStr := params.Get("limit")
	if limitStr == "" {
		writeJSON(w, http.StatusOK, rows)
		return
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	cursor := 0
	if c := params.Get("cursor"); c != "" {
		cursor, err = strconv.Atoi(c)
		if err != nil || cursor < 0 {
			writeError(w, http.StatusBadRequest, "cursor must be a non-negative integer")
			return
		}
	}

	total := len(rows)
	if cursor > total {
		cursor = total
	}
	end := cursor + limit
	if end > total {
		end = total
	}

	page := searchPage{
		Items:   rows[cursor:end],
		Total:   total,
		Cursor:  cursor,
		Limit:   limit,
		HasMore: end < total,
	}
	if page.HasMore {
		next := end
		page.NextCursor = &next
	}
	writeJSON(w, http.StatusOK, page)
}

// projectRows reduces each row to the named JSON fields.
func projectRows(rows []any, fields []string) []any {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		p := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, ok := m[f]; ok {
				p[f] = v
			}
		}
		out = append(out, p)
	}
	return out
}

func (h *apiHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	setAPIHeaders(w)

	filter, _, err := filterFromQuery(r.URL.Query(), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Refresh(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", `attachment; filename="harvest_export.jsonl"`)
	if err := filter.Run(h.svc.Snapshot(), w); err != nil {
		slog.Warn("Export stream failed", "error", err)
	}
}

func (h *apiHandler) handleFile(w http.ResponseWriter, r *http.Request) {
	setAPIHeaders(w)
	params := r.URL.Query()

	path := params.Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	start, err := intParam(params, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	end, err := intParam(params, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end")
		return
	}

	if err := h.svc.Refresh(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	snap := h.svc.Snapshot()

	var rng *query.FileRange
	if skeletonParam(params.Get("skeleton")) {
		rng, err = query.Skeleton(r.Context(), snap, path)
	} else {
		rng, err = query.ReadRange(snap, path, start, end)
	}
	if err != nil {
		if errors.Is(err, query.ErrFileNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rng)
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func skeletonParam(v string) bool {
	switch v {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
