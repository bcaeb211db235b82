package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harvestlab/harvest/internal/config"
	"github.com/harvestlab/harvest/internal/domain"
	"github.com/harvestlab/harvest/internal/harvest"
	mcputil "github.com/harvestlab/harvest/internal/mcp"
	"github.com/harvestlab/harvest/internal/query"
	"github.com/harvestlab/harvest/internal/search"
	"github.com/harvestlab/harvest/internal/watch"
)

// setupLogging installs the default logger. Always stderr: stdout
// belongs to command output (query results, stdio MCP framing).
func setupLogging() {
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))
}

// RunReap performs a one-shot harvest of target (a local directory or a
// GitHub URL) and writes the snapshot atomically.
func RunReap(ctx context.Context, settings *config.Settings, target string) error {
	config.Log(settings)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	out := harvest.ResolveReapOut(settings.Reap.Out, cwd)
	engine := harvest.NewEngine(engineConfig(&settings.Reap))

	var prev *domain.Snapshot
	if settings.Reap.Prev != "" {
		prev, err = harvest.LoadSnapshot(settings.Reap.Prev)
		if err != nil {
			return fmt.Errorf("failed to load previous snapshot: %w", err)
		}
	}

	var snap *domain.Snapshot
	if harvest.IsGitHubURL(target) {
		if prev != nil {
			slog.Warn("Previous snapshot is ignored for GitHub harvests", "prev", settings.Reap.Prev)
		}
		snap, err = engine.HarvestGitHub(ctx, target)
	} else {
		snap, err = engine.HarvestLocal(ctx, target, prev)
	}
	if err != nil {
		return err
	}

	if err := harvest.SaveSnapshot(out, snap); err != nil {
		return err
	}

	slog.Info("Harvest complete",
		"out", out,
		"files", snap.Metadata.Counts.TotalFiles,
		"chunks", len(snap.Chunks),
		"bytes", snap.Metadata.Counts.TotalBytes)
	if d := snap.Metadata.Delta; d != nil {
		slog.Info("Delta vs previous", "added", d.Added, "removed", d.Removed, "changed", d.Changed)
	}
	return nil
}

// engineConfig translates reap settings into an engine configuration.
// User skip lists extend the defaults; only-ext replaces the allow-list.
func engineConfig(r *config.ReapSettings) harvest.EngineConfig {
	var rules harvest.RulesConfig
	rules.OnlyExtensions = r.OnlyExt
	if len(r.SkipExt) > 0 {
		rules.SkipExtensions = append(append([]string{}, harvest.DefaultSkipExtensions...), r.SkipExt...)
	}
	if len(r.SkipFiles) > 0 {
		rules.SkipFiles = append(append([]string{}, harvest.DefaultSkipFiles...), r.SkipFiles...)
	}
	if len(r.SkipFolders) > 0 {
		rules.SkipFolders = append(append([]string{}, harvest.DefaultSkipFolders...), r.SkipFolders...)
	}
	return harvest.EngineConfig{
		Rules:          harvest.NewRules(rules),
		MaxFiles:       r.MaxFiles,
		MaxFileBytes:   r.MaxFileBytes,
		IncludeContent: !r.NoContent,
		NoContent:      r.NoContent,
	}
}

// RunQuery loads a snapshot and streams query results to w.
func RunQuery(target string, opts query.Options, w io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	path := harvest.ResolveDataPath(target, cwd)

	filter, err := query.Compile(opts)
	if err != nil {
		return err
	}
	snap, err := harvest.LoadSnapshot(path)
	if err != nil {
		return err
	}
	return filter.Run(snap, w)
}

// RunWatch runs the change-detection watcher until the context is
// cancelled.
func RunWatch(ctx context.Context, settings *config.Settings, root string) error {
	config.Log(settings)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	out := harvest.ResolveReapOut(settings.Watch.Out, cwd)

	engine := harvest.NewEngine(harvest.EngineConfig{IncludeContent: true})
	watcher, err := watch.New(watch.Config{
		Root:       root,
		Out:        out,
		Poll:       settings.Watch.Poll,
		Debounce:   settings.Watch.Debounce,
		IncludeExt: settings.Watch.IncludeExt,
		ExcludeExt: settings.Watch.ExcludeExt,
	}, engine)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	return watcher.Run(ctx)
}

// RunServe serves the snapshot's HTTP API until the context is
// cancelled or the listener fails.
func RunServe(ctx context.Context, settings *config.Settings, target, version string) error {
	config.Log(settings)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	path := harvest.ResolveDataPath(target, cwd)

	svc, err := search.NewService(path, settings.Search.MaxResults)
	if err != nil {
		return err
	}
	defer closeService(svc)

	srv, err := NewAPIServer(svc, settings, version)
	if err != nil {
		return err
	}

	slog.Info("Server listening (HTTP)", "addr", srv.Addr, "auth_type", settings.Auth.Type, "snapshot", path)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// RunMCP serves the snapshot's tools over an MCP transport; nil means
// stdio. The transport parameter exists so tests can drive the protocol
// in memory.
func RunMCP(ctx context.Context, settings *config.Settings, target, version string, transport mcp.Transport) error {
	config.Log(settings)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	path := harvest.ResolveDataPath(target, cwd)

	svc, err := search.NewService(path, settings.Search.MaxResults)
	if err != nil {
		return err
	}
	defer closeService(svc)

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:    "harvest",
		Version: version,
		Service: svc,
	})

	if transport == nil {
		transport = &mcp.StdioTransport{}
	}
	slog.Info("Starting MCP server (stdio)", "snapshot", path)
	return server.Run(ctx, transport)
}

func closeService(svc *search.Service) {
	if err := svc.Close(); err != nil {
		slog.Error("Failed to close search service", "error", err)
	}
}

// splitFields splits a comma list, trimming spaces and dropping empties.
func splitFields(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
