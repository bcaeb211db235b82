package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/harvestlab/harvest/internal/domain"
)

const (
	githubAPIBase = "https://api.github.com"
	githubRawBase = "https://raw.githubusercontent.com"

	// githubTimeout bounds every API and raw-content request.
	githubTimeout = 60 * time.Second
)

var (
	// ErrNotGitHubURL indicates the target is not a github.com repository URL.
	ErrNotGitHubURL = errors.New("not a github.com repository URL")

	// Matches the path of: https://github.com/owner/repo, optionally
	// followed by /tree/<branch>/<subpath> or /blob/<branch>/<path>.
	githubPathPattern = regexp.MustCompile(`^/([^/]+)/([^/]+?)(?:\.git)?(?:/(?:tree|blob)/([^/]+)(?:/(.*))?)?/?$`)
)

// GitHubRef identifies a repository slice: owner/repo at a branch,
// optionally narrowed to a subpath.
type GitHubRef struct {
	Owner   string
	Repo    string
	Branch  string // empty means the repository default
	Subpath string
}

// InScope reports whether a repository-relative path falls inside the
// ref's subpath (everything is in scope when no subpath is set).
func (r *GitHubRef) InScope(p string) bool {
	if r.Subpath == "" {
		return true
	}
	prefix := strings.TrimSuffix(r.Subpath, "/")
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// ParseGitHubURL parses a github.com web URL into a GitHubRef.
//
// Examples:
//   - https://github.com/acme/widgets -> acme/widgets, default branch
//   - https://github.com/acme/widgets/tree/main/src -> branch main, subpath src
//   - https://github.com/acme/widgets/blob/main/src/app.py -> branch main, subpath src/app.py
func ParseGitHubURL(raw string) (*GitHubRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, ErrNotGitHubURL
	}
	if !strings.EqualFold(u.Hostname(), "github.com") {
		return nil, ErrNotGitHubURL
	}

	matches := githubPathPattern.FindStringSubmatch(u.Path)
	if matches == nil {
		return nil, ErrNotGitHubURL
	}
	return &GitHubRef{
		Owner:   matches[1],
		Repo:    matches[2],
		Branch:  matches[3],
		Subpath: strings.TrimSuffix(matches[4], "/"),
	}, nil
}

// IsGitHubURL checks if the given target is a harvestable github.com URL.
func IsGitHubURL(raw string) bool {
	_, err := ParseGitHubURL(raw)
	return err == nil
}

// GitHubClient fetches repository metadata and raw file content from the
// GitHub API. Requests carry a bearer token when GITHUB_TOKEN or GH_TOKEN
// is set, which raises the unauthenticated rate limits.
type GitHubClient struct {
	client  *http.Client
	apiBase string
	rawBase string
	token   string
}

// NewGitHubClient creates a client against the public GitHub endpoints.
func NewGitHubClient() *GitHubClient {
	return NewGitHubClientWithEndpoints(
		&http.Client{Timeout: githubTimeout},
		githubAPIBase,
		githubRawBase,
		githubToken(),
	)
}

// NewGitHubClientWithEndpoints creates a client pinned to custom API and
// raw-content endpoints (for testing).
func NewGitHubClientWithEndpoints(client *http.Client, apiBase, rawBase, token string) *GitHubClient {
	return &GitHubClient{
		client:  client,
		apiBase: strings.TrimSuffix(apiBase, "/"),
		rawBase: strings.TrimSuffix(rawBase, "/"),
		token:   token,
	}
}

func githubToken() string {
	if tok := os.Getenv("GITHUB_TOKEN"); tok != "" {
		return tok
	}
	return os.Getenv("GH_TOKEN")
}

// TreeNode is one entry of a recursive git tree listing.
type TreeNode struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// DefaultBranch resolves the repository's default branch, falling back to
// "main" when the API response omits it.
func (g *GitHubClient) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	body, err := g.get(ctx, fmt.Sprintf("%s/repos/%s/%s", g.apiBase, owner, repo))
	if err != nil {
		return "", err
	}
	var payload struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to decode repository metadata: %w", err)
	}
	if payload.DefaultBranch == "" {
		return "main", nil
	}
	return payload.DefaultBranch, nil
}

// Tree lists the full recursive tree of the repository at ref.
func (g *GitHubClient) Tree(ctx context.Context, owner, repo, ref string) ([]TreeNode, error) {
	body, err := g.get(ctx, fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", g.apiBase, owner, repo, ref))
	if err != nil {
		return nil, err
	}
	var payload struct {
		Tree []TreeNode `json:"tree"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode tree listing: %w", err)
	}
	return payload.Tree, nil
}

// Raw fetches the raw bytes of one file at ref.
func (g *GitHubClient) Raw(ctx context.Context, owner, repo, ref, filePath string) ([]byte, error) {
	return g.get(ctx, fmt.Sprintf("%s/%s/%s/%s/%s", g.rawBase, owner, repo, ref, filePath))
}

func (g *GitHubClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "harvest-cli")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %s", rawURL, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// HarvestGitHub harvests a github.com repository slice into a snapshot.
// Files come from the recursive tree listing, content from the raw host.
// A file whose fetch fails is kept as a metadata-only entry with
// truncated_reason "fetch-failed" rather than aborting the run. Fetched
// content is always embedded in the snapshot: remote files cannot be
// re-read later the way local ones can.
func (e *Engine) HarvestGitHub(ctx context.Context, rawURL string) (*domain.Snapshot, error) {
	ref, err := ParseGitHubURL(rawURL)
	if err != nil {
		return nil, err
	}

	branch := ref.Branch
	if branch == "" {
		branch, err = e.github.DefaultBranch(ctx, ref.Owner, ref.Repo)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve default branch: %w", err)
		}
	}

	nodes, err := e.github.Tree(ctx, ref.Owner, ref.Repo, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to list repository tree: %w", err)
	}

	files := []domain.FileEntry{}
	chunks := []domain.ChunkEntry{}
	for _, node := range nodes {
		if len(files) >= e.cfg.MaxFiles {
			slog.Warn("File ceiling reached, remaining files skipped", "max_files", e.cfg.MaxFiles)
			break
		}
		if node.Type != "blob" {
			continue
		}
		rel := node.Path
		if !ref.InScope(rel) || e.cfg.Rules.ShouldSkip(rel) {
			continue
		}

		entry := domain.FileEntry{
			Name:     path.Base(rel),
			Path:     rel,
			Size:     node.Size,
			Language: Classify(rel),
		}

		switch {
		case e.cfg.NoContent:
			entry.Truncated = true
			entry.TruncatedReason = domain.TruncatedNoContent
		case e.cfg.Rules.PathOnly(rel):
			entry.Truncated = true
			entry.TruncatedReason = domain.TruncatedPathOnly
		case node.Size > e.cfg.MaxFileBytes:
			entry.Truncated = true
			entry.TruncatedReason = domain.TruncatedSize
		}

		if !entry.Truncated {
			data, err := e.github.Raw(ctx, ref.Owner, ref.Repo, branch, rel)
			if err != nil {
				slog.Warn("Failed to fetch file content", "path", rel, "error", err)
				entry.Truncated = true
				entry.TruncatedReason = domain.TruncatedFetchFailed
			} else {
				text := string(data)
				entry.Hash = HashBytes(data)
				entry.Content = &text

				fileChunks, exports, pySymbols := extractFile(ctx, rel, entry.Language, text)
				entry.Exports = exports
				entry.PySymbols = pySymbols
				chunks = append(chunks, fileChunks...)
			}
		}

		files = append(files, entry)
	}

	metadata := domain.Metadata{
		Source: domain.Source{
			Type:    domain.SourceGitHub,
			Root:    fmt.Sprintf("https://github.com/%s/%s", ref.Owner, ref.Repo),
			Branch:  &branch,
			Subpath: ref.Subpath,
		},
		Counts:    summarize(files),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Schema:    domain.SchemaVersion,
	}
	return &domain.Snapshot{Metadata: metadata, Data: files, Chunks: chunks}, nil
}
