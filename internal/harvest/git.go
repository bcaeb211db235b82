package harvest

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandExecutor abstracts command execution for testing.
type CommandExecutor interface {
	// Run executes a command and returns its standard output.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// DefaultExecutor executes commands using os/exec.
type DefaultExecutor struct{}

// Run executes a command and returns its standard output. On failure the
// trimmed stderr is folded into the returned error.
func (e *DefaultExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// GitClient runs the git operations the walker relies on.
type GitClient struct {
	executor CommandExecutor
}

// NewGitClient creates a GitClient with the default command executor.
func NewGitClient() *GitClient {
	return &GitClient{executor: &DefaultExecutor{}}
}

// NewGitClientWithExecutor creates a GitClient with a custom executor (for testing).
func NewGitClientWithExecutor(executor CommandExecutor) *GitClient {
	return &GitClient{executor: executor}
}

// LsFiles returns the tracked files of the repository at root, relative
// to root. Fails when root is not a git work tree, which callers treat
// as the signal to fall back to a filesystem walk.
func (g *GitClient) LsFiles(ctx context.Context, root string) ([]string, error) {
	output, err := g.executor.Run(ctx, root, "git", "ls-files")
	if err != nil {
		return nil, fmt.Errorf("git ls-files failed: %w", err)
	}

	var files []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
