package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/harvestlab/harvest/internal/domain"
	"github.com/harvestlab/harvest/internal/harvest"
)

// ErrFileNotFound is returned when a path has no entry in the snapshot.
var ErrFileNotFound = errors.New("file not in snapshot")

// FileRange is an extracted slice of a harvested file's content, with the
// clamped 1-based inclusive bounds that produced it.
type FileRange struct {
	Path  string `json:"path"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// ReadRange extracts lines [start, end] of a file from the snapshot's
// embedded content, never from the original tree. start <= 0 means line
// 1; end <= 0 means end of file; out-of-range bounds are clamped.
func ReadRange(snap *domain.Snapshot, path string, start, end int) (*FileRange, error) {
	entry, err := findFile(snap, path)
	if err != nil {
		return nil, err
	}
	content, err := entryContent(entry)
	if err != nil {
		return nil, err
	}

	total := harvest.LineCount(content)
	if total < 1 {
		total = 1
	}
	if start <= 0 {
		start = 1
	}
	if end <= 0 || end > total {
		end = total
	}
	if start > total {
		start = total
	}
	if start > end {
		return nil, fmt.Errorf("start %d is past end %d", start, end)
	}

	return &FileRange{
		Path:  entry.Path,
		Start: start,
		End:   end,
		Text:  harvest.ExtractLines(content, start, end),
	}, nil
}

// Skeleton returns the signature-level outline of a harvested file from
// its embedded content.
func Skeleton(ctx context.Context, snap *domain.Snapshot, path string) (*FileRange, error) {
	entry, err := findFile(snap, path)
	if err != nil {
		return nil, err
	}
	content, err := entryContent(entry)
	if err != nil {
		return nil, err
	}

	total := harvest.LineCount(content)
	if total < 1 {
		total = 1
	}
	return &FileRange{
		Path:  entry.Path,
		Start: 1,
		End:   total,
		Text:  harvest.RenderSkeleton(ctx, entry.Language, content),
	}, nil
}

func findFile(snap *domain.Snapshot, path string) (*domain.FileEntry, error) {
	for i := range snap.Data {
		if snap.Data[i].Path == path {
			return &snap.Data[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", path, ErrFileNotFound)
}

func entryContent(entry *domain.FileEntry) (string, error) {
	if entry.Content == nil {
		reason := entry.TruncatedReason
		if reason == "" {
			reason = "content not captured"
		}
		return "", fmt.Errorf("no content for %s (%s)", entry.Path, reason)
	}
	return *entry.Content, nil
}
