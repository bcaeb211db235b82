package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/harvestlab/harvest/internal/domain"
	"github.com/harvestlab/harvest/internal/harvest"
)

// Config carries the watcher knobs.
type Config struct {
	// Root is the watched directory; Out the snapshot path the watcher
	// owns and rewrites.
	Root string
	Out  string

	// Poll is the scan interval; Debounce the quiet period that must
	// elapse after the most recent detected change before a flush.
	Poll     time.Duration
	Debounce time.Duration

	IncludeExt []string
	ExcludeExt []string
}

// Watcher polls a tree for changes and re-harvests into a versioned
// snapshot. One watcher goroutine is the sole writer of the output file;
// an flock on <out>.lock rejects a second watcher on the same output.
//
// The tick cycle is the state machine: no pending changes (idle), pending
// changes inside the debounce window, and flush once the window closes.
// All mutable state lives on the struct and is touched only by the loop
// goroutine, so a single tick is testable in isolation.
type Watcher struct {
	cfg    Config
	engine *harvest.Engine
	lock   *FileLock
	scan   ScanConfig

	prev       map[string]FileState
	pending    map[string]struct{}
	lastChange time.Time
	snap       *domain.Snapshot
}

// New creates a Watcher. The engine performs the re-harvests; cfg.Out
// and its temp sibling are excluded from scans by absolute path.
func New(cfg Config, engine *harvest.Engine) (*Watcher, error) {
	absOut, err := filepath.Abs(cfg.Out)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output path: %w", err)
	}
	absRoot, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	cfg.Out = absOut
	cfg.Root = absRoot

	scan := ScanConfig{
		// Self-exclusion: the watcher must never observe its own writes.
		ExcludeAbs: map[string]bool{
			absOut:           true,
			absOut + ".tmp":  true,
			absOut + ".lock": true,
		},
	}
	if len(cfg.IncludeExt) > 0 {
		scan.IncludeExt = extSet(cfg.IncludeExt)
	}
	if len(cfg.ExcludeExt) > 0 {
		scan.ExcludeExt = extSet(cfg.ExcludeExt)
	}

	return &Watcher{
		cfg:     cfg,
		engine:  engine,
		lock:    NewFileLock(absOut + ".lock"),
		scan:    scan,
		pending: make(map[string]struct{}),
	}, nil
}

// Snapshot returns the watcher's current snapshot document.
func (w *Watcher) Snapshot() *domain.Snapshot {
	return w.snap
}

// PendingCount returns the number of paths awaiting a flush.
func (w *Watcher) PendingCount() int {
	return len(w.pending)
}

// Start acquires the writer lock, establishes the initial snapshot, and
// seeds the change-detection baseline. It must be called once before
// Run or Tick.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.lock.TryLock(); err != nil {
		if errors.Is(err, ErrLockWouldBlock) {
			return fmt.Errorf("another watcher already owns %s: %w", w.cfg.Out, err)
		}
		return err
	}

	snap, err := harvest.LoadSnapshot(w.cfg.Out)
	switch {
	case err == nil:
		slog.Info("Resuming from existing snapshot", "path", w.cfg.Out, "version", snap.Metadata.Version)
		w.snap = snap
	case isNotFound(err):
		slog.Info("No snapshot found, performing initial harvest", "root", w.cfg.Root)
		if err := w.initialHarvest(ctx); err != nil {
			_ = w.lock.Unlock()
			return err
		}
	default:
		// A corrupt snapshot is replaced, not fatal: the next flush
		// rewrites it whole.
		slog.Warn("Existing snapshot is unreadable, starting fresh", "path", w.cfg.Out, "error", err)
		if err := w.initialHarvest(ctx); err != nil {
			_ = w.lock.Unlock()
			return err
		}
	}

	w.prev = Scan(w.cfg.Root, w.scan)
	return nil
}

func (w *Watcher) initialHarvest(ctx context.Context) error {
	snap, err := w.engine.HarvestLocal(ctx, w.cfg.Root, nil)
	if err != nil {
		return fmt.Errorf("initial harvest failed: %w", err)
	}
	harvest.BumpVersion(snap)
	if err := harvest.SaveSnapshot(w.cfg.Out, snap); err != nil {
		return fmt.Errorf("failed to persist initial snapshot: %w", err)
	}
	w.snap = snap
	slog.Info("Initial snapshot written", "path", w.cfg.Out, "files", snap.Metadata.Counts.TotalFiles)
	return nil
}

// Run executes the poll loop until the context is canceled. An in-flight
// flush always completes its atomic write before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.lock.Unlock(); err != nil {
			slog.Error("Failed to release watcher lock", "error", err)
		}
	}()

	slog.Info("Watching for changes",
		"root", w.cfg.Root, "out", w.cfg.Out,
		"poll", w.cfg.Poll, "debounce", w.cfg.Debounce)

	ticker := time.NewTicker(w.cfg.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Watcher stopped", "version", w.snap.Metadata.Version)
			return nil
		case <-ticker.C:
			w.Tick(ctx, time.Now())
		}
	}
}

// Tick performs one poll cycle at the given instant: scan, diff,
// accumulate, and flush once the debounce window has been quiet.
// Exported so tests can drive the state machine without real time.
func (w *Watcher) Tick(ctx context.Context, now time.Time) {
	curr := Scan(w.cfg.Root, w.scan)
	changed := Diff(w.prev, curr)
	w.prev = curr

	if len(changed) > 0 {
		for _, path := range changed {
			w.pending[path] = struct{}{}
		}
		// Quiet-period debounce: the clock restarts on every observed
		// change, so a burst's trailing edits land in the same batch.
		w.lastChange = now
		slog.Debug("Changes detected", "paths", len(changed), "pending", len(w.pending))
	}

	if len(w.pending) > 0 && now.Sub(w.lastChange) >= w.cfg.Debounce {
		w.flush(ctx)
	}
}

// flush re-harvests the tree and atomically replaces the snapshot,
// bumping its version. On any failure the pending set and the previous
// snapshot survive untouched, so a later tick retries; a half-applied
// flush is never persisted.
func (w *Watcher) flush(ctx context.Context) {
	batch := len(w.pending)
	slog.Info("Flushing changes", "pending", batch)

	snap, err := w.engine.HarvestLocal(ctx, w.cfg.Root, w.snap)
	if err != nil {
		slog.Error("Re-harvest failed, keeping previous snapshot", "error", err)
		return
	}
	harvest.BumpVersion(snap)

	if err := harvest.SaveSnapshot(w.cfg.Out, snap); err != nil {
		slog.Error("Snapshot write failed, keeping previous snapshot", "error", err)
		return
	}

	w.snap = snap
	w.pending = make(map[string]struct{})
	slog.Info("Snapshot updated",
		"version", snap.Metadata.Version,
		"files", snap.Metadata.Counts.TotalFiles,
		"delta", snap.Metadata.Delta)
}

// extSet lowercases entries and guarantees a leading dot, so "py" and
// ".PY" both mean ".py".
func extSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}

func isNotFound(err error) bool {
	return errors.Is(err, harvest.ErrSnapshotNotFound)
}
