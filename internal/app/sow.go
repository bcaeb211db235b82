package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harvestlab/harvest/internal/domain"
	"github.com/harvestlab/harvest/internal/harvest"
)

// RunSow generates source artifacts from a snapshot. Currently one
// artifact exists: a React barrel file re-exporting every harvested
// JS/TS export.
func RunSow(target, reactOut string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	path := harvest.ResolveDataPath(target, cwd)

	snap, err := harvest.LoadSnapshot(path)
	if err != nil {
		return err
	}

	barrel, count := GenerateReactBarrel(snap)
	if err := os.WriteFile(reactOut, []byte(barrel), 0644); err != nil {
		return fmt.Errorf("failed to write barrel file: %w", err)
	}

	slog.Info("Barrel written", "out", reactOut, "exports", count)
	return nil
}

// GenerateReactBarrel renders a barrel module from the snapshot's JS/TS
// export manifests: one import line per contributing file, then a
// single export block. Returns the source text and the number of
// re-exported names.
//
// Name collisions across files resolve by numeric suffix (Button,
// Button2, ...), each final name bound to the first path that claimed
// it; an identical name+path pair is emitted once.
func GenerateReactBarrel(snap *domain.Snapshot) (string, int) {
	owner := make(map[string]bool)
	seen := make(map[string]bool)
	var imports []string
	var exported []string

	// resolve returns the barrel-unique name for name@specifier, or
	// false when this exact pair was already emitted.
	resolve := func(name, specifier string) (string, bool) {
		key := name + "\x00" + specifier
		if seen[key] {
			return "", false
		}
		seen[key] = true

		candidate := name
		for i := 2; owner[candidate]; i++ {
			candidate = fmt.Sprintf("%s%d", name, i)
		}
		owner[candidate] = true
		return candidate, true
	}

	for _, entry := range snap.Data {
		if !harvest.IsJSTS(entry.Language) {
			continue
		}
		ex := entry.Exports
		if ex == nil || (ex.Default == "" && len(ex.Named) == 0) {
			continue
		}
		specifier := "./" + strings.TrimSuffix(entry.Path, filepath.Ext(entry.Path))

		var items []string
		if ex.Default != "" {
			if name, ok := resolve(ex.Default, specifier); ok {
				items = append(items, "default as "+name)
				exported = append(exported, name)
			}
		}
		for _, named := range ex.Named {
			name, ok := resolve(named, specifier)
			if !ok {
				continue
			}
			item := named
			if name != named {
				item = named + " as " + name
			}
			items = append(items, item)
			exported = append(exported, name)
		}

		if len(items) > 0 {
			imports = append(imports, fmt.Sprintf("import { %s } from %q;", strings.Join(items, ", "), specifier))
		}
	}

	if len(exported) == 0 {
		return "export {};\n", 0
	}

	var sb strings.Builder
	for _, line := range imports {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("export { %s };\n", strings.Join(exported, ", ")))
	return sb.String(), len(exported)
}
