package sequences

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fenrik/clickseq/internal/models"
)

// SearchPaths returns sequence directories in precedence order: the data
// dir, the per-user config dir, then the system share dir.
func SearchPaths(dataDir string) []string {
	paths := make([]string, 0, 3)
	if dataDir != "" {
		paths = append(paths, filepath.Join(dataDir, "sequences"))
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "clickseq", "sequences"))
	}

	paths = append(paths, filepath.Join(string(filepath.Separator), "usr", "share", "clickseq", "sequences"))
	return paths
}

// LoadAll loads sequences from the search paths with first-hit precedence by
// name, then appends the builtins that were not shadowed.
func LoadAll(dataDir string) ([]*models.Sequence, error) {
	seen := make(map[string]*models.Sequence)
	order := make([]string, 0)

	for _, path := range SearchPaths(dataDir) {
		seqs, err := LoadDir(path)
		if err != nil {
			return nil, err
		}
		for _, seq := range seqs {
			if _, exists := seen[seq.Name]; exists {
				continue
			}
			seen[seq.Name] = seq
			order = append(order, seq.Name)
		}
	}

	builtins, err := LoadBuiltins()
	if err != nil {
		return nil, err
	}
	for _, seq := range builtins {
		if _, exists := seen[seq.Name]; exists {
			continue
		}
		seen[seq.Name] = seq
		order = append(order, seq.Name)
	}

	resolved := make([]*models.Sequence, 0, len(order))
	for _, name := range order {
		resolved = append(resolved, seen[name])
	}

	return resolved, nil
}

// Find resolves a name-or-path argument. An argument naming an existing file
// (or carrying a YAML extension) loads directly; anything else is looked up
// by name across the search paths and builtins.
func Find(dataDir, arg string) (*models.Sequence, error) {
	if looksLikePath(arg) {
		return Load(arg)
	}

	seqs, err := LoadAll(dataDir)
	if err != nil {
		return nil, err
	}
	for _, seq := range seqs {
		if seq.Name == arg {
			return seq, nil
		}
	}
	return nil, fmt.Errorf("unknown sequence %q", arg)
}

func looksLikePath(arg string) bool {
	if _, err := os.Stat(arg); err == nil {
		return true
	}
	switch filepath.Ext(arg) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
