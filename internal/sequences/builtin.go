package sequences

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/fenrik/clickseq/internal/models"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// LoadBuiltins returns the sequences bundled with the binary. They reference
// no points or scans so they are runnable anywhere.
func LoadBuiltins() ([]*models.Sequence, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, fmt.Errorf("read builtin sequences: %w", err)
	}

	seqs := make([]*models.Sequence, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := builtinFS.ReadFile("builtin/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read builtin sequence %s: %w", entry.Name(), err)
		}
		seq, err := parseSequence(data)
		if err != nil {
			return nil, fmt.Errorf("parse builtin sequence %s: %w", entry.Name(), err)
		}
		seq.Source = "builtin"
		seqs = append(seqs, seq)
	}

	sort.Slice(seqs, func(i, j int) bool {
		return seqs[i].Name < seqs[j].Name
	})

	return seqs, nil
}
