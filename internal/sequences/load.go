package sequences

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fenrik/clickseq/internal/models"
)

// Load reads and compiles a single sequence file.
func Load(path string) (*models.Sequence, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sequence path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sequence %s: %w", path, err)
	}

	seq, err := parseSequence(data)
	if err != nil {
		return nil, fmt.Errorf("parse sequence %s: %w", path, err)
	}
	seq.Source = path
	return seq, nil
}

// LoadDir loads every sequence in a directory, sorted by name. A missing
// directory is empty, not an error. Files without a .yaml/.yml extension are
// ignored.
func LoadDir(dir string) ([]*models.Sequence, error) {
	if strings.TrimSpace(dir) == "" {
		return []*models.Sequence{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Sequence{}, nil
		}
		return nil, fmt.Errorf("read sequences dir %s: %w", dir, err)
	}

	seqs := make([]*models.Sequence, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		seq, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, seq)
	}

	sort.Slice(seqs, func(i, j int) bool {
		return seqs[i].Name < seqs[j].Name
	})

	return seqs, nil
}
