// Package assets loads the image assets a run depends on: template images
// for item profiles and the learned glyph set for the number reader. Both
// live in the data dir as plain PNG files so they can be captured, inspected,
// and swapped without touching the binary.
package assets

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fenrik/clickseq/internal/vision"
)

// Store resolves template and glyph images under a data dir. Templates are
// cached after the first load; a run matching the same template every cycle
// should not hit the disk every cycle.
type Store struct {
	templatesDir string
	glyphsDir    string

	mu        sync.Mutex
	templates map[string]image.Image
}

// NewStore returns a store over dataDir/templates and dataDir/glyphs.
func NewStore(dataDir string) *Store {
	return &Store{
		templatesDir: filepath.Join(dataDir, "templates"),
		glyphsDir:    filepath.Join(dataDir, "glyphs"),
		templates:    make(map[string]image.Image),
	}
}

// Template resolves a template name to its image, loading <name>.png from
// the templates dir on first use. Implements vision.TemplateSource.
func (s *Store) Template(name string) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if img, ok := s.templates[name]; ok {
		return img, nil
	}

	path := filepath.Join(s.templatesDir, name+".png")
	img, err := loadPNG(path)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", name, err)
	}
	s.templates[name] = img
	return img, nil
}

// TemplateNames lists the available template names in sorted order.
func (s *Store) TemplateNames() ([]string, error) {
	entries, err := os.ReadDir(s.templatesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read templates dir %s: %w", s.templatesDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".png") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
	}
	sort.Strings(names)
	return names, nil
}

// Glyphs loads the learned character set from the glyphs dir. Each PNG's
// base name encodes the character: "0".."9", "dot", "comma", "k", "m", "b".
// Files with other names are ignored; a missing dir is an empty set.
func (s *Store) Glyphs(inkTolerance float64) ([]vision.Glyph, error) {
	entries, err := os.ReadDir(s.glyphsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read glyphs dir %s: %w", s.glyphsDir, err)
	}

	glyphs := make([]vision.Glyph, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".png") {
			continue
		}
		base := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		char, ok := glyphChar(base)
		if !ok {
			continue
		}

		img, err := loadPNG(filepath.Join(s.glyphsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("glyph %q: %w", base, err)
		}
		mask := vision.MaskFromImage(img, inkTolerance).Trim()
		if mask.W == 0 {
			return nil, fmt.Errorf("glyph %q: image has no ink", base)
		}
		glyphs = append(glyphs, vision.Glyph{Char: char, Mask: mask})
	}

	sort.Slice(glyphs, func(i, j int) bool {
		return glyphs[i].Char < glyphs[j].Char
	})
	return glyphs, nil
}

// glyphChar maps a glyph file base name to the character it encodes.
func glyphChar(base string) (rune, bool) {
	switch strings.ToLower(base) {
	case "dot":
		return '.', true
	case "comma":
		return ',', true
	}

	runes := []rune(base)
	if len(runes) != 1 {
		return 0, false
	}
	switch c := runes[0]; {
	case c >= '0' && c <= '9':
		return c, true
	case c == 'k' || c == 'K':
		return 'K', true
	case c == 'm' || c == 'M':
		return 'M', true
	case c == 'b' || c == 'B':
		return 'B', true
	}
	return 0, false
}

func loadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
