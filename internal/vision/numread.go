package vision

import (
	"image"
	"strconv"
	"strings"

	"github.com/fenrik/clickseq/internal/models"
)

// InkMask is a binary foreground mask. Glyphs and segmented character cells
// are compared in this form, which makes matching independent of palette.
type InkMask struct {
	W, H int
	Ink  []bool
}

// At reports whether the mask has ink at x,y.
func (m *InkMask) At(x, y int) bool {
	return m.Ink[y*m.W+x]
}

func (m *InkMask) set(x, y int, v bool) {
	m.Ink[y*m.W+x] = v
}

// NewInkMask returns an empty mask of the given size.
func NewInkMask(w, h int) *InkMask {
	return &InkMask{W: w, H: h, Ink: make([]bool, w*h)}
}

// Trim crops the mask to its ink bounding box. Glyphs are trimmed at load so
// they compare against segmented cells, which are tight by construction.
func (m *InkMask) Trim() *InkMask {
	minX, minY := m.W, m.H
	maxX, maxY := -1, -1
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if !m.At(x, y) {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < 0 {
		return NewInkMask(0, 0)
	}

	out := NewInkMask(maxX-minX+1, maxY-minY+1)
	for y := 0; y < out.H; y++ {
		for x := 0; x < out.W; x++ {
			out.set(x, y, m.At(minX+x, minY+y))
		}
	}
	return out
}

// MaskFromImage binarizes an image: pixels farther than tolerance from the
// background color are ink. The background is the most frequent color in the
// image, which holds for the flat-backdrop readouts this targets.
func MaskFromImage(img image.Image, tolerance float64) *InkMask {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	mask := NewInkMask(w, h)
	if w == 0 || h == 0 {
		return mask
	}

	background := dominantColor(img)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := ColorAt(img, bounds.Min.X+x, bounds.Min.Y+y)
			mask.set(x, y, !Similar(c, background, tolerance))
		}
	}
	return mask
}

func dominantColor(img image.Image) (best models.Color) {
	counts := make(map[models.Color]int)
	bounds := img.Bounds()
	bestCount := -1
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := ColorAt(img, x, y)
			counts[c]++
			if counts[c] > bestCount {
				best, bestCount = c, counts[c]
			}
		}
	}
	return best
}

// Glyph is one learned character shape.
type Glyph struct {
	// Char is the character the shape encodes: '0'..'9', '.', ',',
	// 'K', 'M', or 'B'.
	Char rune

	// Mask is the character's ink mask.
	Mask *InkMask
}

// Reader recognizes numbers in captured regions using a learned glyph set.
// Read never fails: anything unrecognizable yields ok == false.
type Reader struct {
	// Glyphs is the learned character set.
	Glyphs []Glyph

	// MinConfidence is the per-character acceptance threshold in [0, 1].
	MinConfidence float64

	// InkTolerance is the color distance from the background beyond which
	// a pixel counts as ink.
	InkTolerance float64
}

// Read recognizes a number in the image. It segments the foreground into
// character cells, matches each against the glyph set, and parses the
// assembled text.
func (r *Reader) Read(img image.Image) (float64, bool) {
	text, ok := r.ReadString(img)
	if !ok {
		return 0, false
	}
	return ParseNumberString(text)
}

// ReadString recognizes the raw character string without numeric parsing.
// Cells that match no glyph confidently are dropped; ok is false when no
// cell matched at all.
func (r *Reader) ReadString(img image.Image) (string, bool) {
	if len(r.Glyphs) == 0 {
		return "", false
	}

	mask := MaskFromImage(img, r.InkTolerance)
	cells := segmentCells(mask)
	if len(cells) == 0 {
		return "", false
	}

	var sb strings.Builder
	for _, cell := range cells {
		char, confidence := r.bestGlyph(cell)
		if confidence >= r.MinConfidence {
			sb.WriteRune(char)
		}
	}
	if sb.Len() == 0 {
		return "", false
	}
	return sb.String(), true
}

func (r *Reader) bestGlyph(cell *InkMask) (rune, float64) {
	var bestChar rune
	bestScore := -1.0
	for _, glyph := range r.Glyphs {
		score := maskSimilarity(cell, glyph.Mask)
		if score > bestScore {
			bestChar, bestScore = glyph.Char, score
		}
	}
	return bestChar, bestScore
}

// segmentCells splits the mask into contiguous runs of columns containing
// ink, each trimmed vertically to its ink rows. Runs are returned left to
// right.
func segmentCells(mask *InkMask) []*InkMask {
	inkColumn := make([]bool, mask.W)
	for x := 0; x < mask.W; x++ {
		for y := 0; y < mask.H; y++ {
			if mask.At(x, y) {
				inkColumn[x] = true
				break
			}
		}
	}

	var cells []*InkMask
	start := -1
	for x := 0; x <= mask.W; x++ {
		inRun := x < mask.W && inkColumn[x]
		switch {
		case inRun && start < 0:
			start = x
		case !inRun && start >= 0:
			cells = append(cells, cropCell(mask, start, x))
			start = -1
		}
	}
	return cells
}

func cropCell(mask *InkMask, x0, x1 int) *InkMask {
	top, bottom := mask.H, -1
	for y := 0; y < mask.H; y++ {
		for x := x0; x < x1; x++ {
			if mask.At(x, y) {
				if y < top {
					top = y
				}
				if y > bottom {
					bottom = y
				}
				break
			}
		}
	}
	if bottom < top {
		return NewInkMask(0, 0)
	}

	cell := NewInkMask(x1-x0, bottom-top+1)
	for y := 0; y < cell.H; y++ {
		for x := 0; x < cell.W; x++ {
			cell.set(x, y, mask.At(x0+x, top+y))
		}
	}
	return cell
}

// maskSimilarity resizes the cell onto the glyph's grid (nearest neighbor)
// and returns the fraction of agreeing pixels, scaled by the ratio of the
// two aspect ratios. The scaling keeps degenerate cells (a lone dot) from
// matching stretched glyphs (the digit one) perfectly after resampling.
func maskSimilarity(cell, glyph *InkMask) float64 {
	if cell.W == 0 || cell.H == 0 || glyph.W == 0 || glyph.H == 0 {
		return 0
	}
	agree := 0
	for y := 0; y < glyph.H; y++ {
		for x := 0; x < glyph.W; x++ {
			cx := x * cell.W / glyph.W
			cy := y * cell.H / glyph.H
			if cell.At(cx, cy) == glyph.At(x, y) {
				agree++
			}
		}
	}

	cellAspect := float64(cell.W) / float64(cell.H)
	glyphAspect := float64(glyph.W) / float64(glyph.H)
	penalty := cellAspect / glyphAspect
	if penalty > 1 {
		penalty = 1 / penalty
	}
	return penalty * float64(agree) / float64(glyph.W*glyph.H)
}

// ParseNumberString converts recognized text into a value. Commas are
// treated as dots; with multiple dots all but the last are thousands
// separators. A trailing K, M or B (either case) multiplies by 1e3, 1e6,
// or 1e9.
func ParseNumberString(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, false
	}

	multiplier := 1.0
	switch s[len(s)-1] {
	case 'k', 'K':
		multiplier = 1e3
		s = s[:len(s)-1]
	case 'm', 'M':
		multiplier = 1e6
		s = s[:len(s)-1]
	case 'b', 'B':
		multiplier = 1e9
		s = s[:len(s)-1]
	}

	if n := strings.Count(s, "."); n > 1 {
		s = strings.Replace(s, ".", "", n-1)
	}
	if s == "" || s == "." {
		return 0, false
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return value * multiplier, true
}
