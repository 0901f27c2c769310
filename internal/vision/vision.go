// Package vision implements the pixel-level matching the engine builds on:
// color comparison, marker profiles, template search, and number reading.
package vision

import (
	"fmt"
	"image"
	"math"

	"github.com/fenrik/clickseq/internal/models"
)

// Distance is the Euclidean RGB distance between two colors.
func Distance(a, b models.Color) float64 {
	dr := float64(int(a.R) - int(b.R))
	dg := float64(int(a.G) - int(b.G))
	db := float64(int(a.B) - int(b.B))
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// Similar reports whether two colors are within tolerance of each other.
func Similar(a, b models.Color, tolerance float64) bool {
	return Distance(a, b) <= tolerance
}

// ColorAt samples an image pixel as a models.Color, ignoring alpha.
func ColorAt(img image.Image, x, y int) models.Color {
	r, g, b, _ := img.At(x, y).RGBA()
	return models.Color{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
}

// TemplateSource resolves template images by name. Implemented by the assets
// store; tests supply maps.
type TemplateSource interface {
	Template(name string) (image.Image, error)
}

// Match is the verdict for one profile against one slot image.
type Match struct {
	// Matched is true when the profile's detection policy is satisfied.
	Matched bool

	// Confidence is the template match score when a template is
	// configured, otherwise the fraction of markers that matched.
	Confidence float64
}

// Matcher evaluates item profiles against captured slot images.
type Matcher struct {
	// MarkerTolerance is the color distance allowed for marker checks.
	MarkerTolerance float64

	// TemplateTolerance is the per-pixel color distance allowed during
	// template search.
	TemplateTolerance float64

	// Templates resolves template names for profiles that use one.
	Templates TemplateSource
}

// MatchProfile tests one profile against a captured slot image. Marker
// offsets are relative to the image's top-left corner. When a profile
// carries both markers and a template, both must pass.
func (m *Matcher) MatchProfile(img image.Image, profile models.ItemProfile) (Match, error) {
	result := Match{Matched: true}

	if len(profile.Markers) > 0 {
		matched, fraction := m.checkMarkers(img, profile)
		result.Matched = matched
		result.Confidence = fraction
	}

	if result.Matched && profile.Template != "" {
		if m.Templates == nil {
			return Match{}, fmt.Errorf("profile %s: no template source configured", profile.Name)
		}
		tpl, err := m.Templates.Template(profile.Template)
		if err != nil {
			return Match{}, fmt.Errorf("profile %s: %w", profile.Name, err)
		}
		_, confidence := BestTemplateMatch(img, tpl, m.TemplateTolerance)
		result.Confidence = confidence
		result.Matched = confidence >= profile.MinConfidence
	}

	return result, nil
}

func (m *Matcher) checkMarkers(img image.Image, profile models.ItemProfile) (bool, float64) {
	bounds := img.Bounds()
	matched := 0
	for _, marker := range profile.Markers {
		x := bounds.Min.X + marker.Offset.DX
		y := bounds.Min.Y + marker.Offset.DY
		if x < bounds.Min.X || y < bounds.Min.Y || x >= bounds.Max.X || y >= bounds.Max.Y {
			continue
		}
		if Similar(ColorAt(img, x, y), marker.Color, m.MarkerTolerance) {
			matched++
		}
	}

	fraction := float64(matched) / float64(len(profile.Markers))
	if profile.RequireAllMarkers {
		return matched == len(profile.Markers), fraction
	}
	return matched >= profile.MinMarkers, fraction
}

// BestTemplateMatch slides the template over the image and returns the
// position and confidence of the best placement. Confidence is the fraction
// of opaque template pixels within tolerance; transparent template pixels
// are wildcards. Returns confidence 0 when the template does not fit.
func BestTemplateMatch(img image.Image, tpl image.Image, tolerance float64) (image.Point, float64) {
	iBounds := img.Bounds()
	tBounds := tpl.Bounds()
	tw, th := tBounds.Dx(), tBounds.Dy()
	if tw == 0 || th == 0 || iBounds.Dx() < tw || iBounds.Dy() < th {
		return image.Point{}, 0
	}

	opaque := opaquePixels(tpl)
	if opaque == 0 {
		return image.Point{}, 0
	}

	var best image.Point
	bestMatched := -1

	for y := iBounds.Min.Y; y <= iBounds.Max.Y-th; y++ {
		for x := iBounds.Min.X; x <= iBounds.Max.X-tw; x++ {
			// A placement stops early once it can no longer beat the
			// best one seen so far.
			misBudget := opaque - bestMatched - 1
			if matched, ok := placementMatches(img, tpl, x, y, tolerance, misBudget); ok && matched > bestMatched {
				best = image.Point{X: x, Y: y}
				bestMatched = matched
				if bestMatched == opaque {
					return best, 1
				}
			}
		}
	}

	if bestMatched < 0 {
		return image.Point{}, 0
	}
	return best, float64(bestMatched) / float64(opaque)
}

func opaquePixels(tpl image.Image) int {
	b := tpl.Bounds()
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := tpl.At(x, y).RGBA(); a > 0 {
				n++
			}
		}
	}
	return n
}

func placementMatches(img image.Image, tpl image.Image, sx, sy int, tolerance float64, misBudget int) (int, bool) {
	tBounds := tpl.Bounds()
	matched, missed := 0, 0
	for ty := 0; ty < tBounds.Dy(); ty++ {
		for tx := 0; tx < tBounds.Dx(); tx++ {
			px, py := tBounds.Min.X+tx, tBounds.Min.Y+ty
			_, _, _, a := tpl.At(px, py).RGBA()
			if a == 0 {
				continue
			}
			if Similar(ColorAt(img, sx+tx, sy+ty), ColorAt(tpl, px, py), tolerance) {
				matched++
				continue
			}
			missed++
			if missed > misBudget {
				return matched, false
			}
		}
	}
	return matched, true
}
