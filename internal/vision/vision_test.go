package vision

import (
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/fenrik/clickseq/internal/models"
)

func fill(img *image.RGBA, c models.Color) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.Set(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}
}

func setPx(img *image.RGBA, x, y int, c models.Color) {
	img.Set(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
}

type mapTemplates map[string]image.Image

func (m mapTemplates) Template(name string) (image.Image, error) {
	tpl, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", name)
	}
	return tpl, nil
}

func TestDistance(t *testing.T) {
	a := models.Color{R: 10, G: 20, B: 30}
	if Distance(a, a) != 0 {
		t.Fatalf("identical colors should have zero distance")
	}

	b := models.Color{R: 13, G: 24, B: 30}
	if got := Distance(a, b); got != 5 {
		t.Fatalf("expected distance 5, got %v", got)
	}

	// Order must not matter even when channels underflow.
	if Distance(a, b) != Distance(b, a) {
		t.Fatalf("distance is not symmetric")
	}
}

func TestMatchProfileMarkers(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	fill(img, models.Color{R: 40, G: 40, B: 40})
	setPx(img, 2, 3, models.Color{R: 250, G: 10, B: 10})
	setPx(img, 8, 8, models.Color{R: 10, G: 250, B: 10})

	matcher := &Matcher{MarkerTolerance: 5}

	profile := models.ItemProfile{
		Name:     "gem",
		Priority: 1,
		Markers: []models.Marker{
			{Offset: models.Offset{DX: 2, DY: 3}, Color: models.Color{R: 250, G: 10, B: 10}},
			{Offset: models.Offset{DX: 8, DY: 8}, Color: models.Color{R: 10, G: 250, B: 10}},
		},
		RequireAllMarkers: true,
	}

	match, err := matcher.MatchProfile(img, profile)
	if err != nil {
		t.Fatalf("MatchProfile: %v", err)
	}
	if !match.Matched || match.Confidence != 1 {
		t.Fatalf("expected full marker match, got %+v", match)
	}

	// Break one marker: require-all fails, min-count 1 still passes.
	setPx(img, 8, 8, models.Color{R: 40, G: 40, B: 40})

	match, err = matcher.MatchProfile(img, profile)
	if err != nil {
		t.Fatalf("MatchProfile: %v", err)
	}
	if match.Matched {
		t.Fatalf("expected require-all to fail, got %+v", match)
	}

	profile.RequireAllMarkers = false
	profile.MinMarkers = 1
	match, err = matcher.MatchProfile(img, profile)
	if err != nil {
		t.Fatalf("MatchProfile: %v", err)
	}
	if !match.Matched || match.Confidence != 0.5 {
		t.Fatalf("expected half-confidence match, got %+v", match)
	}
}

func TestMatchProfileMarkerOutsideRegion(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	fill(img, models.Color{R: 200, G: 200, B: 200})

	matcher := &Matcher{MarkerTolerance: 0}
	profile := models.ItemProfile{
		Name:              "off",
		Priority:          1,
		Markers:           []models.Marker{{Offset: models.Offset{DX: 10, DY: 10}, Color: models.Color{R: 200, G: 200, B: 200}}},
		RequireAllMarkers: true,
	}

	match, err := matcher.MatchProfile(img, profile)
	if err != nil {
		t.Fatalf("MatchProfile: %v", err)
	}
	if match.Matched {
		t.Fatalf("marker outside the region must not match")
	}
}

func TestBestTemplateMatch(t *testing.T) {
	scene := image.NewRGBA(image.Rect(0, 0, 20, 12))
	fill(scene, models.Color{R: 0, G: 0, B: 0})
	mark := models.Color{R: 200, G: 150, B: 100}
	setPx(scene, 7, 4, mark)
	setPx(scene, 8, 4, mark)
	setPx(scene, 7, 5, mark)
	setPx(scene, 8, 5, mark)

	tpl := image.NewRGBA(image.Rect(0, 0, 2, 2))
	fill(tpl, mark)

	at, confidence := BestTemplateMatch(scene, tpl, 0)
	if confidence != 1 {
		t.Fatalf("expected perfect confidence, got %v", confidence)
	}
	if at != (image.Point{X: 7, Y: 4}) {
		t.Fatalf("expected match at 7,4, got %v", at)
	}
}

func TestBestTemplateMatchPartial(t *testing.T) {
	scene := image.NewRGBA(image.Rect(0, 0, 10, 10))
	fill(scene, models.Color{R: 0, G: 0, B: 0})
	mark := models.Color{R: 255, G: 255, B: 255}
	// Three of four template pixels present.
	setPx(scene, 3, 3, mark)
	setPx(scene, 4, 3, mark)
	setPx(scene, 3, 4, mark)

	tpl := image.NewRGBA(image.Rect(0, 0, 2, 2))
	fill(tpl, mark)

	_, confidence := BestTemplateMatch(scene, tpl, 0)
	if confidence != 0.75 {
		t.Fatalf("expected confidence 0.75, got %v", confidence)
	}
}

func TestBestTemplateMatchWildcards(t *testing.T) {
	scene := image.NewRGBA(image.Rect(0, 0, 8, 8))
	fill(scene, models.Color{R: 10, G: 10, B: 10})
	mark := models.Color{R: 250, G: 0, B: 0}
	setPx(scene, 2, 2, mark)
	setPx(scene, 3, 3, mark)

	// Transparent pixels act as wildcards: only the diagonal is opaque.
	tpl := image.NewRGBA(image.Rect(0, 0, 2, 2))
	setPx(tpl, 0, 0, mark)
	setPx(tpl, 1, 1, mark)

	at, confidence := BestTemplateMatch(scene, tpl, 0)
	if confidence != 1 {
		t.Fatalf("expected wildcard match, got %v", confidence)
	}
	if at != (image.Point{X: 2, Y: 2}) {
		t.Fatalf("expected match at 2,2, got %v", at)
	}
}

func TestBestTemplateMatchTooLarge(t *testing.T) {
	scene := image.NewRGBA(image.Rect(0, 0, 4, 4))
	tpl := image.NewRGBA(image.Rect(0, 0, 8, 8))
	fill(tpl, models.Color{R: 1, G: 2, B: 3})

	if _, confidence := BestTemplateMatch(scene, tpl, 0); confidence != 0 {
		t.Fatalf("oversized template must not match, got %v", confidence)
	}
}

func TestMatchProfileTemplate(t *testing.T) {
	slot := image.NewRGBA(image.Rect(0, 0, 12, 12))
	fill(slot, models.Color{R: 30, G: 30, B: 30})
	mark := models.Color{R: 220, G: 180, B: 40}
	setPx(slot, 5, 5, mark)
	setPx(slot, 6, 5, mark)
	setPx(slot, 5, 6, mark)
	setPx(slot, 6, 6, mark)

	tpl := image.NewRGBA(image.Rect(0, 0, 2, 2))
	fill(tpl, mark)

	matcher := &Matcher{
		TemplateTolerance: 4,
		Templates:         mapTemplates{"coin": tpl},
	}

	profile := models.ItemProfile{Name: "coin", Priority: 1, Template: "coin", MinConfidence: 0.9}
	match, err := matcher.MatchProfile(slot, profile)
	if err != nil {
		t.Fatalf("MatchProfile: %v", err)
	}
	if !match.Matched || match.Confidence != 1 {
		t.Fatalf("expected template match, got %+v", match)
	}

	profile.Template = "missing"
	if _, err := matcher.MatchProfile(slot, profile); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}
