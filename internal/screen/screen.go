// Package screen reads pixels from the local desktop.
package screen

import (
	"fmt"
	"image"

	"github.com/go-vgo/robotgo"
	"github.com/kbinani/screenshot"

	"github.com/fenrik/clickseq/internal/models"
)

// Capturer provides the pixels the engine reasons about. The engine calls it
// only from the worker goroutine.
type Capturer interface {
	// CaptureRegion grabs a screen rectangle as an RGBA image.
	CaptureRegion(r models.Region) (*image.RGBA, error)

	// ReadPixel samples a single screen pixel.
	ReadPixel(x, y int) (models.Color, error)
}

// Display captures from the local display.
type Display struct{}

// NewDisplay returns a Capturer backed by the local display.
func NewDisplay() *Display {
	return &Display{}
}

// CaptureRegion grabs the region. kbinani/screenshot handles multi-monitor
// bounds, so regions may span displays.
func (d *Display) CaptureRegion(r models.Region) (*image.RGBA, error) {
	if r.Empty() {
		return nil, fmt.Errorf("capture region %s: empty region", r)
	}
	img, err := screenshot.CaptureRect(image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H))
	if err != nil {
		return nil, fmt.Errorf("capture region %s: %w", r, err)
	}
	return img, nil
}

// ReadPixel samples one pixel without capturing a full region.
func (d *Display) ReadPixel(x, y int) (models.Color, error) {
	hex := robotgo.GetPixelColor(x, y)
	c, err := models.ParseHexColor(hex)
	if err != nil {
		return models.Color{}, fmt.Errorf("read pixel %d,%d: %w", x, y, err)
	}
	return c, nil
}
