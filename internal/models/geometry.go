package models

import (
	"fmt"
	"strings"
)

// Coord is an absolute screen position in pixels.
type Coord struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Offset is a displacement relative to some anchor position.
type Offset struct {
	DX int `json:"dx" yaml:"dx"`
	DY int `json:"dy" yaml:"dy"`
}

// Add returns the coordinate shifted by the offset.
func (c Coord) Add(o Offset) Coord {
	return Coord{X: c.X + o.DX, Y: c.Y + o.DY}
}

// Region is an axis-aligned screen rectangle.
type Region struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	W int `json:"w" yaml:"w"`
	H int `json:"h" yaml:"h"`
}

// Center returns the midpoint of the region.
func (r Region) Center() Coord {
	return Coord{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Contains reports whether the coordinate lies inside the region.
func (r Region) Contains(c Coord) bool {
	return c.X >= r.X && c.X < r.X+r.W && c.Y >= r.Y && c.Y < r.Y+r.H
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

func (r Region) String() string {
	return fmt.Sprintf("%d,%d %dx%d", r.X, r.Y, r.W, r.H)
}

// Color is an opaque RGB screen color.
type Color struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
}

// Hex renders the color as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseHexColor parses "#rrggbb" or "rrggbb" into a Color.
func ParseHexColor(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("invalid color %q: want rrggbb", s)
	}
	var c Color
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return c, nil
}
