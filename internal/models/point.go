package models

import "strings"

// Point is a named screen position that steps reference by ID. The name is
// renameable; the ID and coordinates are fixed once captured.
type Point struct {
	// ID is the stable identifier steps reference.
	ID string `json:"id" yaml:"id"`

	// Name is the operator-facing display name.
	Name string `json:"name" yaml:"name"`

	// X is the horizontal screen coordinate.
	X int `json:"x" yaml:"x"`

	// Y is the vertical screen coordinate.
	Y int `json:"y" yaml:"y"`
}

// Coord returns the point's screen position.
func (p Point) Coord() Coord {
	return Coord{X: p.X, Y: p.Y}
}

// Validate checks if the point is valid.
func (p *Point) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(p.ID) == "" {
		validation.AddMessage("id", "point id is required")
	}
	if p.X < 0 || p.Y < 0 {
		validation.AddMessage("coordinates", "coordinates must be non-negative")
	}
	return validation.Err()
}
