package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fenrik/clickseq/internal/models"
)

// AddPoint appends a new point with the next free id and returns it. The
// change is in memory until SavePoints.
func (l *Library) AddPoint(name string, x, y int) models.Point {
	p := models.Point{
		ID:   l.nextPointID(),
		Name: strings.TrimSpace(name),
		X:    x,
		Y:    y,
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	l.Points = append(l.Points, p)
	return p
}

// RenamePoint changes a point's display name.
func (l *Library) RenamePoint(id, name string) error {
	for i := range l.Points {
		if l.Points[i].ID == id {
			l.Points[i].Name = strings.TrimSpace(name)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrPointNotFound, id)
}

// RemovePoint deletes a point by id.
func (l *Library) RemovePoint(id string) error {
	for i := range l.Points {
		if l.Points[i].ID == id {
			l.Points = append(l.Points[:i], l.Points[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrPointNotFound, id)
}

// SavePoints writes the point list back to points.yaml, creating the data
// dir if needed.
func (l *Library) SavePoints() error {
	file := pointsFile{Points: make([]pointSpec, 0, len(l.Points))}
	for _, p := range l.Points {
		file.Points = append(file.Points, pointSpec{ID: p.ID, Name: p.Name, X: p.X, Y: p.Y})
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("encode points: %w", err)
	}

	path := l.pointsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// nextPointID picks the smallest free "p<n>" id above every existing one,
// mirroring how captured points are numbered.
func (l *Library) nextPointID() string {
	max := 0
	for _, p := range l.Points {
		var n int
		if _, err := fmt.Sscanf(p.ID, "p%d", &n); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("p%d", max+1)
}
