// Package library persists the shared automation references: named points,
// scannable slots, item profiles, and the scan configs that bind them. Scan
// configs reference slots and items by name; Open resolves the references so
// the engine only ever sees complete models.ScanConfig values.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fenrik/clickseq/internal/config"
	"github.com/fenrik/clickseq/internal/models"
)

var (
	// ErrPointNotFound is returned when a point id resolves to nothing.
	ErrPointNotFound = errors.New("point not found")

	// ErrScanNotFound is returned when a scan config name resolves to
	// nothing.
	ErrScanNotFound = errors.New("scan config not found")
)

// Defaults fills the optional item and scan fields the files leave unset.
type Defaults struct {
	RequireAllMarkers bool
	MinMarkers        int
	MinConfidence     float64
	ConfirmDelay      time.Duration
	ScanReverse       bool
}

// DefaultsFromConfig derives the library defaults from the app config.
func DefaultsFromConfig(cfg *config.Config) Defaults {
	return Defaults{
		RequireAllMarkers: cfg.RequireAllMarkers,
		MinMarkers:        cfg.MinMarkersRequired,
		MinConfidence:     cfg.DefaultMinConfidence,
		ConfirmDelay:      cfg.DefaultConfirmDelay,
		ScanReverse:       cfg.ScanReverse,
	}
}

// Library is the loaded reference data for one data dir.
type Library struct {
	dir      string
	defaults Defaults

	Points []models.Point
	Slots  []models.ItemSlot
	Items  []models.ItemProfile
	Scans  []*models.ScanConfig
}

// Open loads points, slots, items, and scan configs from the data dir.
// Missing files load as empty; a scan referencing an unknown slot or item is
// an error here, before any run starts.
func Open(dataDir string, defaults Defaults) (*Library, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, fmt.Errorf("library data dir is required")
	}

	lib := &Library{dir: dataDir, defaults: defaults}

	var err error
	if lib.Points, err = loadPoints(lib.pointsPath()); err != nil {
		return nil, err
	}
	if lib.Slots, err = loadSlots(lib.slotsPath()); err != nil {
		return nil, err
	}
	if lib.Items, err = loadItems(lib.itemsPath(), defaults); err != nil {
		return nil, err
	}
	if lib.Scans, err = loadScans(lib.scansDir(), lib.Slots, lib.Items, defaults); err != nil {
		return nil, err
	}

	return lib, nil
}

// Dir returns the data dir the library was opened on.
func (l *Library) Dir() string {
	return l.dir
}

// Point returns the point with the given id.
func (l *Library) Point(id string) (models.Point, error) {
	for _, p := range l.Points {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Point{}, fmt.Errorf("%w: %q", ErrPointNotFound, id)
}

// Scan returns the resolved scan config with the given name.
func (l *Library) Scan(name string) (*models.ScanConfig, error) {
	for _, s := range l.Scans {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrScanNotFound, name)
}

// PointMap returns the points keyed by id, in the shape a run expects.
func (l *Library) PointMap() map[string]models.Point {
	m := make(map[string]models.Point, len(l.Points))
	for _, p := range l.Points {
		m[p.ID] = p
	}
	return m
}

// ScanMap returns the resolved scan configs keyed by name.
func (l *Library) ScanMap() map[string]*models.ScanConfig {
	m := make(map[string]*models.ScanConfig, len(l.Scans))
	for _, s := range l.Scans {
		m[s.Name] = s
	}
	return m
}

func (l *Library) pointsPath() string {
	return filepath.Join(l.dir, "points.yaml")
}

func (l *Library) slotsPath() string {
	return filepath.Join(l.dir, "slots.yaml")
}

func (l *Library) itemsPath() string {
	return filepath.Join(l.dir, "items.yaml")
}

func (l *Library) scansDir() string {
	return filepath.Join(l.dir, "scans")
}

func loadScans(dir string, slots []models.ItemSlot, items []models.ItemProfile, defaults Defaults) ([]*models.ScanConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ScanConfig{}, nil
		}
		return nil, fmt.Errorf("read scans dir %s: %w", dir, err)
	}

	scans := make([]*models.ScanConfig, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		scan, err := loadScan(path, slots, items, defaults)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}

	sort.Slice(scans, func(i, j int) bool {
		return scans[i].Name < scans[j].Name
	})

	return scans, nil
}
