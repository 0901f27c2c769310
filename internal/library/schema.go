package library

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fenrik/clickseq/internal/models"
)

// On-disk shapes. Colors are hex strings and delays are duration strings;
// compilation normalizes both into the model types.

type pointsFile struct {
	Points []pointSpec `yaml:"points"`
}

type pointSpec struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
}

type slotsFile struct {
	Slots []slotSpec `yaml:"slots"`
}

type slotSpec struct {
	ID     string     `yaml:"id"`
	Region regionSpec `yaml:"region"`
	Index  int        `yaml:"index"`
	Click  *coordSpec `yaml:"click"`
}

type regionSpec struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	W int `yaml:"w"`
	H int `yaml:"h"`
}

type coordSpec struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

type offsetSpec struct {
	DX int `yaml:"dx"`
	DY int `yaml:"dy"`
}

type itemsFile struct {
	Items []itemSpec `yaml:"items"`
}

type itemSpec struct {
	Name              string       `yaml:"name"`
	Category          string       `yaml:"category"`
	Priority          int          `yaml:"priority"`
	Markers           []markerSpec `yaml:"markers"`
	RequireAllMarkers *bool        `yaml:"require_all_markers"`
	MinMarkers        int          `yaml:"min_markers"`
	Template          string       `yaml:"template"`
	MinConfidence     float64      `yaml:"min_confidence"`
	Confirm           *offsetSpec  `yaml:"confirm"`
	ConfirmDelay      string       `yaml:"confirm_delay"`
}

type markerSpec struct {
	DX    int    `yaml:"dx"`
	DY    int    `yaml:"dy"`
	Color string `yaml:"color"`
}

type scanFile struct {
	Name    string   `yaml:"name"`
	Mode    string   `yaml:"mode"`
	Reverse *bool    `yaml:"reverse"`
	Slots   []string `yaml:"slots"`
	Items   []string `yaml:"items"`
}

func loadPoints(path string) ([]models.Point, error) {
	var file pointsFile
	if err := readYAML(path, &file); err != nil {
		return nil, err
	}

	points := make([]models.Point, 0, len(file.Points))
	seen := make(map[string]bool, len(file.Points))
	for i, spec := range file.Points {
		p := models.Point{
			ID:   strings.TrimSpace(spec.ID),
			Name: strings.TrimSpace(spec.Name),
			X:    spec.X,
			Y:    spec.Y,
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: points[%d]: %w", path, i, err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("%s: points[%d]: duplicate point id %q", path, i, p.ID)
		}
		seen[p.ID] = true
		points = append(points, p)
	}
	return points, nil
}

func loadSlots(path string) ([]models.ItemSlot, error) {
	var file slotsFile
	if err := readYAML(path, &file); err != nil {
		return nil, err
	}

	slots := make([]models.ItemSlot, 0, len(file.Slots))
	seen := make(map[string]bool, len(file.Slots))
	for i, spec := range file.Slots {
		slot := models.ItemSlot{
			ID:     strings.TrimSpace(spec.ID),
			Region: models.Region{X: spec.Region.X, Y: spec.Region.Y, W: spec.Region.W, H: spec.Region.H},
			Index:  spec.Index,
		}
		if slot.Index == 0 {
			slot.Index = i + 1
		}
		if spec.Click != nil {
			slot.Click = &models.Coord{X: spec.Click.X, Y: spec.Click.Y}
		}
		if err := slot.Validate(); err != nil {
			return nil, fmt.Errorf("%s: slots[%d]: %w", path, i, err)
		}
		if seen[slot.ID] {
			return nil, fmt.Errorf("%s: slots[%d]: duplicate slot id %q", path, i, slot.ID)
		}
		seen[slot.ID] = true
		slots = append(slots, slot)
	}
	return slots, nil
}

func loadItems(path string, defaults Defaults) ([]models.ItemProfile, error) {
	var file itemsFile
	if err := readYAML(path, &file); err != nil {
		return nil, err
	}

	items := make([]models.ItemProfile, 0, len(file.Items))
	seen := make(map[string]bool, len(file.Items))
	for i, spec := range file.Items {
		item, err := compileItem(&spec, defaults)
		if err != nil {
			return nil, fmt.Errorf("%s: items[%d]: %w", path, i, err)
		}
		if seen[item.Name] {
			return nil, fmt.Errorf("%s: items[%d]: duplicate item %q", path, i, item.Name)
		}
		seen[item.Name] = true
		items = append(items, item)
	}
	return items, nil
}

func compileItem(spec *itemSpec, defaults Defaults) (models.ItemProfile, error) {
	item := models.ItemProfile{
		Name:     strings.TrimSpace(spec.Name),
		Category: strings.TrimSpace(spec.Category),
		Priority: spec.Priority,
		Template: strings.TrimSpace(spec.Template),
	}
	if item.Priority == 0 {
		item.Priority = 1
	}

	for _, m := range spec.Markers {
		color, err := models.ParseHexColor(m.Color)
		if err != nil {
			return item, err
		}
		item.Markers = append(item.Markers, models.Marker{
			Offset: models.Offset{DX: m.DX, DY: m.DY},
			Color:  color,
		})
	}

	if spec.RequireAllMarkers != nil {
		item.RequireAllMarkers = *spec.RequireAllMarkers
	} else {
		item.RequireAllMarkers = defaults.RequireAllMarkers
	}
	item.MinMarkers = spec.MinMarkers
	if !item.RequireAllMarkers && len(item.Markers) > 0 && item.MinMarkers == 0 {
		// A profile with fewer markers than the configured default still
		// has to validate.
		item.MinMarkers = defaults.MinMarkers
		if item.MinMarkers > len(item.Markers) {
			item.MinMarkers = len(item.Markers)
		}
	}

	item.MinConfidence = spec.MinConfidence
	if item.Template != "" && item.MinConfidence == 0 {
		item.MinConfidence = defaults.MinConfidence
	}

	if spec.Confirm != nil {
		item.ConfirmOffset = &models.Offset{DX: spec.Confirm.DX, DY: spec.Confirm.DY}
		delay := defaults.ConfirmDelay
		if strings.TrimSpace(spec.ConfirmDelay) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(spec.ConfirmDelay))
			if err != nil {
				return item, fmt.Errorf("invalid confirm_delay %q: %w", spec.ConfirmDelay, err)
			}
			if d < 0 {
				return item, fmt.Errorf("confirm_delay must be non-negative")
			}
			delay = d
		}
		item.ConfirmDelay = delay
	}

	if err := item.Validate(); err != nil {
		return item, err
	}
	return item, nil
}

func loadScan(path string, slots []models.ItemSlot, items []models.ItemProfile, defaults Defaults) (*models.ScanConfig, error) {
	var file scanFile
	if err := readYAML(path, &file); err != nil {
		return nil, err
	}

	scan := &models.ScanConfig{Name: strings.TrimSpace(file.Name)}
	if scan.Name == "" {
		return nil, fmt.Errorf("%s: scan config name is required", path)
	}

	scan.Mode = models.ScanAllBestPerCategory
	if file.Mode != "" {
		mode := models.ScanMode(strings.ToLower(strings.TrimSpace(file.Mode)))
		if !mode.Valid() {
			return nil, fmt.Errorf("%s: unknown scan mode %q", path, file.Mode)
		}
		scan.Mode = mode
	}

	if file.Reverse != nil {
		scan.Reverse = *file.Reverse
	} else {
		scan.Reverse = defaults.ScanReverse
	}

	slotByID := make(map[string]models.ItemSlot, len(slots))
	for _, s := range slots {
		slotByID[s.ID] = s
	}
	for _, ref := range file.Slots {
		slot, ok := slotByID[strings.TrimSpace(ref)]
		if !ok {
			return nil, fmt.Errorf("%s: unknown slot %q", path, ref)
		}
		scan.Slots = append(scan.Slots, slot)
	}

	itemByName := make(map[string]models.ItemProfile, len(items))
	for _, it := range items {
		itemByName[it.Name] = it
	}
	for _, ref := range file.Items {
		item, ok := itemByName[strings.TrimSpace(ref)]
		if !ok {
			return nil, fmt.Errorf("%s: unknown item %q", path, ref)
		}
		scan.Items = append(scan.Items, item)
	}

	if err := scan.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scan, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
