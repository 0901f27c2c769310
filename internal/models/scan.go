package models

import (
	"fmt"
	"strings"
	"time"
)

// ScanMode selects how raw slot hits reduce to a click list.
type ScanMode string

const (
	// ScanAllBestPerCategory keeps, per category, only the best hit across
	// all slots. Items without a category compete only with themselves.
	ScanAllBestPerCategory ScanMode = "all"

	// ScanBestOverall keeps the single best hit of the whole scan.
	ScanBestOverall ScanMode = "best"

	// ScanEveryMatch keeps every slot hit unreduced.
	ScanEveryMatch ScanMode = "every"
)

// Valid reports whether the mode is one of the known scan modes.
func (m ScanMode) Valid() bool {
	switch m {
	case ScanAllBestPerCategory, ScanBestOverall, ScanEveryMatch:
		return true
	}
	return false
}

// Marker is one expected color at an offset relative to a slot's region
// origin. A profile matches a slot when its marker policy is satisfied.
type Marker struct {
	// Offset is the sample position relative to the slot region's top-left.
	Offset Offset `json:"offset" yaml:"offset"`

	// Color is the expected color at that position.
	Color Color `json:"color" yaml:"color"`
}

// ItemProfile describes one recognizable item: how to detect it and how to
// rank it against competing items.
type ItemProfile struct {
	// Name identifies the profile.
	Name string `json:"name" yaml:"name"`

	// Category groups competing items. Items sharing a category compete
	// for a single click in "all" mode; an empty category means the item
	// competes with nothing.
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// Priority ranks competing items. Lower is better; 1 is best.
	Priority int `json:"priority" yaml:"priority"`

	// Markers are the expected colors checked against a slot region.
	Markers []Marker `json:"markers,omitempty" yaml:"markers,omitempty"`

	// RequireAllMarkers demands every marker match. When false, MinMarkers
	// matches suffice.
	RequireAllMarkers bool `json:"require_all_markers" yaml:"require_all_markers"`

	// MinMarkers is the minimum matching markers when RequireAllMarkers is
	// false.
	MinMarkers int `json:"min_markers,omitempty" yaml:"min_markers,omitempty"`

	// Template optionally names a template image matched against the slot.
	Template string `json:"template,omitempty" yaml:"template,omitempty"`

	// MinConfidence is the template match threshold in [0, 1].
	MinConfidence float64 `json:"min_confidence,omitempty" yaml:"min_confidence,omitempty"`

	// ConfirmOffset optionally places a confirmation click relative to the
	// clicked slot, after ConfirmDelay.
	ConfirmOffset *Offset       `json:"confirm_offset,omitempty" yaml:"confirm_offset,omitempty"`
	ConfirmDelay  time.Duration `json:"confirm_delay,omitempty" yaml:"confirm_delay,omitempty"`
}

// Validate checks if the item profile is valid.
func (p *ItemProfile) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(p.Name) == "" {
		validation.AddMessage("name", "item name is required")
	}
	if p.Priority < 1 {
		validation.AddMessage("priority", "priority must be >= 1")
	}
	if len(p.Markers) == 0 && strings.TrimSpace(p.Template) == "" {
		validation.AddMessage("markers", "item needs markers or a template")
	}
	if !p.RequireAllMarkers && len(p.Markers) > 0 && p.MinMarkers < 1 {
		validation.AddMessage("min_markers", "min_markers must be >= 1 when not requiring all markers")
	}
	if p.MinMarkers > len(p.Markers) {
		validation.AddMessage("min_markers", "min_markers exceeds marker count")
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		validation.AddMessage("min_confidence", "min_confidence must be within [0, 1]")
	}
	return validation.Err()
}

// ItemSlot is one scannable screen region.
type ItemSlot struct {
	// ID identifies the slot.
	ID string `json:"id" yaml:"id"`

	// Region is the screen area captured for matching.
	Region Region `json:"region" yaml:"region"`

	// Index orders slots within a scan. Lower scans first.
	Index int `json:"index" yaml:"index"`

	// Click optionally overrides where a hit on this slot is clicked.
	// Defaults to the region center.
	Click *Coord `json:"click,omitempty" yaml:"click,omitempty"`
}

// ClickTarget returns where a hit on this slot should be clicked.
func (s ItemSlot) ClickTarget() Coord {
	if s.Click != nil {
		return *s.Click
	}
	return s.Region.Center()
}

// Validate checks if the slot is valid.
func (s *ItemSlot) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(s.ID) == "" {
		validation.AddMessage("id", "slot id is required")
	}
	if s.Region.Empty() {
		validation.AddMessage("region", "slot region must have area")
	}
	return validation.Err()
}

// ScanConfig is a fully resolved scan: the slots to sweep, the item profiles
// to test, and how hits reduce to clicks. Loaders resolve name references
// into this form before a run starts.
type ScanConfig struct {
	// Name identifies the scan configuration.
	Name string `json:"name" yaml:"name"`

	// Slots are swept in Index order, or reversed when Reverse is set.
	Slots []ItemSlot `json:"slots" yaml:"slots"`

	// Items are the profiles tested against every slot.
	Items []ItemProfile `json:"items" yaml:"items"`

	// Mode is the default reduction mode; steps may override it.
	Mode ScanMode `json:"mode" yaml:"mode"`

	// Reverse sweeps slots in descending index order.
	Reverse bool `json:"reverse,omitempty" yaml:"reverse,omitempty"`
}

// Validate checks if the scan config is valid.
func (c *ScanConfig) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(c.Name) == "" {
		validation.AddMessage("name", "scan config name is required")
	}
	if len(c.Slots) == 0 {
		validation.AddMessage("slots", "scan config needs at least one slot")
	}
	if len(c.Items) == 0 {
		validation.AddMessage("items", "scan config needs at least one item")
	}
	if !c.Mode.Valid() {
		validation.AddMessage("mode", fmt.Sprintf("unknown scan mode %q", c.Mode))
	}
	for i := range c.Slots {
		if err := c.Slots[i].Validate(); err != nil {
			validation.AddMessage(fmt.Sprintf("slots[%d]", i), err.Error())
		}
	}
	for i := range c.Items {
		if err := c.Items[i].Validate(); err != nil {
			validation.AddMessage(fmt.Sprintf("items[%d]", i), err.Error())
		}
	}
	return validation.Err()
}

// Item returns the profile with the given name, or nil.
func (c *ScanConfig) Item(name string) *ItemProfile {
	for i := range c.Items {
		if c.Items[i].Name == name {
			return &c.Items[i]
		}
	}
	return nil
}
