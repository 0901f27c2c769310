package models

import "testing"

func TestItemProfileValidate(t *testing.T) {
	profile := &ItemProfile{
		Name:              "golden-apple",
		Category:          "fruit",
		Priority:          1,
		Markers:           []Marker{{Offset: Offset{DX: 4, DY: 4}, Color: Color{R: 240, G: 200, B: 40}}},
		RequireAllMarkers: true,
	}
	if err := profile.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestItemProfileValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		profile ItemProfile
	}{
		{"missing name", ItemProfile{Priority: 1, Template: "x"}},
		{"zero priority", ItemProfile{Name: "a", Template: "x"}},
		{"no detector", ItemProfile{Name: "a", Priority: 1}},
		{"min markers zero", ItemProfile{Name: "a", Priority: 1, Markers: []Marker{{}}, RequireAllMarkers: false}},
		{"min markers too high", ItemProfile{Name: "a", Priority: 1, Markers: []Marker{{}}, RequireAllMarkers: true, MinMarkers: 2}},
		{"confidence out of range", ItemProfile{Name: "a", Priority: 1, Template: "x", MinConfidence: 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.profile.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSlotClickTarget(t *testing.T) {
	slot := ItemSlot{ID: "s1", Region: Region{X: 100, Y: 200, W: 40, H: 20}}
	if got := slot.ClickTarget(); got != (Coord{X: 120, Y: 210}) {
		t.Fatalf("expected region center, got %+v", got)
	}

	slot.Click = &Coord{X: 111, Y: 222}
	if got := slot.ClickTarget(); got != (Coord{X: 111, Y: 222}) {
		t.Fatalf("expected click override, got %+v", got)
	}
}

func TestScanConfigValidate(t *testing.T) {
	cfg := &ScanConfig{
		Name: "inventory",
		Mode: ScanAllBestPerCategory,
		Slots: []ItemSlot{
			{ID: "s1", Region: Region{X: 0, Y: 0, W: 32, H: 32}, Index: 0},
			{ID: "s2", Region: Region{X: 40, Y: 0, W: 32, H: 32}, Index: 1},
		},
		Items: []ItemProfile{
			{Name: "apple", Category: "fruit", Priority: 2, Template: "apple", MinConfidence: 0.8},
			{Name: "pear", Category: "fruit", Priority: 1, Template: "pear", MinConfidence: 0.8},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if item := cfg.Item("pear"); item == nil || item.Priority != 1 {
		t.Fatalf("Item lookup failed: %+v", item)
	}
	if cfg.Item("missing") != nil {
		t.Fatalf("expected nil for unknown item")
	}

	cfg.Mode = "sometimes"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
