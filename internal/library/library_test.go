package library

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fenrik/clickseq/internal/models"
)

func testDefaults() Defaults {
	return Defaults{
		RequireAllMarkers: true,
		MinMarkers:        2,
		MinConfidence:     0.8,
		ConfirmDelay:      250 * time.Millisecond,
		ScanReverse:       true,
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeTestData(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, "points.yaml"), `points:
  - {id: p1, name: Open inventory, x: 640, y: 480}
  - {id: p2, name: Sell, x: 100, y: 200}
`)
	writeFile(t, filepath.Join(dir, "slots.yaml"), `slots:
  - id: slot-1
    region: {x: 100, y: 200, w: 64, h: 64}
  - id: slot-2
    region: {x: 170, y: 200, w: 64, h: 64}
    index: 7
    click: {x: 180, y: 210}
`)
	writeFile(t, filepath.Join(dir, "items.yaml"), `items:
  - name: ruby
    category: gems
    markers:
      - {dx: 4, dy: 4, color: "#e02020"}
    require_all_markers: false
    confirm: {dx: 30, dy: 0}
  - name: chest
    priority: 2
    template: chest
`)
	writeFile(t, filepath.Join(dir, "scans", "loot.yaml"), `name: loot
slots: [slot-1, slot-2]
items: [ruby, chest]
`)
	writeFile(t, filepath.Join(dir, "scans", "sell.yaml"), `name: sell
mode: every
reverse: false
slots: [slot-1]
items: [chest]
`)
}

func TestOpenLibrary(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)

	lib, err := Open(dir, testDefaults())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if len(lib.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(lib.Points))
	}
	p, err := lib.Point("p1")
	if err != nil {
		t.Fatalf("Point: %v", err)
	}
	if p.Name != "Open inventory" || p.X != 640 || p.Y != 480 {
		t.Fatalf("unexpected point: %+v", p)
	}

	if len(lib.Slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(lib.Slots))
	}
	if lib.Slots[0].Index != 1 {
		t.Fatalf("expected slot index to default to file position, got %d", lib.Slots[0].Index)
	}
	if lib.Slots[1].Index != 7 {
		t.Fatalf("expected explicit slot index 7, got %d", lib.Slots[1].Index)
	}
	if got := lib.Slots[1].ClickTarget(); got != (models.Coord{X: 180, Y: 210}) {
		t.Fatalf("expected click override, got %+v", got)
	}

	if len(lib.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(lib.Items))
	}
	ruby := lib.Items[0]
	if ruby.Priority != 1 {
		t.Fatalf("expected priority to default to 1, got %d", ruby.Priority)
	}
	if ruby.RequireAllMarkers {
		t.Fatalf("expected explicit require_all_markers false to stick")
	}
	if ruby.MinMarkers != 1 {
		t.Fatalf("expected min_markers clamped to marker count, got %d", ruby.MinMarkers)
	}
	if ruby.ConfirmOffset == nil || ruby.ConfirmDelay != 250*time.Millisecond {
		t.Fatalf("expected confirm delay default, got %+v delay %v", ruby.ConfirmOffset, ruby.ConfirmDelay)
	}
	if ruby.Markers[0].Color != (models.Color{R: 0xe0, G: 0x20, B: 0x20}) {
		t.Fatalf("unexpected marker color: %+v", ruby.Markers[0].Color)
	}
	chest := lib.Items[1]
	if !chest.RequireAllMarkers {
		t.Fatalf("expected require_all_markers to default from config")
	}
	if chest.MinConfidence != 0.8 {
		t.Fatalf("expected min_confidence default 0.8, got %v", chest.MinConfidence)
	}

	if len(lib.Scans) != 2 {
		t.Fatalf("expected 2 scans, got %d", len(lib.Scans))
	}
	loot := lib.Scans[0]
	if loot.Name != "loot" {
		t.Fatalf("expected scans sorted by name, got %q first", loot.Name)
	}
	if loot.Mode != models.ScanAllBestPerCategory {
		t.Fatalf("expected mode to default to all, got %q", loot.Mode)
	}
	if !loot.Reverse {
		t.Fatalf("expected reverse to default from config")
	}
	if len(loot.Slots) != 2 || loot.Slots[1].ID != "slot-2" {
		t.Fatalf("expected slot references resolved in order, got %+v", loot.Slots)
	}
	if len(loot.Items) != 2 || loot.Items[0].Name != "ruby" {
		t.Fatalf("expected item references resolved, got %+v", loot.Items)
	}

	sell := lib.Scans[1]
	if sell.Mode != models.ScanEveryMatch || sell.Reverse {
		t.Fatalf("expected explicit mode/reverse to stick, got %q %v", sell.Mode, sell.Reverse)
	}

	if _, err := lib.Scan("loot"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if _, err := lib.Scan("nope"); err == nil {
		t.Fatalf("expected error for unknown scan")
	}
	if got := lib.PointMap(); len(got) != 2 || got["p2"].Name != "Sell" {
		t.Fatalf("unexpected point map: %+v", got)
	}
	if got := lib.ScanMap(); got["sell"] == nil {
		t.Fatalf("expected sell in scan map")
	}
}

func TestOpenEmptyDataDir(t *testing.T) {
	lib, err := Open(t.TempDir(), testDefaults())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(lib.Points)+len(lib.Slots)+len(lib.Items)+len(lib.Scans) != 0 {
		t.Fatalf("expected empty library, got %+v", lib)
	}
}

func TestOpenErrors(t *testing.T) {
	cases := []struct {
		name  string
		file  string
		body  string
		want  string
		extra func(t *testing.T, dir string)
	}{
		{
			name: "duplicate point id",
			file: "points.yaml",
			body: "points:\n  - {id: p1, x: 1, y: 1}\n  - {id: p1, x: 2, y: 2}\n",
			want: "duplicate point id",
		},
		{
			name: "bad marker color",
			file: "items.yaml",
			body: "items:\n  - name: ruby\n    markers:\n      - {dx: 0, dy: 0, color: reddish}\n",
			want: "invalid color",
		},
		{
			name: "slot without area",
			file: "slots.yaml",
			body: "slots:\n  - id: s1\n    region: {x: 1, y: 1, w: 0, h: 5}\n",
			want: "region must have area",
		},
		{
			name: "scan with unknown slot",
			file: filepath.Join("scans", "broken.yaml"),
			body: "name: broken\nslots: [missing]\nitems: [ruby]\n",
			want: "unknown slot",
			extra: func(t *testing.T, dir string) {
				writeFile(t, filepath.Join(dir, "items.yaml"), "items:\n  - name: ruby\n    template: ruby\n")
			},
		},
		{
			name: "scan with unknown item",
			file: filepath.Join("scans", "broken.yaml"),
			body: "name: broken\nslots: [s1]\nitems: [missing]\n",
			want: "unknown item",
			extra: func(t *testing.T, dir string) {
				writeFile(t, filepath.Join(dir, "slots.yaml"), "slots:\n  - id: s1\n    region: {x: 0, y: 0, w: 5, h: 5}\n")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if tc.extra != nil {
				tc.extra(t, dir)
			}
			writeFile(t, filepath.Join(dir, tc.file), tc.body)

			_, err := Open(dir, testDefaults())
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestPointEditing(t *testing.T) {
	dir := t.TempDir()
	lib, err := Open(dir, testDefaults())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	first := lib.AddPoint("Open", 10, 20)
	if first.ID != "p1" {
		t.Fatalf("expected first id p1, got %q", first.ID)
	}
	second := lib.AddPoint("", 30, 40)
	if second.ID != "p2" {
		t.Fatalf("expected second id p2, got %q", second.ID)
	}
	if second.Name != "p2" {
		t.Fatalf("expected name to fall back to id, got %q", second.Name)
	}

	if err := lib.RenamePoint("p2", "Close"); err != nil {
		t.Fatalf("RenamePoint: %v", err)
	}
	if err := lib.RemovePoint("p1"); err != nil {
		t.Fatalf("RemovePoint: %v", err)
	}
	if err := lib.RemovePoint("p1"); err == nil {
		t.Fatalf("expected error removing missing point")
	}

	// Ids never reuse a freed number below the high-water mark.
	third := lib.AddPoint("Third", 50, 60)
	if third.ID != "p3" {
		t.Fatalf("expected third id p3, got %q", third.ID)
	}

	if err := lib.SavePoints(); err != nil {
		t.Fatalf("SavePoints: %v", err)
	}

	reloaded, err := Open(dir, testDefaults())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(reloaded.Points) != 2 {
		t.Fatalf("expected 2 points after reload, got %d", len(reloaded.Points))
	}
	p, err := reloaded.Point("p2")
	if err != nil {
		t.Fatalf("Point after reload: %v", err)
	}
	if p.Name != "Close" || p.X != 30 || p.Y != 40 {
		t.Fatalf("unexpected reloaded point: %+v", p)
	}
}
