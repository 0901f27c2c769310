package cli

import "testing"

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantX   int
		wantY   int
		wantErr bool
	}{
		{"simple", "100,200", 100, 200, false},
		{"with spaces", " 15 , 30 ", 15, 30, false},
		{"zero", "0,0", 0, 0, false},
		{"missing comma", "100", 0, 0, true},
		{"too many parts", "1,2,3", 0, 0, true},
		{"non-numeric x", "abc,2", 0, 0, true},
		{"non-numeric y", "1,xyz", 0, 0, true},
		{"negative x", "-1,2", 0, 0, true},
		{"negative y", "1,-2", 0, 0, true},
		{"empty", "", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, err := parseCoordinates(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCoordinates(%q) error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if x != tt.wantX || y != tt.wantY {
				t.Errorf("parseCoordinates(%q) = (%d, %d), want (%d, %d)", tt.input, x, y, tt.wantX, tt.wantY)
			}
		})
	}
}
