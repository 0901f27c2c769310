package models

import (
	"testing"
	"time"
)

func TestSequenceValidate(t *testing.T) {
	seq := &Sequence{
		Name:   "farm",
		Cycles: 3,
		Start: Phase{
			Kind: PhaseStart,
			Steps: []Step{
				{Kind: StepClick, PointID: "open", Wait: WaitSpec{Kind: WaitFixed, Duration: 2 * time.Second}},
			},
		},
		Loops: []Phase{
			{
				Kind:        PhaseLoop,
				Name:        "harvest",
				Repetitions: 4,
				Steps: []Step{
					{Kind: StepScan, ScanConfig: "inventory", Mode: ScanAllBestPerCategory},
					{Kind: StepWait, Wait: WaitSpec{Kind: WaitRange, Min: time.Second, Max: 3 * time.Second}},
				},
			},
		},
		End: Phase{
			Kind: PhaseEnd,
			Steps: []Step{
				{Kind: StepKey, Key: "esc"},
			},
		},
	}

	if err := seq.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestSequenceValidateRejectsBadSteps(t *testing.T) {
	tests := []struct {
		name string
		step Step
	}{
		{"click without point", Step{Kind: StepClick}},
		{"key without key", Step{Kind: StepKey}},
		{"wait without spec", Step{Kind: StepWait}},
		{"scan without config", Step{Kind: StepScan}},
		{"wait_scan bad polarity", Step{Kind: StepWaitScan, ScanConfig: "s", Polarity: "sideways"}},
		{"wait_number empty region", Step{Kind: StepWaitNumber, Comparator: CompareGreater}},
		{"wait_number bad comparator", Step{Kind: StepWaitNumber, Region: &Region{W: 10, H: 10}, Comparator: "~"}},
		{"unknown kind", Step{Kind: "teleport"}},
		{"bad else", Step{Kind: StepClick, PointID: "p", Else: &ElseAction{Kind: ElseClickPoint}}},
		{"bad pixel wait", Step{Kind: StepClick, PointID: "p", Wait: WaitSpec{Kind: WaitPixel}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := &Sequence{
				Name:   "bad",
				Cycles: 1,
				Start:  Phase{Kind: PhaseStart, Steps: []Step{tt.step}},
				End:    Phase{Kind: PhaseEnd},
			}
			if err := seq.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tt.name)
			}
		})
	}
}

func TestSequenceValidateLoopRepetitions(t *testing.T) {
	seq := &Sequence{
		Name:   "loops",
		Cycles: 1,
		Start:  Phase{Kind: PhaseStart},
		Loops:  []Phase{{Kind: PhaseLoop, Repetitions: 0}},
		End:    Phase{Kind: PhaseEnd},
	}
	if err := seq.Validate(); err == nil {
		t.Fatalf("expected error for zero repetitions")
	}
}

func TestSequenceRefs(t *testing.T) {
	seq := &Sequence{
		Name:   "refs",
		Cycles: 1,
		Start: Phase{Kind: PhaseStart, Steps: []Step{
			{Kind: StepClick, PointID: "a", Wait: WaitSpec{Kind: WaitPixel, PointID: "b", Polarity: PixelAppear}},
			{Kind: StepScan, ScanConfig: "inv"},
		}},
		Loops: []Phase{{Kind: PhaseLoop, Repetitions: 1, Steps: []Step{
			{Kind: StepClick, PointID: "a", Else: &ElseAction{Kind: ElseClickPoint, PointID: "c"}},
			{Kind: StepWaitScan, ScanConfig: "chest", Polarity: ScanGone},
		}}},
		End: Phase{Kind: PhaseEnd},
	}

	points := seq.PointRefs()
	want := []string{"a", "b", "c"}
	if len(points) != len(want) {
		t.Fatalf("expected %d point refs, got %v", len(want), points)
	}
	for i, id := range want {
		if points[i] != id {
			t.Fatalf("expected point ref %q at %d, got %q", id, i, points[i])
		}
	}

	scans := seq.ScanRefs()
	if len(scans) != 2 || scans[0] != "inv" || scans[1] != "chest" {
		t.Fatalf("unexpected scan refs: %v", scans)
	}
}

func TestComparatorCompare(t *testing.T) {
	tests := []struct {
		cmp       Comparator
		value     float64
		threshold float64
		want      bool
	}{
		{CompareGreater, 150, 100, true},
		{CompareGreater, 100, 100, false},
		{CompareLess, 99.5, 100, true},
		{CompareGreaterEqual, 100, 100, true},
		{CompareLessEqual, 100.0005, 100, false},
		{CompareEqual, 100.0005, 100, true},
		{CompareEqual, 100.1, 100, false},
		{CompareNotEqual, 100.1, 100, true},
		{CompareNotEqual, 100.0005, 100, false},
	}

	for _, tt := range tests {
		if got := tt.cmp.Compare(tt.value, tt.threshold); got != tt.want {
			t.Fatalf("%v %s %v: expected %v, got %v", tt.value, tt.cmp, tt.threshold, tt.want, got)
		}
	}
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#1a2B3c")
	if err != nil {
		t.Fatalf("ParseHexColor: %v", err)
	}
	if c.R != 0x1a || c.G != 0x2b || c.B != 0x3c {
		t.Fatalf("unexpected color: %+v", c)
	}
	if c.Hex() != "#1a2b3c" {
		t.Fatalf("unexpected hex: %s", c.Hex())
	}

	if _, err := ParseHexColor("zz0011"); err == nil {
		t.Fatalf("expected error for invalid hex")
	}
	if _, err := ParseHexColor("#fff"); err == nil {
		t.Fatalf("expected error for short hex")
	}
}
