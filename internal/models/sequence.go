package models

import (
	"fmt"
	"strings"
	"time"
)

// WaitKind discriminates the wait specifications a step can carry.
type WaitKind string

const (
	// WaitImmediate proceeds without waiting.
	WaitImmediate WaitKind = "immediate"

	// WaitFixed sleeps for a fixed duration.
	WaitFixed WaitKind = "fixed"

	// WaitRange sleeps for a uniformly random duration in [Min, Max].
	WaitRange WaitKind = "range"

	// WaitPixel polls a point until its color matches (or stops matching)
	// the expected color.
	WaitPixel WaitKind = "pixel"

	// WaitClock waits until an absolute wall-clock instant.
	WaitClock WaitKind = "clock"

	// WaitComposite sleeps for a fixed duration, then waits for a pixel.
	WaitComposite WaitKind = "composite"
)

// PixelPolarity selects what a pixel wait is looking for.
type PixelPolarity string

const (
	// PixelAppear is satisfied when the sampled color matches the target.
	PixelAppear PixelPolarity = "appear"

	// PixelGone is satisfied when the sampled color no longer matches.
	PixelGone PixelPolarity = "gone"
)

// WaitSpec describes the gate evaluated before a step's action fires.
// Kind selects the variant; only the fields for that variant are meaningful.
type WaitSpec struct {
	Kind WaitKind `json:"kind" yaml:"kind"`

	// Duration is the fixed sleep (WaitFixed) or the delay portion of a
	// composite wait (WaitComposite).
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min and Max bound the random sleep for WaitRange.
	Min time.Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max time.Duration `json:"max,omitempty" yaml:"max,omitempty"`

	// PointID names the point sampled by WaitPixel and WaitComposite.
	PointID string `json:"point_id,omitempty" yaml:"point_id,omitempty"`

	// Color is the expected pixel color for WaitPixel and WaitComposite.
	Color Color `json:"color,omitempty" yaml:"color,omitempty"`

	// Polarity selects appear or gone for pixel waits.
	Polarity PixelPolarity `json:"polarity,omitempty" yaml:"polarity,omitempty"`

	// Clock is the raw clock expression for WaitClock ("14:30", "90s",
	// "+5"). It is resolved to an instant when the step starts.
	Clock string `json:"clock,omitempty" yaml:"clock,omitempty"`
}

// Immediate reports whether the wait is a no-op.
func (w WaitSpec) Immediate() bool {
	return w.Kind == "" || w.Kind == WaitImmediate
}

// Validate checks if the wait spec is valid.
func (w *WaitSpec) Validate() error {
	validation := &ValidationErrors{}
	w.validateInto(validation, "wait")
	return validation.Err()
}

func (w *WaitSpec) validateInto(validation *ValidationErrors, field string) {
	switch w.Kind {
	case "", WaitImmediate:
	case WaitFixed:
		if w.Duration < 0 {
			validation.AddMessage(field, "fixed wait duration must be non-negative")
		}
	case WaitRange:
		if w.Min < 0 || w.Max < w.Min {
			validation.AddMessage(field, "range wait needs 0 <= min <= max")
		}
	case WaitPixel:
		if strings.TrimSpace(w.PointID) == "" {
			validation.AddMessage(field, "pixel wait requires a point_id")
		}
		if w.Polarity != PixelAppear && w.Polarity != PixelGone {
			validation.AddMessage(field, fmt.Sprintf("pixel wait polarity must be %q or %q", PixelAppear, PixelGone))
		}
	case WaitClock:
		if strings.TrimSpace(w.Clock) == "" {
			validation.AddMessage(field, "clock wait requires a clock expression")
		}
	case WaitComposite:
		if w.Duration < 0 {
			validation.AddMessage(field, "composite wait delay must be non-negative")
		}
		if strings.TrimSpace(w.PointID) == "" {
			validation.AddMessage(field, "composite wait requires a point_id")
		}
		if w.Polarity != PixelAppear && w.Polarity != PixelGone {
			validation.AddMessage(field, fmt.Sprintf("composite wait polarity must be %q or %q", PixelAppear, PixelGone))
		}
	default:
		validation.AddMessage(field, fmt.Sprintf("unknown wait kind %q", w.Kind))
	}
}

// Comparator compares a recognized number against a threshold.
type Comparator string

const (
	CompareGreater      Comparator = ">"
	CompareLess         Comparator = "<"
	CompareGreaterEqual Comparator = ">="
	CompareLessEqual    Comparator = "<="
	CompareEqual        Comparator = "=="
	CompareNotEqual     Comparator = "!="
)

// EqualityEpsilon is the tolerance used by == and != comparisons.
const EqualityEpsilon = 0.001

// Compare applies the comparator to value against threshold.
func (c Comparator) Compare(value, threshold float64) bool {
	switch c {
	case CompareGreater:
		return value > threshold
	case CompareLess:
		return value < threshold
	case CompareGreaterEqual:
		return value >= threshold
	case CompareLessEqual:
		return value <= threshold
	case CompareEqual:
		return value >= threshold-EqualityEpsilon && value <= threshold+EqualityEpsilon
	case CompareNotEqual:
		return value < threshold-EqualityEpsilon || value > threshold+EqualityEpsilon
	default:
		return false
	}
}

// Valid reports whether the comparator is one of the known operators.
func (c Comparator) Valid() bool {
	switch c {
	case CompareGreater, CompareLess, CompareGreaterEqual, CompareLessEqual, CompareEqual, CompareNotEqual:
		return true
	}
	return false
}

// ElseKind discriminates fallback actions taken when a step's trigger fails.
type ElseKind string

const (
	// ElseSkip continues with the next step without acting.
	ElseSkip ElseKind = "skip"

	// ElseRestart resets the run to the first cycle and zeroes statistics.
	ElseRestart ElseKind = "restart"

	// ElseClickPoint clicks an alternate point, optionally after its own wait.
	ElseClickPoint ElseKind = "click_point"

	// ElsePressKey injects a key press.
	ElsePressKey ElseKind = "press_key"
)

// ElseAction is the fallback branch attached to a step.
type ElseAction struct {
	Kind ElseKind `json:"kind" yaml:"kind"`

	// PointID names the alternate point for ElseClickPoint.
	PointID string `json:"point_id,omitempty" yaml:"point_id,omitempty"`

	// Wait optionally gates the alternate click.
	Wait *WaitSpec `json:"wait,omitempty" yaml:"wait,omitempty"`

	// Key is the key identifier for ElsePressKey.
	Key string `json:"key,omitempty" yaml:"key,omitempty"`
}

// Validate checks if the else action is valid.
func (a *ElseAction) Validate() error {
	validation := &ValidationErrors{}
	a.validateInto(validation, "else")
	return validation.Err()
}

func (a *ElseAction) validateInto(validation *ValidationErrors, field string) {
	switch a.Kind {
	case ElseSkip, ElseRestart:
	case ElseClickPoint:
		if strings.TrimSpace(a.PointID) == "" {
			validation.AddMessage(field, "click_point fallback requires a point_id")
		}
		if a.Wait != nil {
			a.Wait.validateInto(validation, field+".wait")
		}
	case ElsePressKey:
		if strings.TrimSpace(a.Key) == "" {
			validation.AddMessage(field, "press_key fallback requires a key")
		}
	default:
		validation.AddMessage(field, fmt.Sprintf("unknown else kind %q", a.Kind))
	}
}

// StepKind discriminates the step vocabulary.
type StepKind string

const (
	// StepClick waits, then clicks a point.
	StepClick StepKind = "click"

	// StepWait waits without acting.
	StepWait StepKind = "wait"

	// StepKey waits, then presses a key.
	StepKey StepKind = "key"

	// StepScan runs an item scan and clicks the resolved targets.
	StepScan StepKind = "scan"

	// StepWaitScan polls an item scan until items appear or vanish.
	StepWaitScan StepKind = "wait_scan"

	// StepWaitNumber polls a region until a recognized number satisfies a
	// comparison.
	StepWaitNumber StepKind = "wait_number"
)

// ScanPolarity selects what a scan wait is looking for.
type ScanPolarity string

const (
	// ScanAppear is satisfied when at least one item matches.
	ScanAppear ScanPolarity = "appear"

	// ScanGone is satisfied when no item matches.
	ScanGone ScanPolarity = "gone"
)

// Step is one executable entry in a phase. Kind selects the variant; only
// that variant's fields are meaningful.
type Step struct {
	Kind StepKind `json:"kind" yaml:"kind"`

	// PointID names the click target for StepClick.
	PointID string `json:"point_id,omitempty" yaml:"point_id,omitempty"`

	// Key is the key identifier for StepKey.
	Key string `json:"key,omitempty" yaml:"key,omitempty"`

	// Wait gates StepClick, StepWait, and StepKey.
	Wait WaitSpec `json:"wait,omitempty" yaml:"wait,omitempty"`

	// ScanConfig names the scan configuration for StepScan and StepWaitScan.
	ScanConfig string `json:"scan_config,omitempty" yaml:"scan_config,omitempty"`

	// Mode overrides the scan config's default mode for StepScan.
	Mode ScanMode `json:"mode,omitempty" yaml:"mode,omitempty"`

	// ItemFilter restricts StepWaitScan to a single item name.
	ItemFilter string `json:"item_filter,omitempty" yaml:"item_filter,omitempty"`

	// Polarity selects appear or gone for StepWaitScan.
	Polarity ScanPolarity `json:"polarity,omitempty" yaml:"polarity,omitempty"`

	// Region is the capture area for StepWaitNumber.
	Region *Region `json:"region,omitempty" yaml:"region,omitempty"`

	// Comparator and Threshold define the StepWaitNumber condition.
	Comparator Comparator `json:"comparator,omitempty" yaml:"comparator,omitempty"`
	Threshold  float64    `json:"threshold,omitempty" yaml:"threshold,omitempty"`

	// ClickPointID optionally names a point clicked after a satisfied
	// StepWaitNumber.
	ClickPointID string `json:"click_point_id,omitempty" yaml:"click_point_id,omitempty"`

	// Else is the fallback taken when the step's trigger times out or a
	// scan finds nothing. A nil Else makes such a failure fatal.
	Else *ElseAction `json:"else,omitempty" yaml:"else,omitempty"`
}

// Validate checks if the step is valid.
func (s *Step) Validate() error {
	validation := &ValidationErrors{}
	s.validateInto(validation, "step")
	return validation.Err()
}

func (s *Step) validateInto(validation *ValidationErrors, field string) {
	switch s.Kind {
	case StepClick:
		if strings.TrimSpace(s.PointID) == "" {
			validation.AddMessage(field, "click step requires a point_id")
		}
		s.Wait.validateInto(validation, field+".wait")
	case StepWait:
		if s.Wait.Immediate() {
			validation.AddMessage(field, "wait step requires a wait spec")
		} else {
			s.Wait.validateInto(validation, field+".wait")
		}
	case StepKey:
		if strings.TrimSpace(s.Key) == "" {
			validation.AddMessage(field, "key step requires a key")
		}
		s.Wait.validateInto(validation, field+".wait")
	case StepScan:
		if strings.TrimSpace(s.ScanConfig) == "" {
			validation.AddMessage(field, "scan step requires a scan_config")
		}
		if s.Mode != "" && !s.Mode.Valid() {
			validation.AddMessage(field, fmt.Sprintf("unknown scan mode %q", s.Mode))
		}
	case StepWaitScan:
		if strings.TrimSpace(s.ScanConfig) == "" {
			validation.AddMessage(field, "wait_scan step requires a scan_config")
		}
		if s.Polarity != ScanAppear && s.Polarity != ScanGone {
			validation.AddMessage(field, fmt.Sprintf("wait_scan polarity must be %q or %q", ScanAppear, ScanGone))
		}
	case StepWaitNumber:
		if s.Region == nil || s.Region.Empty() {
			validation.AddMessage(field, "wait_number step requires a non-empty region")
		}
		if !s.Comparator.Valid() {
			validation.AddMessage(field, fmt.Sprintf("unknown comparator %q", s.Comparator))
		}
	default:
		validation.AddMessage(field, fmt.Sprintf("unknown step kind %q", s.Kind))
	}
	if s.Else != nil {
		s.Else.validateInto(validation, field+".else")
	}
}

// PhaseKind identifies a phase's role in the sequence.
type PhaseKind string

const (
	// PhaseStart runs once at the top of every cycle.
	PhaseStart PhaseKind = "start"

	// PhaseLoop runs Repetitions times per cycle.
	PhaseLoop PhaseKind = "loop"

	// PhaseEnd runs exactly once after the final cycle.
	PhaseEnd PhaseKind = "end"
)

// Phase is an ordered list of steps with a role in the cycle structure.
type Phase struct {
	Kind PhaseKind `json:"kind" yaml:"kind"`

	// Name labels loop phases in logs and the watch view.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Repetitions is how many times a loop phase runs per cycle (>= 1).
	// Ignored for start and end phases.
	Repetitions int `json:"repetitions,omitempty" yaml:"repetitions,omitempty"`

	// Steps run in declared order.
	Steps []Step `json:"steps" yaml:"steps"`
}

// Sequence is a complete executable automation: a start phase, zero or more
// loop phases, and an end phase, cycled Cycles times.
type Sequence struct {
	// Name identifies the sequence.
	Name string `json:"name" yaml:"name"`

	// Description is optional operator documentation.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Cycles is how many times the start+loops block runs. Zero means run
	// until stopped; the end phase still runs once on stop.
	Cycles int `json:"cycles" yaml:"cycles"`

	// Start runs at the top of every cycle.
	Start Phase `json:"start" yaml:"start"`

	// Loops run in declared order after the start phase, each repeated
	// its own number of times.
	Loops []Phase `json:"loops,omitempty" yaml:"loops,omitempty"`

	// End runs exactly once after the final cycle.
	End Phase `json:"end" yaml:"end"`

	// Source records where the sequence was loaded from.
	Source string `json:"-" yaml:"-"`
}

// Validate checks if the sequence is valid.
func (s *Sequence) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(s.Name) == "" {
		validation.AddMessage("name", "sequence name is required")
	}
	if s.Cycles < 0 {
		validation.AddMessage("cycles", "cycles must be non-negative")
	}
	if s.Start.Kind != "" && s.Start.Kind != PhaseStart {
		validation.AddMessage("start", "start phase has wrong kind")
	}
	if s.End.Kind != "" && s.End.Kind != PhaseEnd {
		validation.AddMessage("end", "end phase has wrong kind")
	}
	for i := range s.Start.Steps {
		s.Start.Steps[i].validateInto(validation, fmt.Sprintf("start.steps[%d]", i))
	}
	for li := range s.Loops {
		loop := &s.Loops[li]
		if loop.Kind != "" && loop.Kind != PhaseLoop {
			validation.AddMessage(fmt.Sprintf("loops[%d]", li), "loop phase has wrong kind")
		}
		if loop.Repetitions < 1 {
			validation.AddMessage(fmt.Sprintf("loops[%d].repetitions", li), "loop repetitions must be >= 1")
		}
		for i := range loop.Steps {
			loop.Steps[i].validateInto(validation, fmt.Sprintf("loops[%d].steps[%d]", li, i))
		}
	}
	for i := range s.End.Steps {
		s.End.Steps[i].validateInto(validation, fmt.Sprintf("end.steps[%d]", i))
	}
	return validation.Err()
}

// PointRefs returns every point ID the sequence references, in encounter
// order with duplicates removed. Used for load-time reference checks.
func (s *Sequence) PointRefs() []string {
	seen := make(map[string]bool)
	var refs []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			refs = append(refs, id)
		}
	}
	forEachStep(s, func(st *Step) {
		add(st.PointID)
		add(st.ClickPointID)
		add(st.Wait.PointID)
		if st.Else != nil {
			add(st.Else.PointID)
			if st.Else.Wait != nil {
				add(st.Else.Wait.PointID)
			}
		}
	})
	return refs
}

// ScanRefs returns every scan config name the sequence references.
func (s *Sequence) ScanRefs() []string {
	seen := make(map[string]bool)
	var refs []string
	forEachStep(s, func(st *Step) {
		if st.ScanConfig != "" && !seen[st.ScanConfig] {
			seen[st.ScanConfig] = true
			refs = append(refs, st.ScanConfig)
		}
	})
	return refs
}

func forEachStep(s *Sequence, fn func(*Step)) {
	for i := range s.Start.Steps {
		fn(&s.Start.Steps[i])
	}
	for li := range s.Loops {
		for i := range s.Loops[li].Steps {
			fn(&s.Loops[li].Steps[i])
		}
	}
	for i := range s.End.Steps {
		fn(&s.End.Steps[i])
	}
}
