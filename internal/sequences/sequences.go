// Package sequences loads sequence definitions from YAML and compiles them
// into executable models.Sequence values. The on-disk schema uses duration
// strings ("500ms", "2s") and hex colors; compilation normalizes both and
// rejects anything the engine could not run.
package sequences

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fenrik/clickseq/internal/input"
	"github.com/fenrik/clickseq/internal/models"
	"github.com/fenrik/clickseq/internal/trigger"
)

// sequenceFile is the on-disk shape of one sequence.
type sequenceFile struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Cycles      int        `yaml:"cycles"`
	Start       []stepSpec `yaml:"start"`
	Loops       []loopSpec `yaml:"loops"`
	End         []stepSpec `yaml:"end"`
}

type loopSpec struct {
	Name        string     `yaml:"name"`
	Repetitions int        `yaml:"repetitions"`
	Steps       []stepSpec `yaml:"steps"`
}

type stepSpec struct {
	Type       string      `yaml:"type"`
	Point      string      `yaml:"point"`
	Key        string      `yaml:"key"`
	Wait       *waitSpec   `yaml:"wait"`
	Scan       string      `yaml:"scan"`
	Mode       string      `yaml:"mode"`
	Item       string      `yaml:"item"`
	Polarity   string      `yaml:"polarity"`
	Region     *regionSpec `yaml:"region"`
	Comparator string      `yaml:"comparator"`
	Threshold  float64     `yaml:"threshold"`
	ClickPoint string      `yaml:"click_point"`
	Else       *elseSpec   `yaml:"else"`
}

type waitSpec struct {
	Type     string `yaml:"type"`
	Duration string `yaml:"duration"`
	Min      string `yaml:"min"`
	Max      string `yaml:"max"`
	Point    string `yaml:"point"`
	Color    string `yaml:"color"`
	Polarity string `yaml:"polarity"`
	Clock    string `yaml:"clock"`
}

type elseSpec struct {
	Action string    `yaml:"action"`
	Point  string    `yaml:"point"`
	Wait   *waitSpec `yaml:"wait"`
	Key    string    `yaml:"key"`
}

type regionSpec struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	W int `yaml:"w"`
	H int `yaml:"h"`
}

func parseSequence(data []byte) (*models.Sequence, error) {
	var file sequenceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	seq := &models.Sequence{
		Name:        strings.TrimSpace(file.Name),
		Description: strings.TrimSpace(file.Description),
		Cycles:      file.Cycles,
		Start:       models.Phase{Kind: models.PhaseStart},
		End:         models.Phase{Kind: models.PhaseEnd},
	}
	if seq.Name == "" {
		return nil, fmt.Errorf("sequence name is required")
	}
	if seq.Cycles < 0 {
		return nil, fmt.Errorf("cycles must be non-negative")
	}

	var err error
	if seq.Start.Steps, err = compileSteps(file.Start, "start"); err != nil {
		return nil, err
	}
	for i, loop := range file.Loops {
		phase := models.Phase{
			Kind:        models.PhaseLoop,
			Name:        strings.TrimSpace(loop.Name),
			Repetitions: loop.Repetitions,
		}
		if phase.Repetitions == 0 {
			phase.Repetitions = 1
		}
		label := phase.Name
		if label == "" {
			label = fmt.Sprintf("loop %d", i+1)
		}
		if phase.Steps, err = compileSteps(loop.Steps, label); err != nil {
			return nil, err
		}
		if len(phase.Steps) == 0 {
			return nil, fmt.Errorf("%s: loop needs at least one step", label)
		}
		seq.Loops = append(seq.Loops, phase)
	}
	if seq.End.Steps, err = compileSteps(file.End, "end"); err != nil {
		return nil, err
	}

	if len(seq.Start.Steps) == 0 && len(seq.Loops) == 0 && len(seq.End.Steps) == 0 {
		return nil, fmt.Errorf("sequence has no steps")
	}

	if err := seq.Validate(); err != nil {
		return nil, err
	}
	return seq, nil
}

func compileSteps(specs []stepSpec, phase string) ([]models.Step, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	steps := make([]models.Step, 0, len(specs))
	for i := range specs {
		step, err := compileStep(&specs[i])
		if err != nil {
			return nil, fmt.Errorf("%s step %d: %w", phase, i+1, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func compileStep(spec *stepSpec) (models.Step, error) {
	kind := models.StepKind(strings.ToLower(strings.TrimSpace(spec.Type)))
	step := models.Step{Kind: kind}

	wait, err := compileWait(spec.Wait)
	if err != nil {
		return step, err
	}
	step.Wait = wait

	switch kind {
	case models.StepClick:
		step.PointID = strings.TrimSpace(spec.Point)
		if step.PointID == "" {
			return step, fmt.Errorf("click step requires a point")
		}

	case models.StepWait:
		if step.Wait.Immediate() {
			return step, fmt.Errorf("wait step requires a wait spec")
		}

	case models.StepKey:
		key, err := input.NormalizeKey(spec.Key)
		if err != nil {
			return step, err
		}
		step.Key = key

	case models.StepScan:
		step.ScanConfig = strings.TrimSpace(spec.Scan)
		if step.ScanConfig == "" {
			return step, fmt.Errorf("scan step requires a scan config name")
		}
		if spec.Mode != "" {
			mode := models.ScanMode(strings.ToLower(strings.TrimSpace(spec.Mode)))
			if !mode.Valid() {
				return step, fmt.Errorf("unknown scan mode %q", spec.Mode)
			}
			step.Mode = mode
		}

	case models.StepWaitScan:
		step.ScanConfig = strings.TrimSpace(spec.Scan)
		if step.ScanConfig == "" {
			return step, fmt.Errorf("wait_scan step requires a scan config name")
		}
		step.ItemFilter = strings.TrimSpace(spec.Item)
		step.Polarity, err = compileScanPolarity(spec.Polarity)
		if err != nil {
			return step, err
		}

	case models.StepWaitNumber:
		if spec.Region == nil {
			return step, fmt.Errorf("wait_number step requires a region")
		}
		region := models.Region{X: spec.Region.X, Y: spec.Region.Y, W: spec.Region.W, H: spec.Region.H}
		if region.Empty() {
			return step, fmt.Errorf("wait_number region must have area")
		}
		step.Region = &region
		cmp := models.Comparator(strings.TrimSpace(spec.Comparator))
		if !cmp.Valid() {
			return step, fmt.Errorf("unknown comparator %q", spec.Comparator)
		}
		step.Comparator = cmp
		step.Threshold = spec.Threshold
		step.ClickPointID = strings.TrimSpace(spec.ClickPoint)

	default:
		return step, fmt.Errorf("unknown step type %q", spec.Type)
	}

	if spec.Else != nil {
		els, err := compileElse(spec.Else)
		if err != nil {
			return step, err
		}
		step.Else = els
	}
	return step, nil
}

func compileWait(spec *waitSpec) (models.WaitSpec, error) {
	if spec == nil {
		return models.WaitSpec{}, nil
	}
	kind := models.WaitKind(strings.ToLower(strings.TrimSpace(spec.Type)))
	if kind == "" {
		kind = inferWaitKind(spec)
	}
	wait := models.WaitSpec{Kind: kind}

	switch kind {
	case models.WaitImmediate:

	case models.WaitFixed:
		d, err := parseDuration(spec.Duration, "duration")
		if err != nil {
			return wait, err
		}
		wait.Duration = d

	case models.WaitRange:
		lo, err := parseDuration(spec.Min, "min")
		if err != nil {
			return wait, err
		}
		hi, err := parseDuration(spec.Max, "max")
		if err != nil {
			return wait, err
		}
		if hi < lo {
			return wait, fmt.Errorf("range wait needs min <= max")
		}
		wait.Min, wait.Max = lo, hi

	case models.WaitPixel:
		if err := fillPixel(&wait, spec); err != nil {
			return wait, err
		}

	case models.WaitClock:
		wait.Clock = strings.TrimSpace(spec.Clock)
		if wait.Clock == "" {
			return wait, fmt.Errorf("clock wait requires a clock expression")
		}
		// The instant is resolved when the step runs; parse now so a
		// malformed expression cannot surface mid-run.
		if _, err := trigger.ResolveClock(time.Now(), wait.Clock); err != nil {
			return wait, err
		}

	case models.WaitComposite:
		d, err := parseDuration(spec.Duration, "duration")
		if err != nil {
			return wait, err
		}
		wait.Duration = d
		if err := fillPixel(&wait, spec); err != nil {
			return wait, err
		}

	default:
		return wait, fmt.Errorf("unknown wait type %q", spec.Type)
	}
	return wait, nil
}

// inferWaitKind fills in the wait type when the file omits it. A point and a
// duration together mean a composite wait, a point alone a pixel wait, min or
// max a range, a bare duration a fixed wait.
func inferWaitKind(spec *waitSpec) models.WaitKind {
	switch {
	case spec.Point != "" && spec.Duration != "":
		return models.WaitComposite
	case spec.Point != "":
		return models.WaitPixel
	case spec.Min != "" || spec.Max != "":
		return models.WaitRange
	case spec.Duration != "":
		return models.WaitFixed
	case spec.Clock != "":
		return models.WaitClock
	}
	return models.WaitImmediate
}

func fillPixel(wait *models.WaitSpec, spec *waitSpec) error {
	wait.PointID = strings.TrimSpace(spec.Point)
	if wait.PointID == "" {
		return fmt.Errorf("%s wait requires a point", wait.Kind)
	}
	c, err := models.ParseHexColor(spec.Color)
	if err != nil {
		return err
	}
	wait.Color = c

	polarity := models.PixelPolarity(strings.ToLower(strings.TrimSpace(spec.Polarity)))
	if polarity == "" {
		polarity = models.PixelAppear
	}
	if polarity != models.PixelAppear && polarity != models.PixelGone {
		return fmt.Errorf("unknown polarity %q", spec.Polarity)
	}
	wait.Polarity = polarity
	return nil
}

func compileScanPolarity(raw string) (models.ScanPolarity, error) {
	polarity := models.ScanPolarity(strings.ToLower(strings.TrimSpace(raw)))
	if polarity == "" {
		return models.ScanAppear, nil
	}
	if polarity != models.ScanAppear && polarity != models.ScanGone {
		return "", fmt.Errorf("unknown polarity %q", raw)
	}
	return polarity, nil
}

func compileElse(spec *elseSpec) (*models.ElseAction, error) {
	kind := models.ElseKind(strings.ToLower(strings.TrimSpace(spec.Action)))
	act := &models.ElseAction{Kind: kind}

	switch kind {
	case models.ElseSkip, models.ElseRestart:

	case models.ElseClickPoint:
		act.PointID = strings.TrimSpace(spec.Point)
		if act.PointID == "" {
			return nil, fmt.Errorf("click_point fallback requires a point")
		}
		if spec.Wait != nil {
			wait, err := compileWait(spec.Wait)
			if err != nil {
				return nil, err
			}
			if !wait.Immediate() {
				act.Wait = &wait
			}
		}

	case models.ElsePressKey:
		key, err := input.NormalizeKey(spec.Key)
		if err != nil {
			return nil, err
		}
		act.Key = key

	default:
		return nil, fmt.Errorf("unknown fallback action %q", spec.Action)
	}
	return act, nil
}

func parseDuration(raw, field string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must be non-negative", field)
	}
	return d, nil
}
