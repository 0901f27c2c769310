package sequences

import (
	"fmt"
	"strings"
	"time"

	"github.com/fenrik/clickseq/internal/models"
)

// Describe renders a sequence as an indented phase/step listing for the
// show command.
func Describe(seq *models.Sequence) string {
	var b strings.Builder

	b.WriteString(seq.Name)
	if seq.Description != "" {
		fmt.Fprintf(&b, " - %s", seq.Description)
	}
	b.WriteString("\n")

	if seq.Cycles == 0 {
		b.WriteString("cycles: unlimited\n")
	} else {
		fmt.Fprintf(&b, "cycles: %d\n", seq.Cycles)
	}

	writePhase(&b, "start", 0, &seq.Start)
	for i := range seq.Loops {
		loop := &seq.Loops[i]
		label := loop.Name
		if label == "" {
			label = fmt.Sprintf("loop %d", i+1)
		}
		writePhase(&b, label, loop.Repetitions, loop)
	}
	writePhase(&b, "end", 0, &seq.End)

	return b.String()
}

func writePhase(b *strings.Builder, label string, reps int, phase *models.Phase) {
	if len(phase.Steps) == 0 {
		return
	}
	if reps > 1 {
		fmt.Fprintf(b, "%s (x%d):\n", label, reps)
	} else {
		fmt.Fprintf(b, "%s:\n", label)
	}
	for i := range phase.Steps {
		fmt.Fprintf(b, "  %d. %s\n", i+1, DescribeStep(&phase.Steps[i]))
	}
}

// DescribeStep renders one step on a single line.
func DescribeStep(step *models.Step) string {
	var s string
	switch step.Kind {
	case models.StepClick:
		s = "click " + step.PointID + waitSuffix(step.Wait)
	case models.StepWait:
		s = "wait " + describeWait(step.Wait)
	case models.StepKey:
		s = "key " + step.Key + waitSuffix(step.Wait)
	case models.StepScan:
		s = "scan " + step.ScanConfig
		if step.Mode != "" {
			s += fmt.Sprintf(" (mode %s)", step.Mode)
		}
	case models.StepWaitScan:
		s = "wait until scan " + step.ScanConfig
		if step.ItemFilter != "" {
			s += " item " + step.ItemFilter
		}
		if step.Polarity == models.ScanGone {
			s += " finds nothing"
		} else {
			s += " finds something"
		}
	case models.StepWaitNumber:
		s = fmt.Sprintf("wait until number in %s %s %g", step.Region, step.Comparator, step.Threshold)
		if step.ClickPointID != "" {
			s += ", then click " + step.ClickPointID
		}
	default:
		s = string(step.Kind)
	}

	if step.Else != nil {
		s += " (else " + describeElse(step.Else) + ")"
	}
	return s
}

func describeElse(action *models.ElseAction) string {
	switch action.Kind {
	case models.ElseClickPoint:
		s := "click " + action.PointID
		if action.Wait != nil && !action.Wait.Immediate() {
			s += " " + describeWait(*action.Wait)
		}
		return s
	case models.ElsePressKey:
		return "key " + action.Key
	default:
		return string(action.Kind)
	}
}

func waitSuffix(wait models.WaitSpec) string {
	if wait.Immediate() {
		return ""
	}
	return " " + describeWait(wait)
}

func describeWait(wait models.WaitSpec) string {
	switch wait.Kind {
	case models.WaitFixed:
		return "after " + shortDuration(wait.Duration)
	case models.WaitRange:
		return fmt.Sprintf("after %s..%s", shortDuration(wait.Min), shortDuration(wait.Max))
	case models.WaitPixel:
		return fmt.Sprintf("when %s %s at %s", wait.Color.Hex(), polarityVerb(wait.Polarity), wait.PointID)
	case models.WaitClock:
		return "at " + wait.Clock
	case models.WaitComposite:
		return fmt.Sprintf("after %s, then when %s %s at %s",
			shortDuration(wait.Duration), wait.Color.Hex(), polarityVerb(wait.Polarity), wait.PointID)
	default:
		return string(wait.Kind)
	}
}

func polarityVerb(p models.PixelPolarity) string {
	if p == models.PixelGone {
		return "leaves"
	}
	return "appears"
}

func shortDuration(d time.Duration) string {
	s := d.String()
	// time.Duration renders 60s as "1m0s" and 1h as "1h0m0s"; drop the
	// zero-valued trailing units.
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}
