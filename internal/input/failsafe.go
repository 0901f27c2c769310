package input

// FailSafe detects the abort gesture: parking the pointer in the top-left
// corner. The engine samples it before every blocking operation and treats a
// hit exactly like a stop signal.
type FailSafe struct {
	// Enabled turns the check on. A disabled fail-safe never triggers.
	Enabled bool

	// Corner is the edge length in pixels of the trigger square at the
	// screen origin.
	Corner int

	// Location returns the pointer position. Defaults to the injector's
	// PointerLocation; tests substitute their own.
	Location func() (int, int)
}

// NewFailSafe builds a fail-safe reading the pointer from the injector.
func NewFailSafe(enabled bool, corner int, inj Injector) *FailSafe {
	return &FailSafe{
		Enabled:  enabled,
		Corner:   corner,
		Location: inj.PointerLocation,
	}
}

// Triggered reports whether the pointer currently rests in the corner.
func (f *FailSafe) Triggered() bool {
	if f == nil || !f.Enabled || f.Location == nil {
		return false
	}
	x, y := f.Location()
	return x <= f.Corner && y <= f.Corner
}
