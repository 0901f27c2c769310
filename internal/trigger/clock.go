package trigger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResolveClock turns a clock expression into the target instant, relative to
// now. Supported forms:
//
//	14:30        today at 14:30, tomorrow when already past
//	1430         same, as a four digit time
//	90s 5m 2h    a duration from now (also "min" and "std" for m and h)
//	+5           a "+" prefix without unit means minutes
//
// A bare number without unit or "+" prefix is rejected.
func ResolveClock(now time.Time, expr string) (time.Time, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	if s == "" {
		return time.Time{}, fmt.Errorf("empty clock expression")
	}

	relative := strings.HasPrefix(s, "+")
	if relative {
		s = s[1:]
	}

	if strings.Contains(s, ":") {
		return resolveWallClock(now, s, ":")
	}
	if len(s) == 4 && isDigits(s) {
		return resolveWallClock(now, s[:2]+":"+s[2:], ":")
	}

	unit := time.Duration(0)
	value := s
	switch {
	case strings.HasSuffix(s, "std"):
		unit, value = time.Hour, s[:len(s)-3]
	case strings.HasSuffix(s, "min"):
		unit, value = time.Minute, s[:len(s)-3]
	case strings.HasSuffix(s, "h"):
		unit, value = time.Hour, s[:len(s)-1]
	case strings.HasSuffix(s, "m"):
		unit, value = time.Minute, s[:len(s)-1]
	case strings.HasSuffix(s, "s"):
		unit, value = time.Second, s[:len(s)-1]
	case relative:
		unit = time.Minute
	default:
		return time.Time{}, fmt.Errorf("clock expression %q needs a unit or + prefix", expr)
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock expression %q", expr)
	}
	if f < 0 {
		return time.Time{}, fmt.Errorf("clock expression %q must be positive", expr)
	}
	return now.Add(time.Duration(f * float64(unit))), nil
}

func resolveWallClock(now time.Time, s, sep string) (time.Time, error) {
	parts := strings.SplitN(s, sep, 2)
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", s)
	}
	minute := 0
	if len(parts) > 1 && parts[1] != "" {
		minute, err = strconv.Atoi(parts[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time %q", s)
		}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("time %q out of range", s)
	}

	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
