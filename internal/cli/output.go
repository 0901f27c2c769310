package cli

import (
	"encoding/json"
	"io"
	"os"
	"reflect"
)

// ANSI colors for human-readable output. colorize is a no-op when stdout is
// not a terminal or NO_COLOR is set.
const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
)

// IsJSONOutput reports whether --json was requested.
func IsJSONOutput() bool {
	return jsonOutput
}

// IsJSONLOutput reports whether --jsonl was requested.
func IsJSONLOutput() bool {
	return jsonlOutput
}

// WriteOutput renders v in the selected machine-readable mode: indented
// JSON for --json, one compact JSON object per line for --jsonl (slices are
// emitted element by element).
func WriteOutput(w io.Writer, v any) error {
	if IsJSONLOutput() {
		return writeJSONLines(w, v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONLines(w io.Writer, v any) error {
	enc := json.NewEncoder(w)

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.IsValid() && rv.Kind() == reflect.Slice {
		for i := 0; i < rv.Len(); i++ {
			if err := enc.Encode(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	}
	return enc.Encode(v)
}

func colorize(text, color string) string {
	if color == "" || !colorEnabled() {
		return text
	}
	return color + text + colorReset
}

func colorEnabled() bool {
	if IsJSONOutput() || IsJSONLOutput() {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return hasTTY()
}

// shortID abbreviates a UUID for table output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
