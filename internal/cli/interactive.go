// Package cli provides helpers for interactive mode detection.
package cli

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// IsNonInteractive reports whether prompts should be skipped and defaults used.
func IsNonInteractive() bool {
	if nonInteractive {
		return true
	}
	if _, ok := os.LookupEnv("CLICKSEQ_NON_INTERACTIVE"); ok {
		return true
	}
	return !hasTTY()
}

// IsInteractive reports whether the session can prompt for user input.
func IsInteractive() bool {
	return !IsNonInteractive()
}

// SkipConfirmation reports whether confirmation prompts resolve to yes
// without asking.
func SkipConfirmation() bool {
	return assumeYes || IsNonInteractive()
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func confirm(prompt string) bool {
	if SkipConfirmation() {
		return true
	}
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)

	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
