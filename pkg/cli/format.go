// Package cli provides terminal formatting for newtrace progress lines and
// tables.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR env var is set (per no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

const reset = "\033[0m"

// paint wraps s in the ANSI sequence code, or returns s when color is off.
func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + reset
}

// Green marks an interface that carries the target.
func Green(s string) string { return paint("\033[32m", s) }

// Yellow marks degraded results (notes, unknown counters).
func Yellow(s string) string { return paint("\033[33m", s) }

// Bold highlights the target in headers.
func Bold(s string) string { return paint("\033[1m", s) }

// Dim de-emphasizes secondary detail such as member counts.
func Dim(s string) string { return paint("\033[2m", s) }

// DotPad pads name with dots to the given width, for aligned hop lines.
// Example: DotPad("hop 0", 12) → "hop 0 ......"
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	return name + " " + strings.Repeat(".", width-len(name)-1)
}
