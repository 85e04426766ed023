package ui

import "fmt"

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue, usernames
	colorMuted  = 245 // medium gray, timestamps and system lines
	colorOwn    = 114 // green, the user's own messages
)

var noColor bool

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorAccent, s)
}

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorMuted, s)
}

// RenderOwn returns s in the color used for the user's own name.
func RenderOwn(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorOwn, s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
