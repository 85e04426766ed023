package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor returns true when ANSI colors should be used on stdout.
// It respects NO_COLOR, CLICOLOR_FORCE, CLICOLOR, and TTY detection.
func ShouldUseColor() bool {
	// https://no-color.org — any non-empty value disables color.
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	// CLICOLOR_FORCE=1 forces color even without a TTY.
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	// CLICOLOR=0 explicitly disables color.
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	// Default: color if stdout is a terminal.
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// PromptPassword reads a password from the terminal without echo. Falls back
// to a plain line read when stdin is not a terminal (piped input in tests and
// scripts).
func PromptPassword(prompt string) (string, error) {
	os.Stderr.WriteString(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		defer os.Stderr.WriteString("\n")
		pw, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}

	var line strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			line.WriteByte(buf[0])
		}
		if err != nil {
			break
		}
	}
	return strings.TrimRight(line.String(), "\r"), nil
}
