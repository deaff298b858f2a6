package ui

import (
	"fmt"

	"github.com/alfredjeanlab/discovery/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorFail   = 203 // red
	colorWarn   = 179 // amber
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return render(colorCmd, s) }

// RenderState colors an outcome state: green for success, red for
// failure, amber while loading.
func RenderState(state model.OutcomeState) string {
	switch state {
	case model.StateSuccess:
		return render(colorOK, string(state))
	case model.StateFailure:
		return render(colorFail, string(state))
	case model.StateLoading:
		return render(colorWarn, string(state))
	}
	return RenderMuted("idle")
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
