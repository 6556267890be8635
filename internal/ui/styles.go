package ui

import (
	"fmt"
	"strconv"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 214 // orange
	colorFail   = 203 // red
)

var noColor bool

func render(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return render(colorCmd, s) }

func RenderOK(s string) string   { return render(colorOK, s) }
func RenderWarn(s string) string { return render(colorWarn, s) }
func RenderFail(s string) string { return render(colorFail, s) }

// RenderUsage colors a used/limit pair by consumption: green below 80%,
// orange below 100%, red at or over the limit. Values that do not parse as
// numbers are returned unstyled.
func RenderUsage(used, limit string) string {
	s := used + "/" + limit
	u, err1 := strconv.ParseFloat(used, 64)
	l, err2 := strconv.ParseFloat(limit, 64)
	if err1 != nil || err2 != nil || l <= 0 {
		return s
	}
	switch ratio := u / l; {
	case ratio >= 1:
		return RenderFail(s)
	case ratio >= 0.8:
		return RenderWarn(s)
	default:
		return RenderOK(s)
	}
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
