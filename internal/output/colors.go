package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for the text report.
type ColorScheme struct {
	Header   *color.Color
	Name     *color.Color
	StatusOK *color.Color
	Failed   *color.Color
	Warn     *color.Color
	Muted    *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Header:   color.New(color.Bold),
		Name:     color.New(color.FgCyan),
		StatusOK: color.New(color.FgGreen, color.Bold),
		Failed:   color.New(color.FgRed, color.Bold),
		Warn:     color.New(color.FgYellow),
		Muted:    color.New(color.Faint),
	}
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	scheme.Header.DisableColor()
	scheme.Name.DisableColor()
	scheme.StatusOK.DisableColor()
	scheme.Failed.DisableColor()
	scheme.Warn.DisableColor()
	scheme.Muted.DisableColor()
	return scheme
}
