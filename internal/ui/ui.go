// package ui contains terminal styling for command output
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var styles = NewPalette("#FA2D48", "#1DB954", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// Title styles a section heading.
func Title(s string) string { return styles.title.Render(s) }

// OK styles a success message.
func OK(s string) string { return styles.ok.Render(s) }

// Err styles an error message.
func Err(s string) string { return styles.err.Render(s) }

// Warn styles a warning.
func Warn(s string) string { return styles.warn.Render(s) }

// Help styles secondary guidance text.
func Help(s string) string { return styles.help.Render(s) }
