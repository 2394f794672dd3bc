// Package styles holds the colours shared by the qemutrace report renderer and
// the history navigator.
package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

var (
	MenuBar = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1)

	Title = lipgloss.NewStyle().
		Foreground(charmtone.Zest).
		Background(charmtone.Charple).
		Bold(true).
		Padding(0, 1)

	Spinner = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	Warning = lipgloss.NewStyle().Foreground(charmtone.Coral).Bold(true)
)
