// Package style provides consistent terminal styling for mng's CLI output:
// named text styles (Bold/Dim/error/warning) plus the Table renderer used by
// list and gc --dry-run. Adapted from internal/style/table.go, which leaves
// Bold/Dim as given styles without defining them in the retrieved file; they
// are defined here in the same lipgloss.NewStyle() idiom the rest of the
// package (and internal/cmd/hooks_diff.go's AdaptiveColor usage) shows.
package style

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	Bold    = lipgloss.NewStyle().Bold(true)
	Dim     = lipgloss.NewStyle().Faint(true)
	Error   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#c53030", Dark: "#f07178"})
	Warning = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#b7791f", Dark: "#e2b93d"})
	Success = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2f855a", Dark: "#9ece6a"})
)

// IsTerminal reports whether fd is attached to an interactive terminal, used
// to decide whether to dim/color error output or print it plain for
// pipelines and log capture.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// RenderError formats an error line for stderr, colored with the Error style
// when stderr is a terminal and left plain otherwise so redirected output stays grep-able.
func RenderError(msg string) string {
	if IsTerminal(os.Stderr) {
		return Error.Render(msg)
	}
	return msg
}
