package prereq

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#eab308"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
)

// WriteResults prints one line per tool.
func WriteResults(w io.Writer, target string, results *CheckResults, color bool) error {
	paint := func(style lipgloss.Style, s string) string {
		if !color {
			return s
		}
		return style.Render(s)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "tool check on %s\n", target)

	for _, r := range results.Results {
		switch {
		case r.Found:
			fmt.Fprintf(&b, "%s %s  %s\n", paint(okStyle, "[OK]"), r.Tool.Name, paint(dimStyle, r.Version))
		case r.Tool.Required:
			fmt.Fprintf(&b, "%s %s  %s\n", paint(failedStyle, "[!!]"), r.Tool.Name, r.Tool.Description)
		default:
			fmt.Fprintf(&b, "%s %s  %s (optional)\n", paint(warnStyle, "[??]"), r.Tool.Name, r.Tool.Description)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
