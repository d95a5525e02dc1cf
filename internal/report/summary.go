package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorDim    = lipgloss.Color("#6b7280")
	colorWhite  = lipgloss.Color("#f9fafb")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	okStyle      = lipgloss.NewStyle().Foreground(colorGreen)
	failedStyle  = lipgloss.NewStyle().Foreground(colorRed)
	warningStyle = lipgloss.NewStyle().Foreground(colorYellow)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
)

const (
	checkMark = "[OK]"
	crossMark = "[!!]"
	warnMark  = "[??]"
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type painter func(style lipgloss.Style, s string) string

func plain(_ lipgloss.Style, s string) string { return s }

func styled(style lipgloss.Style, s string) string { return style.Render(s) }

// WriteSummary prints one line per host followed by totals. Colors are used
// only when color is set.
func WriteSummary(w io.Writer, r *Report, color bool) error {
	paint := painter(plain)
	if color {
		paint = styled
	}

	var b strings.Builder

	title := fmt.Sprintf("labkick run %s (%s)", r.RunID, r.Platform)
	b.WriteString(paint(titleStyle, title))
	b.WriteByte('\n')
	if r.Label != "" {
		b.WriteString(paint(dimStyle, "volume label "+r.Label))
		b.WriteByte('\n')
	}

	if r.StagingError != "" {
		fmt.Fprintf(&b, "%s staging: %s\n", paint(warningStyle, warnMark), r.StagingError)
	}
	if r.DescriptorError != "" {
		fmt.Fprintf(&b, "%s boot descriptor: %s\n", paint(warningStyle, warnMark), r.DescriptorError)
	}

	nameWidth := 0
	for _, h := range r.Hosts {
		nameWidth = max(nameWidth, len(h.Name))
	}

	for _, h := range r.Hosts {
		name := h.Name + strings.Repeat(" ", nameWidth-len(h.Name))
		if h.Status == StatusFailed {
			fmt.Fprintf(&b, "%s %s  %s\n", paint(failedStyle, crossMark), name, h.Error)
			continue
		}

		detail := h.Image
		if h.ImageSize != "" {
			detail += "  " + h.ImageSize
		}
		fmt.Fprintf(&b, "%s %s  %s  %s\n", paint(okStyle, checkMark), name, detail, paint(dimStyle, h.Duration))
	}

	totals := fmt.Sprintf("%d hosts, %d failed, %s (exit %d) in %s",
		len(r.Hosts), r.Failed(), exitLabel(r.ExitCode), r.ExitCode, r.Duration)
	if r.ExitCode == 0 {
		b.WriteString(paint(okStyle, totals))
	} else {
		b.WriteString(paint(failedStyle, totals))
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}
