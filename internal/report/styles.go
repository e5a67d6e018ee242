package report

import "github.com/charmbracelet/lipgloss"

// Color constants using ANSI 256-color palette.
const (
	// ColorPrimary is used for headings and counts (bright blue).
	ColorPrimary = lipgloss.Color("39")

	// ColorSuccess is used for completion messages (green).
	ColorSuccess = lipgloss.Color("42")

	// ColorWarning is used for partial-result notices (orange/yellow).
	ColorWarning = lipgloss.Color("214")

	// ColorMuted is used for digests and secondary text (gray).
	ColorMuted = lipgloss.Color("245")
)

// styles holds renderer-bound styles so color detection follows the
// destination writer rather than os.Stdout.
type styles struct {
	title   lipgloss.Style
	count   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	muted   lipgloss.Style
	path    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(ColorPrimary),
		count:   r.NewStyle().Bold(true),
		success: r.NewStyle().Foreground(ColorSuccess),
		warning: r.NewStyle().Foreground(ColorWarning),
		muted:   r.NewStyle().Foreground(ColorMuted),
		path:    r.NewStyle().Foreground(lipgloss.Color("255")),
	}
}
