package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/ivoronin/dupevid/internal/grouper"
	"github.com/ivoronin/dupevid/internal/types"
)

// Printer renders human-readable scan output.
type Printer struct {
	w     io.Writer
	style styles
}

// NewPrinter creates a Printer. Colors are used only when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, style: newStyles(lipgloss.NewRenderer(w))}
}

// Discovered prints the enumeration result.
func (p *Printer) Discovered(files int64) {
	p.printf("Found %s video files to analyze\n", p.style.count.Render(humanize.Comma(files)))
}

// Missing prints a skipped root.
func (p *Printer) Missing(dir string) {
	p.printf("%s\n", p.style.warning.Render(fmt.Sprintf("Directory %s does not exist", dir)))
}

// Cancelled prints a partial-results notice.
func (p *Printer) Cancelled() {
	p.printf("%s\n", p.style.warning.Render("Scan cancelled, results are partial"))
}

// Summary prints the group count, reclaimable space, the result file and
// every group with its members.
func (p *Printer) Summary(groups types.DuplicateGroups, output string) {
	p.printf("Found %s groups of duplicate files\n", p.style.count.Render(humanize.Comma(int64(groups.Len()))))
	if groups.Len() > 0 {
		p.printf("%s\n", p.style.muted.Render(grouper.Summarize(groups).String()))
	}
	if output != "" {
		p.printf("%s\n", p.style.success.Render("Results saved to "+output))
	}

	for _, g := range groups.Items() {
		p.printf("\n%s\n", p.style.title.Render(fmt.Sprintf("Duplicate files with hash %s:", g.Digest)))
		for _, path := range g.Paths() {
			p.printf("  - %s\n", p.style.path.Render(path))
		}
	}
}

func (p *Printer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format, args...)
}
