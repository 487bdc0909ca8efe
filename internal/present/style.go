package present

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// palette applies styles only when the output is a terminal. Piped output stays
// byte-for-byte plain.
type palette struct {
	enabled bool
	accent  lipgloss.Style
	muted   lipgloss.Style
	bold    lipgloss.Style
}

func newPalette(w io.Writer) palette {
	if !isTerminal(w) {
		return palette{}
	}
	r := lipgloss.NewRenderer(w)
	return palette{
		enabled: true,
		accent:  r.NewStyle().Foreground(lipgloss.Color("#A78BFA")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#6C7086")),
		bold:    r.NewStyle().Bold(true),
	}
}

func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p palette) Accent(s string) string { return p.paint(p.accent, s) }
func (p palette) Muted(s string) string  { return p.paint(p.muted, s) }
func (p palette) Bold(s string) string   { return p.paint(p.bold, s) }

func (p palette) paint(st lipgloss.Style, s string) string {
	if !p.enabled || s == "" {
		return s
	}
	return st.Render(s)
}
