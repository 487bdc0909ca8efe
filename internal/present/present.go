// Package present renders collection responses for the terminal or as JSON.
package present

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/amirbrooks/mdv/internal/collection"
	"github.com/amirbrooks/mdv/internal/reltime"
)

type Mode int

const (
	ModeTask Mode = iota
	ModeGeneric
	ModeInbox
	ModeJSON
)

const (
	maxFields      = 5
	genericPreview = 60
	inboxPreview   = 50
	idPrefix       = 8
	tagsIndent     = "       "
)

// Presenter writes rendered output to Out. Now is used for relative times.
type Presenter struct {
	Out io.Writer
	Now func() time.Time

	style palette
}

func New(w io.Writer, now func() time.Time) *Presenter {
	if now == nil {
		now = time.Now
	}
	return &Presenter{Out: w, Now: now, style: newPalette(w)}
}

// Render prints resp in the given mode, followed by a total line in text modes.
func (p *Presenter) Render(resp collection.QueryResponse, mode Mode) error {
	if mode == ModeJSON {
		return p.JSON(resp)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(p.Out, emptyMessage(mode))
		fmt.Fprintln(p.Out, "Total: 0")
		return nil
	}
	for _, doc := range resp.Results {
		switch mode {
		case ModeTask:
			p.task(doc)
		case ModeInbox:
			p.inbox(doc)
		default:
			p.generic(doc)
		}
	}
	fmt.Fprintln(p.Out, p.style.Muted(Summary(resp)))
	return nil
}

// RenderError reports err as a JSON error response. Text modes print nothing;
// the caller writes the diagnostic to stderr.
func (p *Presenter) RenderError(err error, mode Mode) error {
	if mode != ModeJSON || err == nil {
		return nil
	}
	return p.JSON(collection.ErrorResponse(err))
}

// RenderCreated prints "<verb>: <path>".
func (p *Presenter) RenderCreated(verb, relPath string) {
	fmt.Fprintf(p.Out, "%s: %s\n", verb, p.style.Accent(relPath))
}

// JSON writes v with two-space indentation.
func (p *Presenter) JSON(v any) error {
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Summary is the closing count line of a text render.
func Summary(resp collection.QueryResponse) string {
	n := len(resp.Results)
	if resp.Meta != nil && resp.Meta.HasMore {
		return fmt.Sprintf("Total: %d of %d", n, resp.Meta.TotalCount)
	}
	return fmt.Sprintf("Total: %d", n)
}

func emptyMessage(mode Mode) string {
	switch mode {
	case ModeTask:
		return "No matching tasks found."
	case ModeInbox:
		return "No unprocessed notes in inbox."
	default:
		return "No documents found."
	}
}

func (p *Presenter) task(doc collection.Document) {
	priority := "?"
	if v := doc.Frontmatter.Get("priority"); !v.IsAbsent() && v.Display() != "" {
		priority = v.Display()
	}
	status := "unknown"
	if v := doc.Frontmatter.Get("status"); !v.IsAbsent() && v.Display() != "" {
		status = v.Display()
	}
	fmt.Fprintf(p.Out, "[P%s] [%s] %s\n", priority, status, p.style.Bold(doc.Title()))
	if tags, ok := doc.Frontmatter.Get("tags").AsList(); ok && len(tags) > 0 {
		fmt.Fprintf(p.Out, "%sTags: %s\n", tagsIndent, p.style.Muted(strings.Join(tags, ", ")))
	} else if s, ok := doc.Frontmatter.Get("tags").AsString(); ok && strings.TrimSpace(s) != "" {
		fmt.Fprintf(p.Out, "%sTags: %s\n", tagsIndent, p.style.Muted(s))
	}
}

func (p *Presenter) generic(doc collection.Document) {
	types := "untyped"
	if len(doc.Types) > 0 {
		types = strings.Join(doc.Types, ", ")
	}
	fmt.Fprintf(p.Out, "%s (%s)\n", p.style.Bold(doc.Title()), types)
	fmt.Fprintf(p.Out, "  Path: %s\n", p.style.Accent(doc.Path))

	shown := 0
	for _, key := range doc.Frontmatter.Keys() {
		if key == "title" || key == "type" {
			continue
		}
		if shown == maxFields {
			break
		}
		fmt.Fprintf(p.Out, "  %s: %s\n", key, doc.Frontmatter[key].Display())
		shown++
	}
	if doc.Body != nil {
		if line := firstLine(*doc.Body); line != "" {
			fmt.Fprintf(p.Out, "  %s\n", p.style.Muted(Truncate(line, genericPreview)))
		}
	}
	fmt.Fprintln(p.Out)
}

func (p *Presenter) inbox(doc collection.Document) {
	when := "?"
	if s, ok := doc.Frontmatter.Get("captured").AsString(); ok {
		if t, ok := reltime.Parse(s); ok {
			when = reltime.Format(t, p.Now())
		}
	}
	id, _ := doc.Frontmatter.Get("id").AsString()
	if id == "" {
		id = strings.TrimSuffix(path.Base(doc.Path), ".md")
	}
	preview := ""
	if doc.Body != nil {
		preview = firstLine(*doc.Body)
	}
	if preview == "" {
		preview = doc.Title()
	}
	fmt.Fprintf(p.Out, "[%s] %s: %s\n", p.style.Muted(when), p.style.Accent(prefix(id, idPrefix)), Truncate(preview, inboxPreview))
	if s, ok := doc.Frontmatter.Get("context").AsString(); ok && s != "" {
		fmt.Fprintf(p.Out, "    Context: %s\n", s)
	}
	if s, ok := doc.Frontmatter.Get("source").AsString(); ok && s != "" {
		fmt.Fprintf(p.Out, "    Source: %s\n", s)
	}
}

// Truncate shortens s to max runes, appending "..." when anything was cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// firstLine returns the first non-blank line of body, trimmed.
func firstLine(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
