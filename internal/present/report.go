package present

import (
	"fmt"
	"text/tabwriter"

	"github.com/amirbrooks/mdv/internal/collection"
)

// Count is one row of a report table.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Report summarizes a vault.
type Report struct {
	Documents int     `json:"documents"`
	Types     []Count `json:"types"`
	Tasks     []Count `json:"tasks"`
}

func (p *Presenter) RenderReport(rep Report, asJSON bool) error {
	if asJSON {
		if rep.Types == nil {
			rep.Types = []Count{}
		}
		if rep.Tasks == nil {
			rep.Tasks = []Count{}
		}
		return p.JSON(rep)
	}
	if rep.Documents == 0 {
		fmt.Fprintln(p.Out, "No documents found.")
		fmt.Fprintln(p.Out, "Total: 0")
		return nil
	}

	tw := tabwriter.NewWriter(p.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tDOCUMENTS")
	for _, c := range rep.Types {
		fmt.Fprintf(tw, "%s\t%d\n", c.Name, c.Count)
	}
	if len(rep.Tasks) > 0 {
		fmt.Fprintln(tw, "\t")
		fmt.Fprintln(tw, "TASK STATUS\tTASKS")
		for _, c := range rep.Tasks {
			fmt.Fprintf(tw, "%s\t%d\n", c.Name, c.Count)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(p.Out, "Total: %d\n", rep.Documents)
	return nil
}

// RenderValidation prints a validation report. Issues and warnings are listed
// one per line, followed by a counts line.
func (p *Presenter) RenderValidation(rep collection.ValidationReport, asJSON bool) error {
	if asJSON {
		return p.JSON(rep)
	}
	for _, issue := range rep.Issues {
		fmt.Fprintf(p.Out, "✗ %s\n", problemLine(issue))
	}
	for _, w := range rep.Warnings {
		fmt.Fprintf(p.Out, "⚠ %s\n", problemLine(w))
	}
	if len(rep.Issues) == 0 && len(rep.Warnings) == 0 {
		fmt.Fprintf(p.Out, "✓ Vault is valid (%s)\n", plural(rep.Checked, "document"))
		return nil
	}
	fmt.Fprintf(p.Out, "\nChecked %s %s\n", plural(rep.Checked, "document"),
		p.style.Muted(IssueWarningCounts(len(rep.Issues), len(rep.Warnings))))
	return nil
}

func problemLine(pr collection.Problem) string {
	if pr.Path == "" {
		return pr.Message
	}
	return pr.Path + ": " + pr.Message
}

// IssueWarningCounts formats "(2 issues, 1 warning)", leaving out a zero side.
func IssueWarningCounts(issues, warnings int) string {
	switch {
	case issues > 0 && warnings > 0:
		return fmt.Sprintf("(%s, %s)", plural(issues, "issue"), plural(warnings, "warning"))
	case issues > 0:
		return "(" + plural(issues, "issue") + ")"
	default:
		return "(" + plural(warnings, "warning") + ")"
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
