package present

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirbrooks/mdv/internal/collection"
	"github.com/amirbrooks/mdv/internal/frontmatter"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestPresenter() (*Presenter, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(&buf, func() time.Time { return fixedNow }), &buf
}

func strp(s string) *string { return &s }

func TestRenderTaskMode(t *testing.T) {
	p, buf := newTestPresenter()
	resp := collection.QueryResponse{Results: []collection.Document{
		{
			Path:  "tasks/fix-bug.md",
			Types: []string{"task"},
			Frontmatter: frontmatter.Map{
				"title":    frontmatter.String("Fix bug"),
				"priority": frontmatter.Int(1),
				"status":   frontmatter.String("open"),
				"tags":     frontmatter.List([]string{"work", "urgent"}),
			},
		},
		{Path: "tasks/bare.md", Types: []string{"task"}, Frontmatter: frontmatter.Map{}},
	}}
	require.NoError(t, p.Render(resp, ModeTask))
	assert.Equal(t, "[P1] [open] Fix bug\n"+
		"       Tags: work, urgent\n"+
		"[P?] [unknown] tasks/bare.md\n"+
		"Total: 2\n", buf.String())
}

func TestRenderGenericMode(t *testing.T) {
	p, buf := newTestPresenter()
	long := strings.Repeat("x", 61)
	resp := collection.QueryResponse{
		Results: []collection.Document{{
			Path:  "notes/plan.md",
			Types: []string{"note"},
			Frontmatter: frontmatter.Map{
				"title": frontmatter.String("Plan"),
				"type":  frontmatter.String("note"),
				"a":     frontmatter.String("1"),
				"b":     frontmatter.List([]string{"x", "y"}),
				"c":     frontmatter.Bool(true),
				"d":     frontmatter.Number(2.5),
				"e":     frontmatter.String("5"),
				"f":     frontmatter.String("hidden"),
			},
			Body: strp("\n" + long + "\nsecond"),
		}, {
			Path: "loose.md",
		}},
		Meta: &collection.Meta{TotalCount: 7, HasMore: true},
	}
	require.NoError(t, p.Render(resp, ModeGeneric))
	assert.Equal(t, "Plan (note)\n"+
		"  Path: notes/plan.md\n"+
		"  a: 1\n"+
		"  b: x, y\n"+
		"  c: true\n"+
		"  d: 2.5\n"+
		"  e: 5\n"+
		"  "+strings.Repeat("x", 60)+"...\n"+
		"\n"+
		"loose.md (untyped)\n"+
		"  Path: loose.md\n"+
		"\n"+
		"Total: 2 of 7\n", buf.String())
}

func TestRenderGenericPreviewAtLimitIsNotTruncated(t *testing.T) {
	p, buf := newTestPresenter()
	exact := strings.Repeat("é", 60)
	resp := collection.QueryResponse{Results: []collection.Document{{Path: "a.md", Body: strp(exact)}}}
	require.NoError(t, p.Render(resp, ModeGeneric))
	assert.Contains(t, buf.String(), "  "+exact+"\n")
	assert.NotContains(t, buf.String(), "...")
}

func TestRenderInboxMode(t *testing.T) {
	p, buf := newTestPresenter()
	resp := collection.QueryResponse{Results: []collection.Document{
		{
			Path:  "inbox/01j0abcdefgh.md",
			Types: []string{"fleeting"},
			Frontmatter: frontmatter.Map{
				"id":       frontmatter.String("01J0ABCDEFGHJKMN"),
				"captured": frontmatter.String("2024-06-15T11:55:00.000Z"),
				"context":  frontmatter.String("Testing CLI"),
				"source":   frontmatter.String("thought"),
			},
			Body: strp(strings.Repeat("a", 51)),
		},
		{
			Path:  "inbox/old.md",
			Types: []string{"fleeting"},
			Frontmatter: frontmatter.Map{
				"id":       frontmatter.String("short"),
				"captured": frontmatter.String("2024-06-01T09:00:00Z"),
			},
			Body: strp("Old idea"),
		},
	}}
	require.NoError(t, p.Render(resp, ModeInbox))
	assert.Equal(t, "[5m ago] 01J0ABCD: "+strings.Repeat("a", 50)+"...\n"+
		"    Context: Testing CLI\n"+
		"    Source: thought\n"+
		"[Jun 1, 2024] short: Old idea\n"+
		"Total: 2\n", buf.String())
}

func TestRenderEmpty(t *testing.T) {
	cases := map[Mode]string{
		ModeTask:    "No matching tasks found.\nTotal: 0\n",
		ModeGeneric: "No documents found.\nTotal: 0\n",
		ModeInbox:   "No unprocessed notes in inbox.\nTotal: 0\n",
	}
	for mode, want := range cases {
		p, buf := newTestPresenter()
		require.NoError(t, p.Render(collection.QueryResponse{Meta: &collection.Meta{}}, mode))
		assert.Equal(t, want, buf.String())
	}
}

func TestRenderJSON(t *testing.T) {
	p, buf := newTestPresenter()
	require.NoError(t, p.Render(collection.QueryResponse{Meta: &collection.Meta{TotalCount: 0}}, ModeJSON))
	assert.Equal(t, "{\n  \"results\": [],\n  \"meta\": {\n    \"total_count\": 0,\n    \"has_more\": false\n  }\n}\n", buf.String())
}

func TestRenderError(t *testing.T) {
	p, buf := newTestPresenter()
	require.NoError(t, p.RenderError(errors.New("boom"), ModeGeneric))
	assert.Empty(t, buf.String())

	require.NoError(t, p.RenderError(errors.New("boom"), ModeJSON))
	assert.Equal(t, "{\n  \"error\": {\n    \"message\": \"boom\"\n  }\n}\n", buf.String())
}

func TestRenderCreated(t *testing.T) {
	p, buf := newTestPresenter()
	p.RenderCreated("Captured", "inbox/a.md")
	assert.Equal(t, "Captured: inbox/a.md\n", buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab...", Truncate("abc", 2))
	assert.Equal(t, "", Truncate("", 5))
}

func TestRenderValidation(t *testing.T) {
	p, buf := newTestPresenter()
	rep := collection.ValidationReport{
		Issues:   []collection.Problem{{Path: "tasks/a.md", Message: "missing required field \"title\""}},
		Warnings: []collection.Problem{{Path: "b.md", Message: "document has no type"}, {Message: "no schema.yaml"}},
		Checked:  3,
	}
	require.NoError(t, p.RenderValidation(rep, false))
	assert.Equal(t, "✗ tasks/a.md: missing required field \"title\"\n"+
		"⚠ b.md: document has no type\n"+
		"⚠ no schema.yaml\n"+
		"\nChecked 3 documents (1 issue, 2 warnings)\n", buf.String())

	p, buf = newTestPresenter()
	require.NoError(t, p.RenderValidation(collection.ValidationReport{Checked: 1}, false))
	assert.Equal(t, "✓ Vault is valid (1 document)\n", buf.String())
}

func TestRenderReport(t *testing.T) {
	p, buf := newTestPresenter()
	rep := Report{
		Documents: 4,
		Types:     []Count{{Name: "note", Count: 1}, {Name: "task", Count: 3}},
		Tasks:     []Count{{Name: "open", Count: 2}, {Name: "done", Count: 1}},
	}
	require.NoError(t, p.RenderReport(rep, false))
	out := buf.String()
	assert.Contains(t, out, "TYPE         DOCUMENTS\n")
	assert.Contains(t, out, "task         3\n")
	assert.Contains(t, out, "TASK STATUS  TASKS\n")
	assert.True(t, strings.HasSuffix(out, "Total: 4\n"))

	p, buf = newTestPresenter()
	require.NoError(t, p.RenderReport(Report{}, true))
	assert.JSONEq(t, `{"documents":0,"types":[],"tasks":[]}`, buf.String())
}
