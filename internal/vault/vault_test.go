package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirbrooks/mdv/internal/collection"
	"github.com/amirbrooks/mdv/internal/frontmatter"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func fixtureVault(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, SchemaFile, StarterSchema)
	writeFile(t, root, "tasks/a.md", "---\ntype: task\ntitle: Write docs\nstatus: open\npriority: 2\ntags: [docs, work]\n---\n\nFirst line of a\n")
	writeFile(t, root, "tasks/b.md", "---\ntype: task\ntitle: Ship release\nstatus: done\npriority: 1\n---\n")
	writeFile(t, root, "tasks/c.md", "---\ntype: task\ntitle: Fix login\nstatus: blocked\npriority: 1\ntags: [work]\n---\n")
	writeFile(t, root, "tasks/d.md", "---\ntype: task\ntitle: Someday\n---\n")
	writeFile(t, root, "notes/idea.md", "---\ntype: note\ntitle: Idea\n---\nBody text\n")
	writeFile(t, root, "notes/deep/nested.md", "---\ntype: [note, task]\ntitle: Nested\nstatus: open\npriority: 3\n---\n")
	writeFile(t, root, "loose.md", "Just text, no frontmatter.\n")
	writeFile(t, root, ".hidden/skip.md", "---\ntype: task\ntitle: Hidden\n---\n")
	return root
}

func openVault(t *testing.T, root string) *Vault {
	t.Helper()
	v, err := Open(root, WithClock(func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func paths(resp collection.QueryResponse) []string {
	out := make([]string, 0, len(resp.Results))
	for _, d := range resp.Results {
		out = append(out, d.Path)
	}
	return out
}

func TestOpenMissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errors.Is(err, collection.ErrNotFound))
}

func TestOpenRejectsBadSchema(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, SchemaFile, "types:\n  task:\n    fields:\n      x: {type: colour}\n")
	_, err := Open(root)
	assert.True(t, errors.Is(err, collection.ErrInvalid))
}

func TestQueryMatchAll(t *testing.T) {
	v := openVault(t, fixtureVault(t))
	resp, err := v.Query(context.Background(), collection.QueryRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"loose.md", "notes/deep/nested.md", "notes/idea.md", "tasks/a.md", "tasks/b.md", "tasks/c.md", "tasks/d.md"}, paths(resp))
	assert.Equal(t, 7, resp.Meta.TotalCount)
	assert.False(t, resp.Meta.HasMore)
	assert.Nil(t, resp.Results[0].Body)
	assert.Equal(t, []string{}, resp.Results[0].Types)
}

func TestQueryDefaultTaskView(t *testing.T) {
	v := openVault(t, fixtureVault(t))
	resp, err := v.Query(context.Background(), collection.QueryRequest{
		Types:   []string{"task"},
		Where:   `status != "done" && status != "cancelled"`,
		OrderBy: []collection.OrderBy{{Field: "priority", Direction: collection.Asc}},
	})
	require.NoError(t, err)
	// d.md has no status and no priority: it passes the filter and sorts last.
	assert.Equal(t, []string{"tasks/c.md", "tasks/a.md", "notes/deep/nested.md", "tasks/d.md"}, paths(resp))
	assert.Equal(t, frontmatter.Int(2), resp.Results[1].Frontmatter["priority"])
}

func TestQueryOrderDescendingKeepsMissingLast(t *testing.T) {
	v := openVault(t, fixtureVault(t))
	resp, err := v.Query(context.Background(), collection.QueryRequest{
		Types:   []string{"task"},
		OrderBy: []collection.OrderBy{{Field: "priority", Direction: collection.Desc}, {Field: "title"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes/deep/nested.md", "tasks/a.md", "tasks/c.md", "tasks/b.md", "tasks/d.md"}, paths(resp))
}

func TestQueryWhereLanguage(t *testing.T) {
	v := openVault(t, fixtureVault(t))
	cases := map[string][]string{
		`priority <= 1`:                          {"tasks/b.md", "tasks/c.md"},
		`contains(tags, "work")`:                 {"tasks/a.md", "tasks/c.md"},
		`contains(title, "Ship")`:                {"tasks/b.md"},
		`not exists(status) and type == "task"`:  {"tasks/d.md"},
		`startsWith(file.path, "notes/")`:        {"notes/deep/nested.md", "notes/idea.md"},
		`file.folder == "tasks" && priority > 1`: {"tasks/a.md"},
		`file.name == "loose"`:                   {"loose.md"},
		`(priority + 1) * 2 == 6`:                {"tasks/a.md"},
		`status == null && exists(title)`:        {"notes/idea.md", "tasks/d.md"},
	}
	for where, want := range cases {
		resp, err := v.Query(context.Background(), collection.QueryRequest{Where: where})
		require.NoError(t, err, where)
		assert.Equal(t, want, paths(resp), where)
	}
}

func TestQueryTypesAndFolder(t *testing.T) {
	v := openVault(t, fixtureVault(t))
	resp, err := v.Query(context.Background(), collection.QueryRequest{Types: []string{"note"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes/deep/nested.md", "notes/idea.md"}, paths(resp))

	resp, err = v.Query(context.Background(), collection.QueryRequest{Folder: "/notes/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes/deep/nested.md", "notes/idea.md"}, paths(resp))

	resp, err = v.Query(context.Background(), collection.QueryRequest{Folder: "note"})
	require.NoError(t, err)
	assert.Empty(t, paths(resp))
}

func TestQueryPagination(t *testing.T) {
	v := openVault(t, fixtureVault(t))
	resp, err := v.Query(context.Background(), collection.QueryRequest{Types: []string{"task"}, Limit: collection.IntPtr(2), Offset: collection.IntPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks/a.md", "tasks/b.md"}, paths(resp))
	assert.Equal(t, 5, resp.Meta.TotalCount)
	assert.True(t, resp.Meta.HasMore)

	resp, err = v.Query(context.Background(), collection.QueryRequest{Types: []string{"task"}, Offset: collection.IntPtr(4)})
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks/d.md"}, paths(resp))
	assert.False(t, resp.Meta.HasMore)
}

func TestQueryFormulasAndBody(t *testing.T) {
	v := openVault(t, fixtureVault(t))
	resp, err := v.Query(context.Background(), collection.QueryRequest{
		Types:       []string{"task"},
		Where:       "urgency >= 4",
		OrderBy:     []collection.OrderBy{{Field: "urgency", Direction: collection.Desc}, {Field: "file.path"}},
		Formulas:    map[string]string{"urgency": "6 - priority"},
		IncludeBody: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks/b.md", "tasks/c.md", "tasks/a.md"}, paths(resp))
	assert.Equal(t, map[string]any{"urgency": int64(4)}, resp.Results[2].Formulas)
	require.NotNil(t, resp.Results[2].Body)
	assert.Equal(t, "First line of a\n", *resp.Results[2].Body)
}

func TestQueryErrors(t *testing.T) {
	v := openVault(t, fixtureVault(t))
	bad := []collection.QueryRequest{
		{Where: "status =="},
		{Where: `file.size > 3`},
		{Where: `nosuch(title)`},
		{OrderBy: []collection.OrderBy{{Field: "(("}}},
		{Extra: map[string]any{"group_by": "folder"}},
		{Formulas: map[string]string{"file.x": "1"}},
	}
	for _, req := range bad {
		_, err := v.Query(context.Background(), req)
		assert.True(t, errors.Is(err, collection.ErrInvalid), "%+v: %v", req, err)
	}
	_, err := v.Query(context.Background(), collection.QueryRequest{Extra: map[string]any{"group_by": 1}})
	assert.EqualError(t, err, `invalid: unknown query field "group_by"`)
}

func TestCreateGeneratesPathAndIndexes(t *testing.T) {
	root := fixtureVault(t)
	v := openVault(t, root)
	ctx := context.Background()

	req := collection.CreateRequest{
		Type: "task",
		Frontmatter: frontmatter.Map{
			"title":    frontmatter.String("Fix bug"),
			"priority": frontmatter.Int(1),
			"status":   frontmatter.String("open"),
			"tags":     frontmatter.List([]string{"work", "urgent"}),
		},
		Body: "Details",
	}
	res, err := v.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "tasks/fix-bug.md", res.Path)

	b, err := os.ReadFile(filepath.Join(root, "tasks", "fix-bug.md"))
	require.NoError(t, err)
	content := string(b)
	assert.True(t, strings.HasPrefix(content, "---\ntype: task\n"), content)
	assert.Contains(t, content, "priority: 1\n")
	assert.True(t, strings.HasSuffix(content, "---\n\nDetails\n"), content)

	res, err = v.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "tasks/fix-bug-2.md", res.Path)

	resp, err := v.Query(ctx, collection.QueryRequest{Where: `title == "Fix bug"`})
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks/fix-bug-2.md", "tasks/fix-bug.md"}, paths(resp))
	assert.Equal(t, frontmatter.KindNumber, resp.Results[0].Frontmatter["priority"].Kind())
}

func TestCreateExplicitPath(t *testing.T) {
	root := fixtureVault(t)
	v := openVault(t, root)
	ctx := context.Background()

	res, err := v.Create(ctx, collection.CreateRequest{Type: "note", Path: "notes/plan", Frontmatter: frontmatter.Map{"title": frontmatter.String("Plan")}})
	require.NoError(t, err)
	assert.Equal(t, "notes/plan.md", res.Path)

	_, err = v.Create(ctx, collection.CreateRequest{Type: "note", Path: "notes/plan.md", Frontmatter: frontmatter.Map{"title": frontmatter.String("Plan")}})
	assert.True(t, errors.Is(err, collection.ErrInvalid))

	_, err = v.Create(ctx, collection.CreateRequest{Type: "note", Path: "../escape.md", Frontmatter: frontmatter.Map{"title": frontmatter.String("x")}})
	assert.True(t, errors.Is(err, collection.ErrInvalid))
}

func TestCreateValidatesAgainstSchema(t *testing.T) {
	v := openVault(t, fixtureVault(t))
	ctx := context.Background()

	_, err := v.Create(ctx, collection.CreateRequest{Type: "recipe", Frontmatter: frontmatter.Map{}})
	assert.True(t, errors.Is(err, collection.ErrInvalid))

	_, err = v.Create(ctx, collection.CreateRequest{Type: "task", Frontmatter: frontmatter.Map{"priority": frontmatter.Int(9)}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, collection.ErrInvalid))
	assert.Contains(t, err.Error(), "title")
	assert.Contains(t, err.Error(), "priority")
}

func TestCreateWithoutSchemaUsesTypeFolderAndULID(t *testing.T) {
	root := t.TempDir()
	v := openVault(t, root)
	res, err := v.Create(context.Background(), collection.CreateRequest{Type: "fleeting", Frontmatter: frontmatter.Map{}, Body: "thought"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Path, "fleeting/"), res.Path)
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(res.Path, "fleeting/"), ".md"), 26)
}

func TestValidate(t *testing.T) {
	root := fixtureVault(t)
	writeFile(t, root, "tasks/bad.md", "---\ntype: task\nstatus: someday\n---\n")
	writeFile(t, root, "broken.md", "---\ntitle: [unclosed\n---\n")
	writeFile(t, root, "recipes/soup.md", "---\ntype: recipe\n---\n")
	v := openVault(t, root)

	rep, err := v.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.Valid())
	assert.Equal(t, 10, rep.Checked)

	var issuePaths []string
	for _, p := range rep.Issues {
		issuePaths = append(issuePaths, p.Path)
	}
	assert.Equal(t, []string{"broken.md", "tasks/bad.md", "tasks/bad.md"}, issuePaths)
	assert.Contains(t, rep.Issues[1].Message, "status")
	assert.Contains(t, rep.Issues[2].Message, "title")

	assert.Contains(t, rep.Warnings, collection.Problem{Path: "loose.md", Message: "document has no type"})
	assert.Contains(t, rep.Warnings, collection.Problem{Path: "recipes/soup.md", Message: `type "recipe" is not defined in schema.yaml`})
}

func TestValidateWithoutSchemaOnlyWarns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "---\ntype: task\n---\n")
	v := openVault(t, root)
	rep, err := v.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Valid())
	assert.Len(t, rep.Warnings, 1)
}

func TestCloseIsIdempotent(t *testing.T) {
	v, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
	_, err = v.Query(context.Background(), collection.QueryRequest{})
	assert.Error(t, err)
}
