package request

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirbrooks/mdv/internal/argv"
	"github.com/amirbrooks/mdv/internal/collection"
)

func buildQuery(t *testing.T, policy Policy, args ...string) Spec {
	t.Helper()
	spec, err := FromFlags(argv.Tokenize(args, QueryFlags), policy)
	require.NoError(t, err)
	return spec
}

func TestNoFiltersInjectsTaskView(t *testing.T) {
	spec := buildQuery(t, DefaultView)
	assert.Equal(t, ViewTasks, spec.View)
	assert.Equal(t, []string{"task"}, spec.Request.Types)
	assert.Equal(t, DefaultTaskWhere, spec.Request.Where)
	assert.Equal(t, []collection.OrderBy{{Field: "priority", Direction: collection.Asc}}, spec.Request.OrderBy)
}

func TestDefaultsReplaceOrderWithoutFilters(t *testing.T) {
	spec := buildQuery(t, DefaultView, "--order", "due:desc", "--limit", "3")
	assert.Equal(t, ViewTasks, spec.View)
	assert.Equal(t, []collection.OrderBy{{Field: "priority", Direction: collection.Asc}}, spec.Request.OrderBy)
	require.NotNil(t, spec.Request.Limit)
	assert.Equal(t, 3, *spec.Request.Limit)
}

func TestAnyFilterSuppressesDefaults(t *testing.T) {
	cases := [][]string{
		{"--type", "note"},
		{"-t", "note"},
		{"--where", `status == "open"`},
		{"--folder", "projects"},
		{"--where"},
	}
	for _, args := range cases {
		spec := buildQuery(t, DefaultView, args...)
		assert.Equal(t, ViewGeneric, spec.View, "%v", args)
		assert.NotEqual(t, DefaultTaskWhere, spec.Request.Where, "%v", args)
		assert.Empty(t, spec.Request.OrderBy, "%v", args)
		if len(args) > 0 && (args[0] == "--where" || args[0] == "--folder") {
			assert.Empty(t, spec.Request.Types, "%v", args)
		}
	}
}

func TestExplicitPolicyNeverInjects(t *testing.T) {
	spec := buildQuery(t, ExplicitRequest)
	assert.Equal(t, ViewGeneric, spec.View)
	assert.Equal(t, collection.QueryRequest{}, spec.Request)
}

func TestFromFlagsFields(t *testing.T) {
	spec := buildQuery(t, DefaultView,
		"-t", "task,project", "--where", "priority", "<", "3",
		"-o", "priority:desc,title", "--order", "due:sideways",
		"--limit", "10", "--offset", "20", "-f", "work", "--body", "--format", "json")

	req := spec.Request
	assert.Equal(t, []string{"task", "project"}, req.Types)
	assert.Equal(t, "priority < 3", req.Where)
	assert.Equal(t, []collection.OrderBy{
		{Field: "priority", Direction: collection.Desc},
		{Field: "title", Direction: collection.Asc},
		{Field: "due", Direction: collection.Asc},
	}, req.OrderBy)
	assert.Equal(t, 10, *req.Limit)
	assert.Equal(t, 20, *req.Offset)
	assert.Equal(t, "work", req.Folder)
	assert.True(t, req.IncludeBody)
	assert.Equal(t, FormatJSON, spec.Format)
}

func TestFromFlagsNumericErrors(t *testing.T) {
	_, err := FromFlags(argv.Tokenize([]string{"--limit"}, QueryFlags), DefaultView)
	assert.True(t, errors.Is(err, argv.ErrMissingValue))

	_, err = FromFlags(argv.Tokenize([]string{"--limit", "lots"}, QueryFlags), DefaultView)
	assert.True(t, errors.Is(err, argv.ErrInvalidNumber))

	_, err = FromFlags(argv.Tokenize([]string{"--offset", "-1"}, QueryFlags), DefaultView)
	assert.True(t, errors.Is(err, argv.ErrInvalidNumber))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(argv.Tokenize([]string{"--format", "tasks"}, QueryFlags))
	require.NoError(t, err)
	assert.Equal(t, FormatTask, f)

	f, err = ParseFormat(argv.Tokenize([]string{"--format", "list", "--json"}, QueryFlags))
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat(argv.Tokenize([]string{"--format", "xml"}, QueryFlags))
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestParseOrder(t *testing.T) {
	assert.Equal(t, []collection.OrderBy{{Field: "a", Direction: collection.Asc}}, ParseOrder("a"))
	assert.Equal(t, []collection.OrderBy{{Field: "a", Direction: collection.Desc}}, ParseOrder("a:DESC"))
	assert.Equal(t, []collection.OrderBy{{Field: "file.path", Direction: collection.Asc}}, ParseOrder(" file.path:up "))
	assert.Empty(t, ParseOrder(" , :desc"))
}
