// Package request turns command-line flags and YAML query files into the
// canonical collection requests.
package request

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amirbrooks/mdv/internal/argv"
	"github.com/amirbrooks/mdv/internal/collection"
)

const (
	TaskType = "task"
	// DefaultTaskWhere keeps tasks that are not in a terminal status.
	DefaultTaskWhere = `status != "done" && status != "cancelled"`
)

var (
	ErrUnknownFormat = errors.New("unknown format")
	ErrInvalidQuery  = errors.New("invalid query")
)

// QueryFlags are the flags recognized by the query command.
var QueryFlags = argv.Spec{Flags: []argv.Flag{
	{Name: "type", Short: "t", Kind: argv.List},
	{Name: "where", Short: "w", Kind: argv.Text},
	{Name: "order", Short: "o", Kind: argv.List},
	{Name: "limit", Short: "l", Kind: argv.Text},
	{Name: "offset", Kind: argv.Text},
	{Name: "folder", Short: "f", Kind: argv.Text},
	{Name: "body", Kind: argv.Bool},
	{Name: "json", Kind: argv.Bool},
	{Name: "format", Kind: argv.Text},
}}

// DefaultTaskView is the request used when the query command gets no filter.
func DefaultTaskView() collection.QueryRequest {
	return collection.QueryRequest{
		Types:   []string{TaskType},
		Where:   DefaultTaskWhere,
		OrderBy: []collection.OrderBy{{Field: "priority", Direction: collection.Asc}},
	}
}

// Policy decides whether implicit defaults may be added to a request.
type Policy int

const (
	// ExplicitRequest never adds anything the caller did not ask for.
	ExplicitRequest Policy = iota
	// DefaultView replaces a filterless request with the open task view.
	DefaultView
)

// View records which shape the request ended up with.
type View int

const (
	ViewGeneric View = iota
	ViewTasks
)

// Format is the output format asked for on the command line.
type Format int

const (
	FormatAuto Format = iota
	FormatTask
	FormatList
	FormatJSON
)

// Spec is a built request plus what the presenter needs to know about it.
type Spec struct {
	Request collection.QueryRequest
	View    View
	Format  Format
}

// apply runs the policy. explicit is true when any filter flag was given, even
// with an empty value.
func (p Policy) apply(s Spec, explicit bool) Spec {
	switch p {
	case DefaultView:
		if explicit {
			s.View = ViewGeneric
			return s
		}
		def := DefaultTaskView()
		s.Request.Types = def.Types
		s.Request.Where = def.Where
		s.Request.OrderBy = def.OrderBy
		s.View = ViewTasks
	case ExplicitRequest:
		s.View = ViewGeneric
	}
	return s
}

// FromFlags builds a query from tokenized query flags.
func FromFlags(p argv.Parsed, policy Policy) (Spec, error) {
	var req collection.QueryRequest
	for _, v := range p.List("type") {
		req.Types = append(req.Types, SplitList(v)...)
	}
	req.Where = strings.TrimSpace(p.String("where"))
	req.Folder = strings.TrimSpace(p.String("folder"))
	for _, v := range p.List("order") {
		req.OrderBy = append(req.OrderBy, ParseOrder(v)...)
	}

	limit, err := nonNegative(p, "limit")
	if err != nil {
		return Spec{}, err
	}
	offset, err := nonNegative(p, "offset")
	if err != nil {
		return Spec{}, err
	}
	req.Limit, req.Offset = limit, offset
	req.IncludeBody = p.Bool("body")

	format, err := ParseFormat(p)
	if err != nil {
		return Spec{}, err
	}

	explicit := p.Has("type") || p.Has("where") || p.Has("folder")
	return policy.apply(Spec{Request: req, Format: format}, explicit), nil
}

func nonNegative(p argv.Parsed, name string) (*int, error) {
	n, ok, err := p.Int(name)
	if err != nil || !ok {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("--%s %d: %w", name, n, argv.ErrInvalidNumber)
	}
	return &n, nil
}

// ParseFormat reads --json and --format. --json wins.
func ParseFormat(p argv.Parsed) (Format, error) {
	if p.Bool("json") {
		return FormatJSON, nil
	}
	switch strings.ToLower(strings.TrimSpace(p.String("format"))) {
	case "", "text":
		return FormatAuto, nil
	case "json":
		return FormatJSON, nil
	case "task", "tasks":
		return FormatTask, nil
	case "list", "generic":
		return FormatList, nil
	default:
		return FormatAuto, fmt.Errorf("%w %q (use text, task, list or json)", ErrUnknownFormat, p.String("format"))
	}
}

// ParseOrder reads "field[:direction]" terms separated by commas. The direction
// defaults to asc when missing or not recognized.
func ParseOrder(s string) []collection.OrderBy {
	var out []collection.OrderBy
	for _, term := range strings.Split(s, ",") {
		field, dir, _ := strings.Cut(strings.TrimSpace(term), ":")
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		out = append(out, collection.OrderBy{Field: field, Direction: collection.ParseDirection(dir)})
	}
	return out
}

// SplitList splits a comma-separated value, trimming items and dropping empties.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
