package request

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amirbrooks/mdv/internal/argv"
	"github.com/amirbrooks/mdv/internal/collection"
	"github.com/amirbrooks/mdv/internal/frontmatter"
)

const (
	FleetingType      = "fleeting"
	StatusUnprocessed = "unprocessed"
	// TimestampLayout is ISO-8601 with milliseconds, written in UTC.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

var (
	ErrMissingType    = errors.New("missing document type")
	ErrMissingContent = errors.New("missing content")
)

// AddFlags accepts any long flag; each becomes a frontmatter field.
var AddFlags = argv.Spec{Open: true}

// CaptureFlags are the flags recognized by the capture command.
var CaptureFlags = argv.Spec{Flags: []argv.Flag{
	{Name: "context", Kind: argv.Text},
	{Name: "source", Kind: argv.Text},
	{Name: "json", Kind: argv.Bool},
}}

// FromAddFlags builds a creation request. The first positional token is the
// type. Every flag except body and path is copied into the frontmatter; tags is
// split on commas and priority must be an integer. Further positional tokens
// become the title when no --title is given.
func FromAddFlags(p argv.Parsed) (collection.CreateRequest, error) {
	if len(p.Positional) == 0 || strings.TrimSpace(p.Positional[0]) == "" {
		return collection.CreateRequest{}, ErrMissingType
	}
	req := collection.CreateRequest{
		Type:        strings.TrimSpace(p.Positional[0]),
		Path:        strings.TrimSpace(p.String("path")),
		Body:        p.String("body"),
		Frontmatter: frontmatter.Map{},
	}
	for _, name := range p.Names() {
		raw := p.String(name)
		switch name {
		case "body", "path":
			continue
		case "tags":
			req.Frontmatter[name] = frontmatter.List(SplitList(raw))
		case "priority":
			raw = strings.TrimSpace(raw)
			if raw == "" {
				return collection.CreateRequest{}, fmt.Errorf("--priority: %w", argv.ErrMissingValue)
			}
			n, err := strconv.Atoi(raw)
			if err != nil {
				return collection.CreateRequest{}, fmt.Errorf("--priority %q: %w", raw, argv.ErrInvalidNumber)
			}
			req.Frontmatter[name] = frontmatter.Int(n)
		default:
			req.Frontmatter[name] = frontmatter.String(raw)
		}
	}
	if rest := strings.TrimSpace(strings.Join(p.Positional[1:], " ")); rest != "" && !p.Has("title") {
		req.Frontmatter["title"] = frontmatter.String(rest)
	}
	return req, nil
}

// FromCaptureFlags builds a fleeting note from the positional content and the
// optional --context and --source text.
func FromCaptureFlags(p argv.Parsed, id string, now time.Time) (collection.CreateRequest, error) {
	content := strings.TrimSpace(strings.Join(p.Positional, " "))
	if content == "" {
		return collection.CreateRequest{}, ErrMissingContent
	}
	fm := frontmatter.Map{
		"id":       frontmatter.String(id),
		"status":   frontmatter.String(StatusUnprocessed),
		"captured": frontmatter.String(now.UTC().Format(TimestampLayout)),
	}
	for _, name := range []string{"context", "source"} {
		if v := strings.TrimSpace(p.String(name)); v != "" {
			fm[name] = frontmatter.String(v)
		}
	}
	return collection.CreateRequest{Type: FleetingType, Frontmatter: fm, Body: content}, nil
}

// InboxRequest selects unprocessed fleeting notes, newest first.
func InboxRequest(limit *int) collection.QueryRequest {
	return collection.QueryRequest{
		Types:       []string{FleetingType},
		Where:       fmt.Sprintf("status == %q", StatusUnprocessed),
		OrderBy:     []collection.OrderBy{{Field: "captured", Direction: collection.Desc}},
		Limit:       limit,
		IncludeBody: true,
	}
}

// ListRequest selects documents of the given types (all when empty) by path.
func ListRequest(types []string, limit *int) collection.QueryRequest {
	return collection.QueryRequest{
		Types:   types,
		OrderBy: []collection.OrderBy{{Field: "file.path", Direction: collection.Asc}},
		Limit:   limit,
	}
}
