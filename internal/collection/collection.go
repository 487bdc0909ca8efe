// Package collection defines the request and response shapes exchanged with a
// document collection, and the interface a collection implements.
package collection

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/amirbrooks/mdv/internal/frontmatter"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
)

// Collection is a handle on a folder of typed documents. Close must be called
// exactly once for every handle returned by an Opener.
type Collection interface {
	Create(ctx context.Context, req CreateRequest) (CreateResult, error)
	Query(ctx context.Context, req QueryRequest) (QueryResponse, error)
	Validate(ctx context.Context) (ValidationReport, error)
	Close() error
}

// Opener opens the collection rooted at path.
type Opener func(path string) (Collection, error)

// CreateRequest describes one new document.
type CreateRequest struct {
	Type        string          `json:"type"`
	Path        string          `json:"path,omitempty"`
	Frontmatter frontmatter.Map `json:"frontmatter"`
	Body        string          `json:"body,omitempty"`
}

type CreateResult struct {
	Path string `json:"path"`
}

// Document is one query result.
type Document struct {
	Path        string          `json:"path"`
	Types       []string        `json:"types"`
	Frontmatter frontmatter.Map `json:"frontmatter"`
	Body        *string         `json:"body,omitempty"`
	Formulas    map[string]any  `json:"formulas,omitempty"`
}

// Title returns the document title, falling back to its path.
func (d Document) Title() string {
	if s, ok := d.Frontmatter.Get("title").AsString(); ok && s != "" {
		return s
	}
	return d.Path
}

type Meta struct {
	TotalCount int  `json:"total_count"`
	HasMore    bool `json:"has_more"`
}

type ErrorBody struct {
	Message string `json:"message"`
}

// QueryResponse is the result of a query. Error is only set when a response is
// built to report a failure.
type QueryResponse struct {
	Results []Document `json:"results"`
	Meta    *Meta      `json:"meta,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// MarshalJSON writes results as [] when empty, and leaves them out of error responses.
func (r QueryResponse) MarshalJSON() ([]byte, error) {
	out := struct {
		Results *[]Document `json:"results,omitempty"`
		Meta    *Meta       `json:"meta,omitempty"`
		Error   *ErrorBody  `json:"error,omitempty"`
	}{Meta: r.Meta, Error: r.Error}
	if r.Error == nil || len(r.Results) > 0 {
		results := r.Results
		if results == nil {
			results = []Document{}
		}
		out.Results = &results
	}
	return json.Marshal(out)
}

// ErrorResponse wraps err in the response shape.
func ErrorResponse(err error) QueryResponse {
	return QueryResponse{Error: &ErrorBody{Message: err.Error()}}
}

// Problem is a single validation finding. Path may be empty for vault-wide findings.
type Problem struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// ValidationReport lists blocking issues and non-blocking warnings.
type ValidationReport struct {
	Issues   []Problem `json:"issues"`
	Warnings []Problem `json:"warnings"`
	Checked  int       `json:"checked"`
}

func (r ValidationReport) Valid() bool { return len(r.Issues) == 0 }

// MarshalJSON keeps empty lists as [] rather than null.
func (r ValidationReport) MarshalJSON() ([]byte, error) {
	type plain ValidationReport
	out := plain(r)
	if out.Issues == nil {
		out.Issues = []Problem{}
	}
	if out.Warnings == nil {
		out.Warnings = []Problem{}
	}
	return json.Marshal(out)
}
