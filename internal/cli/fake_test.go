package cli

import (
	"context"

	"github.com/amirbrooks/mdv/internal/collection"
)

// fakeCollection records every call and answers with canned values.
type fakeCollection struct {
	created []collection.CreateRequest
	queries []collection.QueryRequest

	createResult collection.CreateResult
	resp         collection.QueryResponse
	report       collection.ValidationReport
	err          error

	closed int
}

func (f *fakeCollection) Create(_ context.Context, req collection.CreateRequest) (collection.CreateResult, error) {
	f.created = append(f.created, req)
	if f.err != nil {
		return collection.CreateResult{}, f.err
	}
	return f.createResult, nil
}

func (f *fakeCollection) Query(_ context.Context, req collection.QueryRequest) (collection.QueryResponse, error) {
	f.queries = append(f.queries, req)
	if f.err != nil {
		return collection.QueryResponse{}, f.err
	}
	return f.resp, nil
}

func (f *fakeCollection) Validate(context.Context) (collection.ValidationReport, error) {
	if f.err != nil {
		return collection.ValidationReport{}, f.err
	}
	return f.report, nil
}

func (f *fakeCollection) Close() error {
	f.closed++
	return nil
}
