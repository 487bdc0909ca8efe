package collection

import (
	"encoding/json"
	"strings"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection returns Desc for "desc" in any case and Asc for anything else.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Desc)) {
		return Desc
	}
	return Asc
}

type OrderBy struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// QueryRequest is the canonical query shape. The zero value matches every
// document. Extra carries keys the request builder did not recognize; the
// collection decides what to do with them.
type QueryRequest struct {
	Types       []string          `json:"types,omitempty"`
	Where       string            `json:"where,omitempty"`
	OrderBy     []OrderBy         `json:"order_by,omitempty"`
	Folder      string            `json:"folder,omitempty"`
	Limit       *int              `json:"limit,omitempty"`
	Offset      *int              `json:"offset,omitempty"`
	IncludeBody bool              `json:"include_body,omitempty"`
	Formulas    map[string]string `json:"formulas,omitempty"`
	Extra       map[string]any    `json:"-"`
}

// HasFilter reports whether any of types, where or folder is set.
func (q QueryRequest) HasFilter() bool {
	return len(q.Types) > 0 || strings.TrimSpace(q.Where) != "" || strings.TrimSpace(q.Folder) != ""
}

// MarshalJSON flattens Extra into the top-level object.
func (q QueryRequest) MarshalJSON() ([]byte, error) {
	type plain QueryRequest
	b, err := json.Marshal(plain(q))
	if err != nil || len(q.Extra) == 0 {
		return b, err
	}
	merged := map[string]any{}
	for k, v := range q.Extra {
		merged[k] = v
	}
	var known map[string]any
	if err := json.Unmarshal(b, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// IntPtr is a convenience for building requests.
func IntPtr(n int) *int { return &n }
