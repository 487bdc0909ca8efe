package request

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/amirbrooks/mdv/internal/collection"
)

// FromYAML reads a query definition. The request may sit at the top level or
// under a "query" mapping. No defaults are added; an empty document matches
// everything.
func FromYAML(data []byte) (collection.QueryRequest, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return collection.QueryRequest{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return collection.QueryRequest{}, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return collection.QueryRequest{}, nil
	}
	if root.Kind != yaml.MappingNode {
		return collection.QueryRequest{}, fmt.Errorf("%w: line %d: expected a mapping", ErrInvalidQuery, root.Line)
	}
	if inner := mappingValue(root, "query"); inner != nil && inner.Kind == yaml.MappingNode {
		root = inner
	}
	return decodeRequest(root)
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func decodeRequest(m *yaml.Node) (collection.QueryRequest, error) {
	var req collection.QueryRequest
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i].Value, m.Content[i+1]
		var err error
		switch key {
		case "types":
			req.Types, err = decodeStrings(val)
		case "where":
			err = val.Decode(&req.Where)
		case "order_by":
			req.OrderBy, err = decodeOrder(val)
		case "folder":
			err = val.Decode(&req.Folder)
		case "limit":
			req.Limit, err = decodeInt(val)
		case "offset":
			req.Offset, err = decodeInt(val)
		case "include_body":
			err = val.Decode(&req.IncludeBody)
		case "formulas":
			err = val.Decode(&req.Formulas)
		default:
			var raw any
			if err = val.Decode(&raw); err == nil {
				if req.Extra == nil {
					req.Extra = map[string]any{}
				}
				req.Extra[key] = raw
			}
		}
		if err != nil {
			return collection.QueryRequest{}, fmt.Errorf("%w: line %d: %s: %v", ErrInvalidQuery, val.Line, key, err)
		}
	}
	return req, nil
}

func decodeStrings(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil, nil
		}
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		var out []string
		err := n.Decode(&out)
		return out, err
	default:
		return nil, fmt.Errorf("expected a string or a list of strings")
	}
}

func decodeOrder(n *yaml.Node) ([]collection.OrderBy, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return ParseOrder(n.Value), nil
	case yaml.MappingNode:
		item, err := decodeOrderItem(n)
		if err != nil {
			return nil, err
		}
		return []collection.OrderBy{item}, nil
	case yaml.SequenceNode:
		var out []collection.OrderBy
		for _, c := range n.Content {
			switch c.Kind {
			case yaml.ScalarNode:
				out = append(out, ParseOrder(c.Value)...)
			case yaml.MappingNode:
				item, err := decodeOrderItem(c)
				if err != nil {
					return nil, err
				}
				out = append(out, item)
			default:
				return nil, fmt.Errorf("line %d: expected field:direction or {field, direction}", c.Line)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of orderings")
	}
}

func decodeOrderItem(n *yaml.Node) (collection.OrderBy, error) {
	var raw struct {
		Field     string `yaml:"field"`
		Direction string `yaml:"direction"`
	}
	if err := n.Decode(&raw); err != nil {
		return collection.OrderBy{}, err
	}
	if raw.Field == "" {
		return collection.OrderBy{}, fmt.Errorf("line %d: order_by entry without field", n.Line)
	}
	return collection.OrderBy{Field: raw.Field, Direction: collection.ParseDirection(raw.Direction)}, nil
}

func decodeInt(n *yaml.Node) (*int, error) {
	var v int
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return &v, nil
}
