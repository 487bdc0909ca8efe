package vault

import (
	"fmt"
	"strings"
)

// fragment is compiled SQL with its positional arguments.
type fragment struct {
	sql  string
	args []any
}

// compiler turns expressions into SQL over the docs table. Formula names
// resolve to their compiled SQL so where and order_by can refer to them.
type compiler struct {
	formulas map[string]fragment
}

var fileColumns = map[string]string{
	"file.path":   "d.path",
	"file.folder": "d.folder",
	"file.name":   "d.name",
}

func jsonPath(field string) string {
	return `$."` + field + `"`
}

func (c compiler) compileSource(src string) (fragment, error) {
	n, err := parseExpr(src)
	if err != nil {
		return fragment{}, err
	}
	var args []any
	sql, err := c.compile(n, &args)
	if err != nil {
		return fragment{}, err
	}
	return fragment{sql: sql, args: args}, nil
}

func (c compiler) compile(n node, args *[]any) (string, error) {
	switch n := n.(type) {
	case literal:
		if n.value == nil {
			return "NULL", nil
		}
		*args = append(*args, n.value)
		return "?", nil
	case ident:
		return c.identSQL(n.name, args)
	case unary:
		x, err := c.compile(n.x, args)
		if err != nil {
			return "", err
		}
		if n.op == "!" {
			return "(NOT " + x + ")", nil
		}
		return "(-" + x + ")", nil
	case binary:
		return c.binarySQL(n, args)
	case call:
		return c.callSQL(n, args)
	default:
		return "", fmt.Errorf("unsupported expression %s", n)
	}
}

func (c compiler) identSQL(name string, args *[]any) (string, error) {
	if col, ok := fileColumns[name]; ok {
		return col, nil
	}
	if strings.HasPrefix(name, "file.") {
		return "", fmt.Errorf("unknown file property %q", name)
	}
	if f, ok := c.formulas[name]; ok {
		*args = append(*args, f.args...)
		return "(" + f.sql + ")", nil
	}
	*args = append(*args, jsonPath(name))
	return "json_extract(d.fields, ?)", nil
}

func (c compiler) binarySQL(n binary, args *[]any) (string, error) {
	l, err := c.compile(n.l, args)
	if err != nil {
		return "", err
	}
	r, err := c.compile(n.r, args)
	if err != nil {
		return "", err
	}
	var op string
	switch n.op {
	case "&&":
		op = "AND"
	case "||":
		op = "OR"
	case "==":
		op = "IS"
	case "!=":
		op = "IS NOT"
	case "/":
		return "(CAST(" + l + " AS REAL) / " + r + ")", nil
	default:
		op = n.op
	}
	return "(" + l + " " + op + " " + r + ")", nil
}

func (c compiler) callSQL(n call, args *[]any) (string, error) {
	want := map[string]int{"contains": 2, "exists": 1, "startswith": 2, "lower": 1, "length": 1}
	fn := strings.ToLower(n.fn)
	arity, ok := want[fn]
	if !ok {
		return "", fmt.Errorf("unknown function %q", n.fn)
	}
	if len(n.args) != arity {
		return "", fmt.Errorf("%s takes %d argument(s), got %d", n.fn, arity, len(n.args))
	}

	field, isField := n.args[0].(ident)
	if isField {
		if _, ok := fileColumns[field.name]; ok {
			isField = false
		} else if _, ok := c.formulas[field.name]; ok {
			isField = false
		}
	}

	switch fn {
	case "exists":
		if !isField {
			x, err := c.compile(n.args[0], args)
			if err != nil {
				return "", err
			}
			return "(" + x + " IS NOT NULL)", nil
		}
		*args = append(*args, jsonPath(field.name))
		return "(json_extract(d.fields, ?) IS NOT NULL)", nil
	case "contains":
		if isField {
			path := jsonPath(field.name)
			*args = append(*args, path, path)
			needle, err := c.compile(n.args[1], args)
			if err != nil {
				return "", err
			}
			*args = append(*args, path)
			needle2, err := c.compile(n.args[1], args)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("(CASE json_type(d.fields, ?) WHEN 'array' THEN EXISTS (SELECT 1 FROM json_each(d.fields, ?) WHERE json_each.value = %s) ELSE instr(json_extract(d.fields, ?), %s) > 0 END)", needle, needle2), nil
		}
		hay, err := c.compile(n.args[0], args)
		if err != nil {
			return "", err
		}
		needle, err := c.compile(n.args[1], args)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(instr(CAST(%s AS TEXT), %s) > 0)", hay, needle), nil
	case "startswith":
		x, err := c.compile(n.args[0], args)
		if err != nil {
			return "", err
		}
		p1, err := c.compile(n.args[1], args)
		if err != nil {
			return "", err
		}
		p2, err := c.compile(n.args[1], args)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(substr(CAST(%s AS TEXT), 1, length(%s)) = %s)", x, p1, p2), nil
	default:
		x, err := c.compile(n.args[0], args)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s)", strings.ToUpper(fn), x), nil
	}
}
