// Package frontmatter models document frontmatter as a closed set of value kinds.
package frontmatter

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindAbsent Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	default:
		return "absent"
	}
}

// Value is a single frontmatter value: string, number, boolean, list of strings,
// or absent. The zero Value is absent.
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
	list []string
}

// String creates a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number creates a number Value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int creates an integral number Value.
func Int(n int) Value { return Value{kind: KindNumber, n: float64(n)} }

// Bool creates a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List creates a list Value. The slice is copied.
func List(items []string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// Absent returns the absent Value.
func Absent() Value { return Value{} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.n, true
}

// AsInt returns the value as an int when it is an integral number.
func (v Value) AsInt() (int, bool) {
	if v.kind != KindNumber || v.n != math.Trunc(v.n) {
		return 0, false
	}
	return int(v.n), true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsList() ([]string, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// Display renders the value for terminal output. Lists are comma-joined.
func (v Value) Display() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		return strings.Join(v.list, ", ")
	default:
		return ""
	}
}

// Raw returns the plain Go value used for serialization.
func (v Value) Raw() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		if v.n == math.Trunc(v.n) && math.Abs(v.n) < 1<<53 {
			return int64(v.n)
		}
		return v.n
	case KindBool:
		return v.b
	case KindList:
		out := make([]string, len(v.list))
		copy(out, v.list)
		return out
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	return v.Raw(), nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// FromAny converts a decoded YAML or JSON value into a Value. Nested mappings
// have no variant of their own and are kept as their JSON text.
func FromAny(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Absent()
	case Value:
		return x
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case int:
		return Int(x)
	case int64:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case float64:
		return Number(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return Number(f)
		}
		return String(x.String())
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return String(x.Format("2006-01-02"))
		}
		return String(x.Format(time.RFC3339))
	case []string:
		return List(x)
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			if item == nil {
				continue
			}
			items = append(items, FromAny(item).Display())
		}
		return List(items)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return String(fmt.Sprint(x))
		}
		return String(string(b))
	}
}

// Map is a document's frontmatter keyed by field name.
type Map map[string]Value

// FromRaw converts a decoded mapping into a Map.
func FromRaw(raw map[string]any) Map {
	m := make(Map, len(raw))
	for k, v := range raw {
		m[k] = FromAny(v)
	}
	return m
}

// Get returns the value for key, or the absent Value.
func (m Map) Get(key string) Value {
	if m == nil {
		return Absent()
	}
	return m[key]
}

// Keys returns the field names in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Raw returns the mapping with plain Go values.
func (m Map) Raw() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Raw()
	}
	return out
}
