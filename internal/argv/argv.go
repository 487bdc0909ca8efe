// Package argv splits raw command arguments into positional tokens and flags whose
// values are free text spanning several tokens.
package argv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMissingValue  = errors.New("missing value")
	ErrInvalidNumber = errors.New("invalid number")
)

// Kind says how a flag consumes the tokens that follow it.
type Kind int

const (
	// Text flags consume every token up to the next flag, joined by spaces.
	// A repeated Text flag keeps its last occurrence.
	Text Kind = iota
	// List flags consume like Text but every occurrence is kept.
	List
	// Bool flags consume nothing; presence means true.
	Bool
)

// Flag describes one recognized flag. Name is used without dashes.
type Flag struct {
	Name  string
	Short string
	Kind  Kind
}

// Spec is the set of flags a command recognizes. When Open is set, any unknown
// long flag is accepted as a Text flag.
type Spec struct {
	Flags []Flag
	Open  bool
}

func (s Spec) lookup(tok string) (Flag, bool) {
	if strings.HasPrefix(tok, "--") {
		name := tok[2:]
		for _, f := range s.Flags {
			if f.Name == name {
				return f, true
			}
		}
		if s.Open && name != "" {
			return Flag{Name: name, Kind: Text}, true
		}
		return Flag{}, false
	}
	short := tok[1:]
	for _, f := range s.Flags {
		if f.Short != "" && f.Short == short {
			return f, true
		}
	}
	return Flag{}, false
}

// Parsed is the result of Tokenize.
type Parsed struct {
	// Positional holds tokens that were not claimed by any flag.
	Positional []string

	values map[string][]string
	order  []string
}

func newParsed() Parsed {
	return Parsed{values: map[string][]string{}}
}

func (p *Parsed) add(name, value string) {
	if _, ok := p.values[name]; !ok {
		p.order = append(p.order, name)
	}
	p.values[name] = append(p.values[name], value)
}

// Has reports whether the flag appeared at all, with or without a value.
func (p Parsed) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// String returns the last value given for name, or "".
func (p Parsed) String(name string) string {
	vals := p.values[name]
	if len(vals) == 0 {
		return ""
	}
	return vals[len(vals)-1]
}

// List returns every value given for name, in order.
func (p Parsed) List(name string) []string {
	vals := p.values[name]
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

// Bool reports whether a boolean flag is set.
func (p Parsed) Bool(name string) bool {
	vals := p.values[name]
	if len(vals) == 0 {
		return false
	}
	b, err := strconv.ParseBool(vals[len(vals)-1])
	if err != nil {
		return true
	}
	return b
}

// Int parses the value of a numeric flag. ok is false when the flag is absent.
func (p Parsed) Int(name string) (n int, ok bool, err error) {
	if !p.Has(name) {
		return 0, false, nil
	}
	raw := strings.TrimSpace(p.String(name))
	if raw == "" {
		return 0, false, fmt.Errorf("--%s: %w", name, ErrMissingValue)
	}
	n, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("--%s %q: %w", name, raw, ErrInvalidNumber)
	}
	return n, true, nil
}

// Names returns the flags that appeared, in order of first appearance.
func (p Parsed) Names() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// declaresShort reports whether a single-dash token names a declared short flag.
func (s Spec) declaresShort(tok string) bool {
	name, _, _ := strings.Cut(tok, "=")
	_, ok := s.lookup(name)
	return ok
}

func isFlagToken(tok string) bool {
	if len(tok) < 2 || tok[0] != '-' {
		return false
	}
	if _, err := strconv.ParseFloat(tok, 64); err == nil {
		return false
	}
	return true
}

// Tokenize splits args according to spec. Tokens before the first flag are
// positional. A recognized flag takes every following token up to the next flag.
// An unknown long flag ends the current flag and its own tokens are dropped; a
// single-dash token that is not a declared short flag is an ordinary word. Tokens
// after a Bool flag are positional again. "--" ends flag parsing.
func Tokenize(args []string, spec Spec) Parsed {
	p := newParsed()

	var (
		cur     *Flag
		words   []string
		discard bool
	)
	flush := func() {
		if cur != nil {
			p.add(cur.Name, strings.Join(words, " "))
		}
		cur, words = nil, nil
	}

	for i := 0; i < len(args); i++ {
		tok := args[i]
		if tok == "--" {
			flush()
			p.Positional = append(p.Positional, args[i+1:]...)
			break
		}
		if isFlagToken(tok) && (strings.HasPrefix(tok, "--") || spec.declaresShort(tok)) {
			name, inline, hasInline := strings.Cut(tok, "=")
			f, ok := spec.lookup(name)
			flush()
			if !ok {
				discard = true
				continue
			}
			discard = false
			if f.Kind == Bool {
				if hasInline {
					p.add(f.Name, inline)
				} else {
					p.add(f.Name, "true")
				}
				continue
			}
			flag := f
			cur = &flag
			if hasInline {
				words = append(words, inline)
			}
			continue
		}
		switch {
		case cur != nil:
			words = append(words, tok)
		case discard:
		default:
			p.Positional = append(p.Positional, tok)
		}
	}
	flush()
	return p
}
