package vault

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokError
)

type token struct {
	typ   tokenType
	value string
	pos   int
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() token {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{typ: tokEOF, pos: l.pos}
	}
	start := l.pos
	ch := l.input[l.pos]
	switch {
	case ch == '(':
		l.pos++
		return token{typ: tokLParen, value: "(", pos: start}
	case ch == ')':
		l.pos++
		return token{typ: tokRParen, value: ")", pos: start}
	case ch == ',':
		l.pos++
		return token{typ: tokComma, value: ",", pos: start}
	case ch == '"' || ch == '\'':
		return l.scanString(ch)
	case ch >= '0' && ch <= '9':
		return l.scanNumber()
	case isIdentStart(ch):
		for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
			l.pos++
		}
		return token{typ: tokIdent, value: l.input[start:l.pos], pos: start}
	}
	for _, op := range []string{"==", "!=", "<=", ">=", "&&", "||", "<", ">", "!", "+", "-", "*", "/", "="} {
		if strings.HasPrefix(l.input[l.pos:], op) {
			l.pos += len(op)
			if op == "=" {
				op = "=="
			}
			return token{typ: tokOp, value: op, pos: start}
		}
	}
	l.pos++
	return token{typ: tokError, value: string(ch), pos: start}
}

func (l *lexer) scanString(quote byte) token {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == quote:
			l.pos++
			return token{typ: tokString, value: b.String(), pos: start}
		case ch == '\\' && l.pos+1 < len(l.input):
			l.pos++
			switch esc := l.input[l.pos]; esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(esc)
			}
		default:
			b.WriteByte(ch)
		}
		l.pos++
	}
	return token{typ: tokError, value: "unterminated string", pos: start}
}

func (l *lexer) scanNumber() token {
	start := l.pos
	seenDot := false
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '.' && !seenDot {
			seenDot = true
		} else if ch < '0' || ch > '9' {
			break
		}
		l.pos++
	}
	return token{typ: tokNumber, value: l.input[start:l.pos], pos: start}
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9') || ch == '.'
}

// node is a parsed where or formula expression.
type node interface{ String() string }

type literal struct{ value any }

type ident struct{ name string }

type unary struct {
	op string
	x  node
}

type binary struct {
	op   string
	l, r node
}

type call struct {
	fn   string
	args []node
}

func (n literal) String() string { return fmt.Sprintf("%v", n.value) }
func (n ident) String() string   { return n.name }
func (n unary) String() string   { return "(" + n.op + n.x.String() + ")" }
func (n binary) String() string  { return "(" + n.l.String() + " " + n.op + " " + n.r.String() + ")" }
func (n call) String() string {
	parts := make([]string, len(n.args))
	for i, a := range n.args {
		parts[i] = a.String()
	}
	return n.fn + "(" + strings.Join(parts, ", ") + ")"
}

type parser struct {
	lex *lexer
	tok token
}

// parseExpr parses a complete expression:
//
//	or      = and { ("||" | "or") and }
//	and     = not { ("&&" | "and") not }
//	not     = ("!" | "not") not | compare
//	compare = sum [ ("==" | "!=" | "<" | "<=" | ">" | ">=") sum ]
//	sum     = product { ("+" | "-") product }
//	product = unary { ("*" | "/") unary }
//	unary   = "-" unary | primary
//	primary = literal | ident | ident "(" args ")" | "(" or ")"
func parseExpr(src string) (node, error) {
	p := &parser{lex: &lexer{input: src}}
	p.advance()
	if p.tok.typ == tokEOF {
		return nil, fmt.Errorf("empty expression")
	}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.typ != tokEOF {
		return nil, p.unexpected()
	}
	return n, nil
}

func (p *parser) advance() { p.tok = p.lex.next() }

func (p *parser) unexpected() error {
	switch p.tok.typ {
	case tokEOF:
		return fmt.Errorf("unexpected end of expression")
	case tokError:
		return fmt.Errorf("at %d: %s", p.tok.pos, p.tok.value)
	default:
		return fmt.Errorf("at %d: unexpected %q", p.tok.pos, p.tok.value)
	}
}

func (p *parser) isKeyword(word string) bool {
	return p.tok.typ == tokIdent && strings.EqualFold(p.tok.value, word)
}

func (p *parser) isOp(ops ...string) bool {
	if p.tok.typ != tokOp {
		return false
	}
	for _, op := range ops {
		if p.tok.value == op {
			return true
		}
	}
	return false
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp("||") || p.isKeyword("or") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binary{op: "||", l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isOp("&&") || p.isKeyword("and") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = binary{op: "&&", l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.isOp("!") || p.isKeyword("not") {
		p.advance()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return unary{op: "!", x: x}, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (node, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if p.isOp("==", "!=", "<", "<=", ">", ">=") {
		op := p.tok.value
		p.advance()
		right, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		return binary{op: op, l: left, r: right}, nil
	}
	return left, nil
}

func (p *parser) parseSum() (node, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		op := p.tok.value
		p.advance()
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseProduct() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/") {
		op := p.tok.value
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isOp("-") {
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if lit, ok := x.(literal); ok {
			if f, ok := lit.value.(float64); ok {
				return literal{value: -f}, nil
			}
		}
		return unary{op: "-", x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.tok
	switch tok.typ {
	case tokString:
		p.advance()
		return literal{value: tok.value}, nil
	case tokNumber:
		p.advance()
		f, err := strconv.ParseFloat(tok.value, 64)
		if err != nil {
			return nil, fmt.Errorf("at %d: bad number %q", tok.pos, tok.value)
		}
		return literal{value: f}, nil
	case tokLParen:
		p.advance()
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.typ != tokRParen {
			return nil, p.unexpected()
		}
		p.advance()
		return n, nil
	case tokIdent:
		p.advance()
		switch strings.ToLower(tok.value) {
		case "true":
			return literal{value: true}, nil
		case "false":
			return literal{value: false}, nil
		case "null":
			return literal{value: nil}, nil
		}
		if p.tok.typ == tokLParen {
			return p.parseCall(tok)
		}
		return ident{name: tok.value}, nil
	default:
		return nil, p.unexpected()
	}
}

func (p *parser) parseCall(name token) (node, error) {
	p.advance()
	c := call{fn: name.value}
	if p.tok.typ == tokRParen {
		p.advance()
		return c, nil
	}
	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		c.args = append(c.args, arg)
		if p.tok.typ == tokComma {
			p.advance()
			continue
		}
		if p.tok.typ != tokRParen {
			return nil, p.unexpected()
		}
		p.advance()
		return c, nil
	}
}
