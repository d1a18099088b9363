package condition

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokPlaceholder
	tokString
	tokNumber
	tokEq
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokTrue
	tokFalse
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of condition"
	case tokIdent:
		return "column"
	case tokPlaceholder:
		return "placeholder"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokEq:
		return "'='"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokTrue, tokFalse:
		return "boolean"
	default:
		return "token"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits src into tokens.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '=':
			if i+1 < len(src) && src[i+1] == '=' {
				return nil, syntaxErr(i, "unsupported operator %q", "==")
			}
			toks = append(toks, token{kind: tokEq, text: "=", pos: i})
			i++
		case c == '{':
			end := strings.IndexByte(src[i:], '}')
			if end < 0 {
				return nil, syntaxErr(i, "unterminated placeholder")
			}
			toks = append(toks, token{kind: tokPlaceholder, text: src[i+1 : i+end], pos: i})
			i += end + 1
		case c == '\'':
			s, n, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, pos: i})
			i += n
		case isDigit(c) || (c == '-' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			i++
			dot := false
			for i < len(src) && (isDigit(src[i]) || (src[i] == '.' && !dot)) {
				if src[i] == '.' {
					dot = true
				}
				i++
			}
			if strings.HasSuffix(src[start:i], ".") {
				return nil, syntaxErr(start, "malformed number %q", src[start:i])
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			word := src[start:i]
			kind := tokIdent
			switch strings.ToUpper(word) {
			case "AND":
				kind = tokAnd
			case "OR":
				kind = tokOr
			case "TRUE":
				kind = tokTrue
			case "FALSE":
				kind = tokFalse
			case "NOT", "IN", "IS", "LIKE", "ILIKE", "BETWEEN", "NULL":
				return nil, syntaxErr(start, "unsupported keyword %q", word)
			}
			toks = append(toks, token{kind: kind, text: word, pos: start})
		case strings.ContainsRune("!<>", rune(c)):
			op := string(c)
			if i+1 < len(src) && strings.ContainsRune("=>", rune(src[i+1])) {
				op += string(src[i+1])
			}
			return nil, syntaxErr(i, "unsupported operator %q", op)
		default:
			return nil, syntaxErr(i, "unexpected character %q", string(c))
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

// lexString reads a single-quoted string starting at src[start].
// It returns the unescaped value and the number of bytes consumed.
func lexString(src string, start int) (string, int, error) {
	var sb strings.Builder
	i := start + 1
	for i < len(src) {
		if src[i] == '\'' {
			if i+1 < len(src) && src[i+1] == '\'' {
				sb.WriteByte('\'')
				i += 2
				continue
			}
			return sb.String(), i + 1 - start, nil
		}
		sb.WriteByte(src[i])
		i++
	}
	return "", 0, syntaxErr(start, "unterminated string")
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }

func syntaxErr(pos int, format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, pos, fmt.Sprintf(format, args...))
}

type parser struct {
	toks []token
	pos  int
}

// Parse parses a condition string into a Node.
func Parse(src string) (Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty condition", ErrSyntax)
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, syntaxErr(t.pos, "unexpected %s", t.kind)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// parseOr := parseAnd { OR parseAnd }
func (p *parser) parseOr() (Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for p.peek().kind == tokOr {
		p.next()
		n, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, n)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return Or{Terms: terms}, nil
}

// parseAnd := parseTerm { AND parseTerm }
func (p *parser) parseAnd() (Node, error) {
	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for p.peek().kind == tokAnd {
		p.next()
		n, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		terms = append(terms, n)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return And{Terms: terms}, nil
}

// parseTerm := '(' parseOr ')' | operand '=' operand
func (p *parser) parseTerm() (Node, error) {
	if p.peek().kind == tokLParen {
		open := p.next()
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, syntaxErr(open.pos, "missing ')'")
		}
		return n, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if t := p.next(); t.kind != tokEq {
		return nil, syntaxErr(t.pos, "expected '=', got %s", t.kind)
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return Equal{Left: left, Right: right}, nil
}

func (p *parser) parseOperand() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		return Column{Name: t.text}, nil
	case tokPlaceholder:
		return parsePlaceholder(t)
	case tokString:
		return String{Value: t.text}, nil
	case tokNumber:
		return Number{Value: t.text}, nil
	case tokTrue:
		return Bool{Value: true}, nil
	case tokFalse:
		return Bool{Value: false}, nil
	default:
		return nil, syntaxErr(t.pos, "expected operand, got %s", t.kind)
	}
}

func parsePlaceholder(t token) (Node, error) {
	name := strings.TrimSpace(t.text)
	switch {
	case name == "userId", name == "user.id":
		return Placeholder{Kind: UserID}, nil
	case strings.HasPrefix(name, "user."):
		prop := strings.TrimPrefix(name, "user.")
		if prop == "" || !isIdentStart(prop[0]) || strings.IndexFunc(prop, func(r rune) bool {
			return r > 127 || !isIdentPart(byte(r))
		}) >= 0 {
			return nil, syntaxErr(t.pos, "invalid user property %q", prop)
		}
		return Placeholder{Kind: UserProperty, Property: prop}, nil
	default:
		return nil, syntaxErr(t.pos, "unknown placeholder {%s}", name)
	}
}
