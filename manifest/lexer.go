package manifest

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/teranos/wptmeta/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokEq
	tokNe
	tokColon
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t') {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start}, nil
	}
	c := l.src[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case c == ':':
		l.pos++
		return token{kind: tokColon, text: ":", pos: start}, nil
	case c == '=' || c == '!':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			if c == '=' {
				return token{kind: tokEq, text: "==", pos: start}, nil
			}
			return token{kind: tokNe, text: "!=", pos: start}, nil
		}
		return token{}, errors.Newf("unexpected %q at column %d", c, start+1)
	case c == '"' || c == '\'':
		s, end, err := unquote(l.src, l.pos)
		if err != nil {
			return token{}, err
		}
		l.pos = end
		return token{kind: tokString, text: s, pos: start}, nil
	case c >= '0' && c <= '9':
		for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}, nil
	case isIdentStart(rune(c)):
		for l.pos < len(l.src) && isIdentPart(rune(l.src[l.pos])) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil
	}
	return token{}, errors.Newf("unexpected %q at column %d", c, start+1)
}

// unquote reads a quoted string starting at src[start] and returns its
// contents and the offset just past the closing quote.
func unquote(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	for i := start + 1; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			i++
			switch src[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(src[i])
			}
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, errors.Newf("unterminated string at column %d", start+1)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return isIdentStart(r) || unicode.IsDigit(r) }

// exprParser is a recursive descent parser over the condition grammar:
//
//	or      = and { "or" and }
//	and     = not { "and" not }
//	not     = "not" not | compare
//	compare = atom [ ("==" | "!=") atom ]
//	atom    = ident | string | number | "(" or ")"
type exprParser struct {
	lex *lexer
	tok token
}

func newExprParser(src string) (*exprParser, error) {
	p := &exprParser{lex: &lexer{src: src}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *exprParser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *exprParser) keyword(word string) bool {
	return p.tok.kind == tokIdent && p.tok.text == word
}

func (p *exprParser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *exprParser) parseNot() (Expr, error) {
	if p.keyword("not") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{X: x}, nil
	}
	return p.parseCompare()
}

func (p *exprParser) parseCompare() (Expr, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	var op Op
	switch p.tok.kind {
	case tokEq:
		op = OpEq
	case tokNe:
		op = OpNe
	default:
		return left, nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	right, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	return &Binary{Op: op, Left: left, Right: right}, nil
}

func (p *exprParser) parseAtom() (Expr, error) {
	t := p.tok
	switch t.kind {
	case tokIdent:
		switch t.text {
		case "and", "or", "not":
			return nil, errors.Newf("unexpected %q at column %d", t.text, t.pos+1)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Variable{Name: t.text}, nil
	case tokString:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &StringLit{Value: t.text}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, errors.Newf("invalid number %q at column %d", t.text, t.pos+1)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &NumberLit{Value: f, Raw: t.text}, nil
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, errors.Newf("expected ) at column %d", p.tok.pos+1)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	case tokEOF:
		return nil, errors.New("unexpected end of expression")
	}
	return nil, errors.Newf("unexpected %q at column %d", t.text, t.pos+1)
}

// ParseExpr parses a complete condition expression
func ParseExpr(src string) (Expr, error) {
	p, err := newExprParser(src)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrInvalidManifest)
	}
	e, err := p.parseOr()
	if err != nil {
		return nil, errors.Mark(err, errors.ErrInvalidManifest)
	}
	if p.tok.kind != tokEOF {
		return nil, errors.NewInvalidManifestError("trailing %q at column %d", p.tok.text, p.tok.pos+1)
	}
	return e, nil
}

// parseCondition parses `<expr>:` at the start of src and returns the
// expression and the text following the colon.
func parseCondition(src string) (Expr, string, error) {
	p, err := newExprParser(src)
	if err != nil {
		return nil, "", err
	}
	e, err := p.parseOr()
	if err != nil {
		return nil, "", err
	}
	if p.tok.kind != tokColon {
		return nil, "", errors.Newf("expected : after condition at column %d", p.tok.pos+1)
	}
	return e, src[p.tok.pos+1:], nil
}
