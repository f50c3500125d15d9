package soql

import (
	"fmt"
	"strings"
	"unicode"

	"sfextract/internal/describe"
)

// ParseError reports a query that does not name exactly one root object or
// uses a construct bulk queries cannot serve. It is raised before any
// remote call and is never worth retrying.
type ParseError struct {
	Query string
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("soql: parse %q: %s", e.Query, e.Msg)
}

type tokKind int

const (
	tokIdent tokKind = iota
	tokComma
	tokLParen
	tokRParen
	tokString
	tokOther
)

type token struct {
	kind tokKind
	text string
}

func (t token) is(keyword string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, keyword)
}

// Parse builds an ObjectDescriptor from a query such as
//
//	SELECT Id, Name, Account.Owner.Name FROM Contact WHERE IsDeleted = false
//
// A bare object name ("Contact") yields a descriptor with no fields, meaning
// every field of the object is implied.
func Parse(query string) (ObjectDescriptor, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return ObjectDescriptor{}, &ParseError{Query: query, Msg: "empty query"}
	}
	toks, err := lex(q)
	if err != nil {
		return ObjectDescriptor{}, &ParseError{Query: query, Msg: err.Error()}
	}

	if len(toks) == 1 && toks[0].kind == tokIdent && !toks[0].is("select") {
		if err := checkObjectName(toks[0].text); err != nil {
			return ObjectDescriptor{}, &ParseError{Query: query, Msg: err.Error()}
		}
		return NewObjectDescriptor(toks[0].text, nil), nil
	}

	p := parser{query: query, toks: toks}
	return p.parse()
}

// IsQuery reports whether s looks like a SELECT statement rather than a bare
// object name.
func IsQuery(s string) bool {
	f := strings.Fields(s)
	return len(f) > 0 && strings.EqualFold(f[0], "select")
}

type parser struct {
	query string
	toks  []token
	pos   int
}

func (p *parser) fail(format string, a ...any) error {
	return &ParseError{Query: p.query, Msg: fmt.Sprintf(format, a...)}
}

func (p *parser) parse() (ObjectDescriptor, error) {
	if len(p.toks) == 0 || !p.toks[0].is("select") {
		return ObjectDescriptor{}, p.fail("expected SELECT")
	}
	p.pos = 1

	var items [][]token
	var cur []token
	depth := 0
	for {
		if p.pos >= len(p.toks) {
			return ObjectDescriptor{}, p.fail("missing FROM clause")
		}
		t := p.toks[p.pos]
		if depth == 0 && t.is("from") {
			break
		}
		p.pos++
		switch t.kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
			if depth < 0 {
				return ObjectDescriptor{}, p.fail("unbalanced parenthesis")
			}
		case tokComma:
			if depth == 0 {
				items = append(items, cur)
				cur = nil
				continue
			}
		}
		cur = append(cur, t)
	}
	items = append(items, cur)

	fields := make([]Field, 0, len(items))
	seen := make(map[string]string, len(items))
	for _, it := range items {
		f, err := p.field(it)
		if err != nil {
			return ObjectDescriptor{}, err
		}
		// Full names key the output schema; the remote compares them case-insensitively.
		k := describe.Key(f.FullName())
		if prev, dup := seen[k]; dup {
			return ObjectDescriptor{}, p.fail("duplicate field %q in select list (already selected as %q)", f.FullName(), prev)
		}
		seen[k] = f.FullName()
		fields = append(fields, f)
	}

	p.pos++ // FROM
	if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokIdent {
		return ObjectDescriptor{}, p.fail("FROM must be followed by an object name")
	}
	object := p.toks[p.pos].text
	if err := checkObjectName(object); err != nil {
		return ObjectDescriptor{}, p.fail("%v", err)
	}
	p.pos++
	if p.pos < len(p.toks) && p.toks[p.pos].kind == tokComma {
		return ObjectDescriptor{}, p.fail("query must reference exactly one root object")
	}

	if err := p.checkTail(); err != nil {
		return ObjectDescriptor{}, err
	}
	return NewObjectDescriptor(object, fields), nil
}

func (p *parser) field(item []token) (Field, error) {
	if len(item) == 0 {
		return Field{}, p.fail("empty field in select list")
	}
	if item[0].is("typeof") {
		return Field{}, p.fail("TYPEOF is not supported")
	}
	for i, t := range item {
		if t.kind == tokLParen {
			if i+1 < len(item) && item[i+1].is("select") {
				return Field{}, p.fail("nested subqueries are not supported")
			}
			return Field{}, p.fail("function %s(...) is not supported", item[0].text)
		}
	}
	if len(item) != 1 || item[0].kind != tokIdent {
		return Field{}, p.fail("unsupported select item %q", joinTokens(item))
	}
	ref := item[0].text
	for _, seg := range strings.Split(ref, ".") {
		if !validIdent(seg) {
			return Field{}, p.fail("invalid field reference %q", ref)
		}
	}
	return NewField(ref), nil
}

// checkTail rejects clauses that bulk queries cannot serve.
func (p *parser) checkTail() error {
	depth := 0
	for _, t := range p.toks[p.pos:] {
		switch t.kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
		case tokIdent:
			if depth != 0 {
				continue
			}
			switch {
			case t.is("group"), t.is("having"), t.is("offset"):
				return p.fail("%s is not supported in bulk queries", strings.ToUpper(t.text))
			}
		}
	}
	if depth != 0 {
		return p.fail("unbalanced parenthesis")
	}
	return nil
}

func checkObjectName(name string) error {
	if !validIdent(name) {
		return fmt.Errorf("invalid object name %q", name)
	}
	return nil
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || r == '_'):
		default:
			return false
		}
	}
	return true
}

func lex(s string) ([]token, error) {
	var out []token
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == ',':
			out = append(out, token{tokComma, ","})
			i++
		case r == '(':
			out = append(out, token{tokLParen, "("})
			i++
		case r == ')':
			out = append(out, token{tokRParen, ")"})
			i++
		case r == '\'':
			j := i + 1
			for ; j < len(rs); j++ {
				if rs[j] == '\\' {
					j++
					continue
				}
				if rs[j] == '\'' {
					break
				}
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			out = append(out, token{tokString, string(rs[i : j+1])})
			i = j + 1
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_' || rs[j] == '.') {
				j++
			}
			out = append(out, token{tokIdent, string(rs[i:j])})
			i = j
		default:
			out = append(out, token{tokOther, string(r)})
			i++
		}
	}
	return out, nil
}

func joinTokens(ts []token) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.text
	}
	return strings.Join(parts, " ")
}
