package ols

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Formula is a parsed Wilkinson-style model formula:
//
//	P ~ E + I(E * E) + I(E * T_a) + I(E * v) - 1
//
// Terms are variable names, a:b products, or I(...) arithmetic with + - * /,
// unary minus, parentheses and numbers. The intercept is included unless
// removed with "- 1" or "+ 0".
type Formula struct {
	Source    string
	Response  expr
	Terms     []Term
	Intercept bool
}

// Term is one column of the design matrix.
type Term struct {
	Label   string
	factors []expr
}

func (t Term) eval(cols map[string][]float64, row int) float64 {
	v := 1.0
	for _, f := range t.factors {
		v *= f.eval(cols, row)
	}
	return v
}

// Variables lists every data column the formula reads, sorted.
func (f *Formula) Variables() []string {
	seen := make(map[string]struct{})
	f.Response.vars(seen)
	for _, t := range f.Terms {
		for _, x := range t.factors {
			x.vars(seen)
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// InputVariables lists the columns read by the right-hand side only.
func (f *Formula) InputVariables() []string {
	seen := make(map[string]struct{})
	for _, t := range f.Terms {
		for _, x := range t.factors {
			x.vars(seen)
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Labels returns the design column labels, "Intercept" first when present.
func (f *Formula) Labels() []string {
	var out []string
	if f.Intercept {
		out = append(out, "Intercept")
	}
	for _, t := range f.Terms {
		out = append(out, t.Label)
	}
	return out
}

// Width is the number of design matrix columns.
func (f *Formula) Width() int {
	if f.Intercept {
		return len(f.Terms) + 1
	}
	return len(f.Terms)
}

// designRow fills dst with the design row for data row.
func (f *Formula) designRow(cols map[string][]float64, row int, dst []float64) {
	j := 0
	if f.Intercept {
		dst[0] = 1
		j = 1
	}
	for _, t := range f.Terms {
		dst[j] = t.eval(cols, row)
		j++
	}
}

// ---- expressions ----

type expr interface {
	eval(cols map[string][]float64, row int) float64
	vars(dst map[string]struct{})
}

type number float64

func (n number) eval(map[string][]float64, int) float64 { return float64(n) }
func (n number) vars(map[string]struct{})               {}

type variable string

func (v variable) eval(cols map[string][]float64, row int) float64 { return cols[string(v)][row] }
func (v variable) vars(dst map[string]struct{})                   { dst[string(v)] = struct{}{} }

type negate struct{ x expr }

func (n negate) eval(cols map[string][]float64, row int) float64 { return -n.x.eval(cols, row) }
func (n negate) vars(dst map[string]struct{})                   { n.x.vars(dst) }

type binary struct {
	op   byte
	l, r expr
}

func (b binary) eval(cols map[string][]float64, row int) float64 {
	l, r := b.l.eval(cols, row), b.r.eval(cols, row)
	switch b.op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	default:
		return l / r
	}
}

func (b binary) vars(dst map[string]struct{}) {
	b.l.vars(dst)
	b.r.vars(dst)
}

// ---- lexer ----

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '_' || unicode.IsLetter(c):
			j := i + 1
			for j < len(src) && (src[j] == '_' || src[j] == '.' || unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j]))) {
				j++
			}
			toks = append(toks, token{tokIdent, src[i:j], i})
			i = j
		case unicode.IsDigit(c) || c == '.':
			j := i + 1
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.' ||
				((src[j] == 'e' || src[j] == 'E') && j+1 < len(src)) ||
				((src[j] == '+' || src[j] == '-') && (src[j-1] == 'e' || src[j-1] == 'E'))) {
				j++
			}
			toks = append(toks, token{tokNumber, src[i:j], i})
			i = j
		case strings.ContainsRune("~+-*/():", c):
			toks = append(toks, token{tokOp, string(c), i})
			i++
		default:
			return nil, fmt.Errorf("formula %q: unexpected character %q at %d", src, c, i)
		}
	}
	return append(toks, token{tokEOF, "", len(src)}), nil
}

// ---- parser ----

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(op string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == op
}

func (p *parser) expect(op string) error {
	if !p.isOp(op) {
		t := p.peek()
		return fmt.Errorf("formula %q: expected %q at %d, found %q", p.src, op, t.pos, t.text)
	}
	p.next()
	return nil
}

// ParseFormula parses src.
func ParseFormula(src string) (*Formula, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}

	resp, err := p.factor()
	if err != nil {
		return nil, err
	}
	if err := p.expect("~"); err != nil {
		return nil, err
	}

	f := &Formula{Source: src, Response: resp, Intercept: true}
	seen := make(map[string]int)
	sign := 1
	if p.isOp("-") {
		p.next()
		sign = -1
	} else if p.isOp("+") {
		p.next()
	}
	for {
		if t := p.peek(); t.kind == tokNumber && (t.text == "0" || t.text == "1") {
			p.next()
			// "+1" and "-0" keep the intercept, "-1" and "+0" drop it
			f.Intercept = (t.text == "1") == (sign > 0)
		} else {
			term, err := p.term()
			if err != nil {
				return nil, err
			}
			if sign > 0 {
				if _, dup := seen[term.Label]; !dup {
					seen[term.Label] = len(f.Terms)
					f.Terms = append(f.Terms, term)
				}
			} else if i, ok := seen[term.Label]; ok {
				f.Terms = append(f.Terms[:i], f.Terms[i+1:]...)
				delete(seen, term.Label)
				for k, j := range seen {
					if j > i {
						seen[k] = j - 1
					}
				}
			}
		}
		switch {
		case p.isOp("+"):
			p.next()
			sign = 1
		case p.isOp("-"):
			p.next()
			sign = -1
		case p.peek().kind == tokEOF:
			if len(f.Terms) == 0 && !f.Intercept {
				return nil, fmt.Errorf("formula %q: model has no terms", src)
			}
			return f, nil
		default:
			t := p.peek()
			return nil, fmt.Errorf("formula %q: unexpected %q at %d", src, t.text, t.pos)
		}
	}
}

func (p *parser) term() (Term, error) {
	start := p.peek().pos
	var factors []expr
	for {
		x, err := p.factor()
		if err != nil {
			return Term{}, err
		}
		factors = append(factors, x)
		if !p.isOp(":") {
			break
		}
		p.next()
	}
	end := p.peek().pos
	return Term{Label: strings.TrimSpace(p.src[start:end]), factors: factors}, nil
}

// factor is a variable or an I(...) block.
func (p *parser) factor() (expr, error) {
	t := p.next()
	if t.kind != tokIdent {
		return nil, fmt.Errorf("formula %q: expected a variable at %d, found %q", p.src, t.pos, t.text)
	}
	if t.text == "I" && p.isOp("(") {
		p.next()
		x, err := p.additive()
		if err != nil {
			return nil, err
		}
		return x, p.expect(")")
	}
	return variable(t.text), nil
}

func (p *parser) additive() (expr, error) {
	l, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.next().text[0]
		r, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		l = binary{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) multiplicative() (expr, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") {
		op := p.next().text[0]
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = binary{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) unary() (expr, error) {
	switch {
	case p.isOp("-"):
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return negate{x}, nil
	case p.isOp("+"):
		p.next()
		return p.unary()
	}
	return p.primary()
}

func (p *parser) primary() (expr, error) {
	t := p.peek()
	switch {
	case t.kind == tokNumber:
		p.next()
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("formula %q: bad number %q at %d", p.src, t.text, t.pos)
		}
		return number(v), nil
	case t.kind == tokIdent:
		return p.factor()
	case p.isOp("("):
		p.next()
		x, err := p.additive()
		if err != nil {
			return nil, err
		}
		return x, p.expect(")")
	}
	return nil, fmt.Errorf("formula %q: unexpected %q at %d", p.src, t.text, t.pos)
}
