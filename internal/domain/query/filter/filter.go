// Package filter parses the restricted predicate grammar used by search
// requests: `(column operator value)` clauses joined by `and`/`or`.
// Operators are the symbolic tokens lt, gt, le, ge, eq, ne and ct
// (contains), standing in for comparison symbols that transport-level
// query strings strip. The parser produces a typed immutable tree; raw
// predicate text never reaches a storage backend.
package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/stellarlab/lcsearch/internal/domain"
	"github.com/stellarlab/lcsearch/internal/domain/collection/column"
)

// Op is a comparison operator token.
type Op string

const (
	OpLT Op = "lt"
	OpGT Op = "gt"
	OpLE Op = "le"
	OpGE Op = "ge"
	OpEQ Op = "eq"
	OpNE Op = "ne"
	OpCT Op = "ct" // substring contains, string columns only
)

// IsValid checks if the operator token is part of the grammar.
func (o Op) IsValid() bool {
	switch o {
	case OpLT, OpGT, OpLE, OpGE, OpEQ, OpNE, OpCT:
		return true
	}
	return false
}

// BoolOp joins clauses in a group.
type BoolOp string

const (
	BoolAnd BoolOp = "and"
	BoolOr  BoolOp = "or"
)

// Node is a node of the parsed filter tree: either a Comparison leaf or a
// Group of two or more children.
type Node interface {
	// Canonical returns a stable textual form used for fingerprinting.
	Canonical() string
	// Columns appends the referenced column names to dst.
	Columns(dst []string) []string
}

// Comparison is a typed leaf clause.
type Comparison struct {
	col     string
	colType column.Type
	op      Op
	strVal  string
	numVal  float64
}

// Col returns the column name.
func (c *Comparison) Col() string { return c.col }

// Op returns the comparison operator.
func (c *Comparison) Operator() Op { return c.op }

// IsNumeric reports whether the comparison value is numeric.
func (c *Comparison) IsNumeric() bool { return c.colType.IsNumeric() }

// StringValue returns the string literal for string-typed comparisons.
func (c *Comparison) StringValue() string { return c.strVal }

// NumericValue returns the parsed literal for numeric comparisons.
func (c *Comparison) NumericValue() float64 { return c.numVal }

// Canonical implements Node.
func (c *Comparison) Canonical() string {
	if c.colType.IsNumeric() {
		return fmt.Sprintf("(%s %s %s)", c.col, c.op, strconv.FormatFloat(c.numVal, 'g', -1, 64))
	}
	return fmt.Sprintf("(%s %s %q)", c.col, c.op, c.strVal)
}

// Columns implements Node.
func (c *Comparison) Columns(dst []string) []string { return append(dst, c.col) }

// Group joins child nodes with a boolean operator. Left-associative: a
// mixed `and`/`or` chain parses into nested two-child groups.
type Group struct {
	boolOp   BoolOp
	children []Node
}

// BoolOperator returns the joining operator.
func (g *Group) BoolOperator() BoolOp { return g.boolOp }

// Children returns the child nodes.
func (g *Group) Children() []Node { return g.children }

// Canonical implements Node.
func (g *Group) Canonical() string {
	parts := make([]string, len(g.children))
	for i, ch := range g.children {
		parts[i] = ch.Canonical()
	}
	return "(" + strings.Join(parts, " "+string(g.boolOp)+" ") + ")"
}

// Columns implements Node.
func (g *Group) Columns(dst []string) []string {
	for _, ch := range g.children {
		dst = ch.Columns(dst)
	}
	return dst
}

// ColumnsOf returns the sorted, deduplicated column names referenced by a
// tree. Nil-safe.
func ColumnsOf(n Node) []string {
	if n == nil {
		return nil
	}
	cols := n.Columns(nil)
	sort.Strings(cols)
	out := cols[:0]
	for i, c := range cols {
		if i == 0 || cols[i-1] != c {
			out = append(out, c)
		}
	}
	return out
}

// Resolver locates a column definition in the schema union of the
// selected collections.
type Resolver func(name string) (column.Column, bool)

// Parse turns a predicate string into a typed tree, validating every
// clause against the schema. An empty input returns (nil, nil).
func Parse(input string, resolve Resolver) (Node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	p := &parser{toks: tokenize(input), resolve: resolve}
	node, err := p.parseChain()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, domain.NewFilterSyntax(p.rest(), "unexpected trailing input")
	}
	return node, nil
}

type parser struct {
	toks    []string
	pos     int
	resolve Resolver
}

func (p *parser) eof() bool { return p.pos >= len(p.toks) }

func (p *parser) rest() string { return strings.Join(p.toks[p.pos:], " ") }

func (p *parser) next() (string, bool) {
	if p.eof() {
		return "", false
	}
	t := p.toks[p.pos]
	p.pos++
	return t, true
}

func (p *parser) peek() string {
	if p.eof() {
		return ""
	}
	return p.toks[p.pos]
}

// parseChain reads `clause (and|or clause)*`, folding left so that a
// mixed chain keeps its evaluation order.
func (p *parser) parseChain() (Node, error) {
	left, err := p.parseClause()
	if err != nil {
		return nil, err
	}

	for !p.eof() {
		joiner := p.peek()
		if joiner != string(BoolAnd) && joiner != string(BoolOr) {
			break
		}
		p.pos++

		right, err := p.parseClause()
		if err != nil {
			return nil, err
		}

		op := BoolOp(joiner)
		if g, ok := left.(*Group); ok && g.boolOp == op {
			g.children = append(g.children, right)
		} else {
			left = &Group{boolOp: op, children: []Node{left, right}}
		}
	}
	return left, nil
}

// parseClause reads one `( column op value )` leaf.
func (p *parser) parseClause() (Node, error) {
	open, ok := p.next()
	if !ok {
		return nil, domain.NewFilterSyntax("", "expected a clause, got end of input")
	}
	if open != "(" {
		return nil, domain.NewFilterSyntax(open, "expected opening parenthesis")
	}

	var parts []string
	for {
		tok, ok := p.next()
		if !ok {
			return nil, domain.NewFilterSyntax("("+strings.Join(parts, " "), "unterminated clause")
		}
		if tok == ")" {
			break
		}
		if tok == "(" {
			return nil, domain.NewFilterSyntax("("+strings.Join(parts, " "), "nested parenthesis inside clause")
		}
		parts = append(parts, tok)
	}

	clause := "(" + strings.Join(parts, " ") + ")"
	if len(parts) < 3 {
		return nil, domain.NewFilterSyntax(clause, "clause needs column, operator and value")
	}

	col := parts[0]
	op := Op(parts[1])
	rawVal := strings.Join(parts[2:], " ")

	if !op.IsValid() {
		return nil, domain.NewFilterSyntax(clause, fmt.Sprintf("unknown operator %q", parts[1]))
	}

	def, ok := p.resolve(col)
	if !ok {
		return nil, domain.NewFilterSyntax(clause, fmt.Sprintf("unknown column %q", col))
	}

	return newComparison(clause, def, op, rawVal)
}

func newComparison(clause string, def column.Column, op Op, rawVal string) (Node, error) {
	cmp := &Comparison{col: def.Name(), colType: def.ColType(), op: op}

	if def.ColType().IsNumeric() {
		if op == OpCT {
			return nil, domain.NewFilterSyntax(clause,
				fmt.Sprintf("operator ct is not allowed on numeric column %q", def.Name()))
		}
		v, err := strconv.ParseFloat(rawVal, 64)
		if err != nil {
			return nil, domain.NewFilterSyntax(clause,
				fmt.Sprintf("non-numeric literal %q for numeric column %q", rawVal, def.Name()))
		}
		cmp.numVal = v
		return cmp, nil
	}

	cmp.strVal = unquote(rawVal)
	return cmp, nil
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// tokenize splits the input on whitespace, keeping parentheses as their
// own tokens and single- or double-quoted strings whole.
func tokenize(input string) []string {
	var toks []string
	var cur strings.Builder
	var quote byte

	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(input); i++ {
		ch := input[i]
		switch {
		case quote != 0:
			cur.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
			cur.WriteByte(ch)
		case ch == '(' || ch == ')':
			flush()
			toks = append(toks, string(ch))
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	flush()
	return toks
}
