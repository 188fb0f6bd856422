package query

import (
	"strings"
)

// Expr is a node of the intermediate expression tree. Compilers build trees
// and Render turns them into statement text in one pass.
type Expr interface {
	writeTo(sb *strings.Builder)
}

// Render returns the statement text of e, or "" for a nil expression.
func Render(e Expr) string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	e.writeTo(&sb)
	return sb.String()
}

// Literal is raw statement text.
type Literal struct {
	Text string
}

func (l Literal) writeTo(sb *strings.Builder) { sb.WriteString(l.Text) }

// StringLiteral returns a double-quoted, escaped string literal.
func StringLiteral(s string) Literal {
	return Literal{Text: quote(s)}
}

// NumberLiteral returns a numeric literal.
func NumberLiteral(v any) Literal {
	return Literal{Text: numberLiteral(v)}
}

// BoolLiteral returns true or false.
func BoolLiteral(b bool) Literal {
	if b {
		return Literal{Text: "true"}
	}
	return Literal{Text: "false"}
}

// Param references a bind variable.
type Param struct {
	Name string
}

func (p Param) writeTo(sb *strings.Builder) { sb.WriteString(p.Name) }

// Segment is one step of a column path: a named property or an array index.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

// Column is a path rooted at the table alias or at a context variable.
// Flatten appends the array-flatten marker so a scalar and an array holding
// that scalar are matched alike.
type Column struct {
	Root     string
	Segments []Segment
	Flatten  bool
}

func (c Column) writeTo(sb *strings.Builder) {
	sb.WriteString(c.Root)
	for _, s := range c.Segments {
		if s.IsIndex {
			sb.WriteByte('[')
			sb.WriteString(numberLiteral(s.Index))
			sb.WriteByte(']')
			continue
		}
		sb.WriteByte('.')
		sb.WriteString(quote(s.Name))
	}
	if c.Flatten {
		sb.WriteString("[]")
	}
}

// Binary is an infix operation. Grouped wraps it in parentheses, which
// arithmetic operands need when nested.
type Binary struct {
	Op      string
	Left    Expr
	Right   Expr
	Grouped bool
}

func (b Binary) writeTo(sb *strings.Builder) {
	if b.Grouped {
		sb.WriteByte('(')
	}
	b.Left.writeTo(sb)
	sb.WriteByte(' ')
	sb.WriteString(b.Op)
	sb.WriteByte(' ')
	b.Right.writeTo(sb)
	if b.Grouped {
		sb.WriteByte(')')
	}
}

// Call is a function call.
type Call struct {
	Name string
	Args []Expr
}

func (c Call) writeTo(sb *strings.Builder) {
	sb.WriteString(c.Name)
	sb.WriteByte('(')
	for i, a := range c.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		a.writeTo(sb)
	}
	sb.WriteByte(')')
}

// Junction joins terms with AND or OR. A single term renders bare; an empty
// junction renders as its identity element.
type Junction struct {
	Op    string
	Terms []Expr
}

// And joins terms with AND, dropping nil terms.
func And(terms ...Expr) Expr {
	return newJunction("AND", terms)
}

// Or joins terms with OR, dropping nil terms.
func Or(terms ...Expr) Expr {
	return newJunction("OR", terms)
}

func newJunction(op string, terms []Expr) Expr {
	kept := make([]Expr, 0, len(terms))
	for _, t := range terms {
		if t != nil {
			kept = append(kept, t)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return Junction{Op: op, Terms: kept}
}

func (j Junction) writeTo(sb *strings.Builder) {
	switch len(j.Terms) {
	case 0:
		if j.Op == "OR" {
			sb.WriteString("false")
		} else {
			sb.WriteString("true")
		}
		return
	case 1:
		j.Terms[0].writeTo(sb)
		return
	}
	sb.WriteByte('(')
	for i, t := range j.Terms {
		if i > 0 {
			sb.WriteByte(' ')
			sb.WriteString(j.Op)
			sb.WriteByte(' ')
		}
		t.writeTo(sb)
	}
	sb.WriteByte(')')
}

// Not negates its operand.
type Not struct {
	X Expr
}

func (n Not) writeTo(sb *strings.Builder) {
	sb.WriteString("NOT ")
	if j, ok := n.X.(Junction); ok && len(j.Terms) > 1 {
		j.writeTo(sb)
		return
	}
	sb.WriteByte('(')
	n.X.writeTo(sb)
	sb.WriteByte(')')
}

// Exists tests for the presence of a path.
type Exists struct {
	X Expr
}

func (e Exists) writeTo(sb *strings.Builder) {
	sb.WriteString("EXISTS ")
	e.X.writeTo(sb)
}

// Case is a two-way conditional.
type Case struct {
	When Expr
	Then Expr
	Else Expr
}

func (c Case) writeTo(sb *strings.Builder) {
	sb.WriteString("CASE WHEN ")
	c.When.writeTo(sb)
	sb.WriteString(" THEN ")
	c.Then.writeTo(sb)
	sb.WriteString(" ELSE ")
	c.Else.writeTo(sb)
	sb.WriteString(" END")
}

// Field is one member of an object constructor.
type Field struct {
	Name  string
	Value Expr
}

// Object is a JSON object constructor.
type Object struct {
	Fields []Field
}

func (o Object) writeTo(sb *strings.Builder) {
	sb.WriteByte('{')
	for i, f := range o.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quote(f.Name))
		sb.WriteString(": ")
		f.Value.writeTo(sb)
	}
	sb.WriteByte('}')
}

// Array is a JSON array constructor.
type Array struct {
	Items []Expr
}

func (a Array) writeTo(sb *strings.Builder) {
	sb.WriteByte('[')
	for i, x := range a.Items {
		if i > 0 {
			sb.WriteString(", ")
		}
		x.writeTo(sb)
	}
	sb.WriteByte(']')
}

// Aliased names a select column.
type Aliased struct {
	X     Expr
	Alias string
}

func (a Aliased) writeTo(sb *strings.Builder) {
	a.X.writeTo(sb)
	sb.WriteString(" AS ")
	sb.WriteString(quote(a.Alias))
}

// quote renders s as a double-quoted identifier or string literal.
func quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
