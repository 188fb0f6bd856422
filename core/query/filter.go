package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/asaidimu/go-docstore/core/schema"
)

// Regex is the inline form of a $regex operand.
type Regex struct {
	Pattern string
	Options string
}

// logicalOperator compiles a top-level $-operator.
type logicalOperator func(c *FilterCompiler, operand any) (Expr, error)

// fieldOperator compiles one operator applied to a field. The whole operator
// document is passed so operators can read modifiers such as $options.
type fieldOperator func(c *FilterCompiler, f fieldRef, operand any, ops []schema.E) (Expr, error)

var (
	logicalOperators map[string]logicalOperator
	fieldOperators   map[string]fieldOperator
	// modifiers are consumed by another operator and compile to nothing.
	modifiers = map[string]bool{OpOptions: true}
)

func init() {
	logicalOperators = map[string]logicalOperator{
		OpAnd: compileAnd,
		OpOr:  compileOr,
		OpNor: compileNor,
		OpNot: compileNot,
	}

	fieldOperators = map[string]fieldOperator{
		OpEq:     comparison("="),
		OpGt:     comparison(">"),
		OpGte:    comparison(">="),
		OpLt:     comparison("<"),
		OpLte:    comparison("<="),
		OpNe:     compileNe,
		OpExists: compileExists,
		OpRegex:  compileRegex,
		OpIn:     compileIn,
		OpNin:    compileNin,
		OpSize:   compileSize,
		OpNot:    compileFieldNot,
	}
}

// FilterCompiler compiles a filter document into a boolean expression,
// adding every literal it meets to a BindingTable.
type FilterCompiler struct {
	keys     *schema.KeySchema
	bindings *BindingTable
	values   *schema.RowMarshaller
}

// NewFilterCompiler creates a compiler for a table with the given key schema.
// values normalizes bound literals the way rows are stored; nil uses the
// default marshalling options.
func NewFilterCompiler(keys *schema.KeySchema, bindings *BindingTable, values *schema.RowMarshaller) *FilterCompiler {
	if keys == nil {
		keys = schema.NewSimpleKey(schema.DefaultKeyColumn)
	}
	if values == nil {
		values = schema.NewRowMarshaller(keys, schema.MarshalOptions{})
	}
	return &FilterCompiler{keys: keys, bindings: bindings, values: values}
}

// CompileFilter compiles filter into predicate text, or "" when the filter
// is empty.
func CompileFilter(filter any, keys *schema.KeySchema, bindings *BindingTable) (string, error) {
	expr, err := NewFilterCompiler(keys, bindings, nil).Compile(filter)
	if err != nil {
		return "", err
	}
	return Render(expr), nil
}

// Compile returns the predicate for filter, or nil when the filter is absent
// or empty.
func (c *FilterCompiler) Compile(filter any) (Expr, error) {
	if filter == nil {
		return nil, nil
	}
	entries, ok := schema.Entries(filter)
	if !ok {
		return nil, invalidFilter("filter must be a document, got %T", filter)
	}
	return c.compileEntries(entries)
}

func (c *FilterCompiler) compileDocument(v any) (Expr, error) {
	entries, ok := schema.Entries(v)
	if !ok {
		return nil, invalidFilter("expected a filter document, got %s", fragment(v))
	}
	expr, err := c.compileEntries(entries)
	if err != nil {
		return nil, err
	}
	if expr == nil {
		return BoolLiteral(true), nil
	}
	return expr, nil
}

func (c *FilterCompiler) compileEntries(entries []schema.E) (Expr, error) {
	terms := make([]Expr, 0, len(entries))
	for _, e := range entries {
		term, err := c.compileEntry(e)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return And(terms...), nil
}

func (c *FilterCompiler) compileEntry(e schema.E) (Expr, error) {
	if strings.HasPrefix(e.Key, "$") {
		op, ok := logicalOperators[e.Key]
		if !ok {
			return nil, invalidFilter("unknown top-level operator %s in %s", e.Key, fragment(e))
		}
		return op(c, e.Value)
	}

	if e.Key == schema.IdentityField && !isOperatorDocument(e.Value) {
		return c.identityEquality(e.Value)
	}

	f, err := c.field(e.Key)
	if err != nil {
		return nil, err
	}

	if ops, ok := schema.Entries(e.Value); ok && isOperatorDocument(e.Value) {
		return c.compileFieldOperators(f, ops)
	}
	if regex, ok := asRegexValue(e.Value); ok {
		return c.regexPredicate(f, regex)
	}
	return c.equality(f, e.Value)
}

// compileFieldOperators AND-joins every operator applied to one field.
func (c *FilterCompiler) compileFieldOperators(f fieldRef, ops []schema.E) (Expr, error) {
	terms := make([]Expr, 0, len(ops))
	for _, op := range ops {
		if modifiers[op.Key] {
			continue
		}
		compile, ok := fieldOperators[op.Key]
		if !ok {
			return nil, fmt.Errorf("%w: %w: %s on field %q", ErrInvalidFilter, ErrUnsupportedOperator, op.Key, f.path)
		}
		term, err := compile(c, f, op.Value, ops)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if _, hasOptions := lookup(ops, OpOptions); hasOptions {
		if _, hasRegex := lookup(ops, OpRegex); !hasRegex {
			return nil, invalidFilter("%s without %s on field %q", OpOptions, OpRegex, f.path)
		}
	}
	return And(terms...), nil
}

// fieldRef is a field path resolved against the key schema.
type fieldRef struct {
	path string
	base string
	// key is set when the path addresses a physical key column. Key columns
	// hold a single value, so they are never flattened.
	key     bool
	segment []Segment
	column  string
}

func (c *FilterCompiler) field(path string) (fieldRef, error) {
	if path == "" {
		return fieldRef{}, invalidFilter("empty field path")
	}
	if path == schema.IdentityField {
		if c.keys.IsComposite {
			return fieldRef{}, invalidFilter("operators on %s are not supported with a composite key", schema.IdentityField)
		}
		col := c.keys.SimpleColumn()
		return fieldRef{path: path, base: col, key: true, column: col}, nil
	}
	if col, ok := identitySubfield(c.keys, path); ok {
		return fieldRef{path: path, base: col, key: true, column: col}, nil
	}
	return fieldRef{path: path, base: path, segment: ParsePath(path)}, nil
}

// columnExpr returns the column for comparisons; flatten is ignored for key columns.
func (f fieldRef) columnExpr(flatten bool) Column {
	if f.key {
		return KeyColumn(f.column)
	}
	return Column{Root: TableAlias, Segments: f.segment, Flatten: flatten}
}

// anyOp turns a comparison into its sequence form for flattened paths.
func (f fieldRef) anyOp(op string) string {
	if f.key {
		return op
	}
	return op + "any"
}

// bind normalizes and binds a literal for f.
func (c *FilterCompiler) bind(f fieldRef, v any) (Param, error) {
	value := c.values.EncodeValue(v)
	if f.path == schema.IdentityField {
		s, err := c.values.StringifyIdentity(v)
		if err != nil {
			return Param{}, invalidFilter("%v", err)
		}
		value = s
	}
	name, err := c.bindings.Add(f.base, value)
	if err != nil {
		return Param{}, err
	}
	return Param{Name: name}, nil
}

// equality matches a scalar stored either directly or inside an array.
// Documents and arrays match exactly.
func (c *FilterCompiler) equality(f fieldRef, v any) (Expr, error) {
	if v == nil {
		return Not{X: Exists{X: f.columnExpr(false)}}, nil
	}
	p, err := c.bind(f, v)
	if err != nil {
		return nil, err
	}
	if schema.IsDocument(v) || isArray(v) {
		return Binary{Op: "=", Left: f.columnExpr(false), Right: p}, nil
	}
	return Binary{Op: f.anyOp("="), Left: f.columnExpr(true), Right: p}, nil
}

// identityEquality compiles the identity shortcut against the key columns.
func (c *FilterCompiler) identityEquality(v any) (Expr, error) {
	if !c.keys.IsComposite {
		f, err := c.field(schema.IdentityField)
		if err != nil {
			return nil, err
		}
		p, err := c.bind(f, v)
		if err != nil {
			return nil, err
		}
		return Binary{Op: "=", Left: KeyColumn(f.column), Right: p}, nil
	}

	entries, ok := schema.Entries(v)
	if !ok {
		return nil, invalidFilter("composite key requires %s to be a document, got %s", schema.IdentityField, fragment(v))
	}
	present := make(map[string]any, len(entries))
	for _, e := range entries {
		if !c.keys.IsKeyColumn(e.Key) {
			return nil, invalidFilter("%s field %q is not part of the primary key", schema.IdentityField, e.Key)
		}
		present[e.Key] = e.Value
	}

	terms := make([]Expr, 0, len(present))
	for _, col := range c.keys.KeyColumns() {
		val, ok := present[col]
		if !ok {
			continue
		}
		name, err := c.bindings.Add(col, c.values.EncodeValue(val))
		if err != nil {
			return nil, err
		}
		terms = append(terms, Binary{Op: "=", Left: KeyColumn(col), Right: Param{Name: name}})
	}
	if len(terms) == 0 {
		return nil, invalidFilter("%s names no primary key field", schema.IdentityField)
	}
	return And(terms...), nil
}

func comparison(op string) fieldOperator {
	return func(c *FilterCompiler, f fieldRef, operand any, _ []schema.E) (Expr, error) {
		if op == "=" {
			return c.equality(f, operand)
		}
		if operand == nil || schema.IsDocument(operand) || isArray(operand) {
			return nil, invalidFilter("comparison on field %q needs a scalar operand, got %s", f.path, fragment(operand))
		}
		p, err := c.bind(f, operand)
		if err != nil {
			return nil, err
		}
		return Binary{Op: f.anyOp(op), Left: f.columnExpr(true), Right: p}, nil
	}
}

func compileNe(c *FilterCompiler, f fieldRef, operand any, _ []schema.E) (Expr, error) {
	if operand == nil {
		return Exists{X: f.columnExpr(false)}, nil
	}
	eq, err := c.equality(f, operand)
	if err != nil {
		return nil, err
	}
	return Not{X: eq}, nil
}

func compileExists(c *FilterCompiler, f fieldRef, operand any, _ []schema.E) (Expr, error) {
	want, ok := truthy(operand)
	if !ok {
		return nil, invalidFilter("%s on field %q expects a boolean, got %s", OpExists, f.path, fragment(operand))
	}
	exists := Exists{X: f.columnExpr(false)}
	if want {
		return exists, nil
	}
	return Not{X: exists}, nil
}

func compileRegex(c *FilterCompiler, f fieldRef, operand any, ops []schema.E) (Expr, error) {
	regex, ok := asRegex(operand)
	if !ok {
		return nil, invalidFilter("%s on field %q expects a pattern, got %s", OpRegex, f.path, fragment(operand))
	}
	if opts, ok := lookup(ops, OpOptions); ok {
		s, isString := opts.(string)
		if !isString {
			return nil, invalidFilter("%s on field %q expects a string", OpOptions, f.path)
		}
		regex.Options += s
	}
	return c.regexPredicate(f, regex)
}

func (c *FilterCompiler) regexPredicate(f fieldRef, regex Regex) (Expr, error) {
	name, err := c.bindings.Add(f.base, regex.Pattern)
	if err != nil {
		return nil, err
	}
	args := []Expr{f.columnExpr(false), Param{Name: name}}
	if flags := regexFlags(regex.Options); flags != "" {
		args = append(args, StringLiteral(flags))
	}
	return Call{Name: "regex_like", Args: args}, nil
}

// inTerms builds one equals-or-contains test per non-null element, plus a
// non-existence branch when the list holds null.
func (c *FilterCompiler) inTerms(op string, f fieldRef, operand any) ([]Expr, error) {
	items, ok := asArray(operand)
	if !ok {
		return nil, invalidFilter("%s on field %q expects an array, got %s", op, f.path, fragment(operand))
	}
	terms := make([]Expr, 0, len(items))
	hasNull := false
	for _, item := range items {
		if item == nil {
			hasNull = true
			continue
		}
		p, err := c.bind(f, item)
		if err != nil {
			return nil, err
		}
		terms = append(terms, Binary{Op: f.anyOp("="), Left: f.columnExpr(true), Right: p})
	}
	if hasNull {
		terms = append(terms, Not{X: Exists{X: f.columnExpr(false)}})
	}
	return terms, nil
}

func compileIn(c *FilterCompiler, f fieldRef, operand any, _ []schema.E) (Expr, error) {
	terms, err := c.inTerms(OpIn, f, operand)
	if err != nil {
		return nil, err
	}
	return Or(terms...), nil
}

func compileNin(c *FilterCompiler, f fieldRef, operand any, _ []schema.E) (Expr, error) {
	terms, err := c.inTerms(OpNin, f, operand)
	if err != nil {
		return nil, err
	}
	in := Or(terms...)
	if in == nil {
		return nil, nil
	}
	return Not{X: in}, nil
}

func compileSize(c *FilterCompiler, f fieldRef, operand any, _ []schema.E) (Expr, error) {
	n, ok := ToInt(operand)
	if !ok || n < 0 {
		return nil, invalidFilter("%s on field %q expects a non-negative integer, got %s", OpSize, f.path, fragment(operand))
	}
	return Binary{
		Op:    "=",
		Left:  Call{Name: "size", Args: []Expr{f.columnExpr(false)}},
		Right: NumberLiteral(n),
	}, nil
}

func compileFieldNot(c *FilterCompiler, f fieldRef, operand any, _ []schema.E) (Expr, error) {
	if regex, ok := asRegexValue(operand); ok {
		inner, err := c.regexPredicate(f, regex)
		if err != nil {
			return nil, err
		}
		return Not{X: inner}, nil
	}
	ops, ok := schema.Entries(operand)
	if !ok || len(ops) == 0 || !isOperatorDocument(operand) {
		return nil, invalidFilter("%s on field %q expects an operator document, got %s", OpNot, f.path, fragment(operand))
	}
	inner, err := c.compileFieldOperators(f, ops)
	if err != nil {
		return nil, err
	}
	if inner == nil {
		return nil, nil
	}
	return Not{X: inner}, nil
}

func (c *FilterCompiler) children(op string, operand any) ([]Expr, error) {
	items, ok := asArray(operand)
	if !ok {
		return nil, invalidFilter("%s expects an array, got %s", op, fragment(operand))
	}
	if len(items) == 0 {
		return nil, invalidFilter("%s expects a non-empty array", op)
	}
	out := make([]Expr, 0, len(items))
	for _, item := range items {
		expr, err := c.compileDocument(item)
		if err != nil {
			return nil, err
		}
		out = append(out, expr)
	}
	return out, nil
}

func compileAnd(c *FilterCompiler, operand any) (Expr, error) {
	children, err := c.children(OpAnd, operand)
	if err != nil {
		return nil, err
	}
	return And(children...), nil
}

func compileOr(c *FilterCompiler, operand any) (Expr, error) {
	children, err := c.children(OpOr, operand)
	if err != nil {
		return nil, err
	}
	return Or(children...), nil
}

func compileNor(c *FilterCompiler, operand any) (Expr, error) {
	children, err := c.children(OpNor, operand)
	if err != nil {
		return nil, err
	}
	return Not{X: Or(children...)}, nil
}

// compileNot negates the conjunction of its children. Children that add no
// predicate are dropped, and a $not left with nothing to negate adds none.
func compileNot(c *FilterCompiler, operand any) (Expr, error) {
	items := []any{operand}
	if isArray(operand) {
		items, _ = asArray(operand)
		if len(items) == 0 {
			return nil, invalidFilter("%s expects a non-empty array", OpNot)
		}
	}
	terms := make([]Expr, 0, len(items))
	for _, item := range items {
		entries, ok := schema.Entries(item)
		if !ok {
			return nil, invalidFilter("expected a filter document, got %s", fragment(item))
		}
		term, err := c.compileEntries(entries)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	inner := And(terms...)
	if inner == nil {
		return nil, nil
	}
	return Not{X: inner}, nil
}

// isOperatorDocument reports whether v is a non-empty document whose keys
// all start with '$'.
func isOperatorDocument(v any) bool {
	entries, ok := schema.Entries(v)
	if !ok || len(entries) == 0 {
		return false
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Key, "$") {
			return false
		}
	}
	return true
}

func lookup(entries []schema.E, key string) (any, bool) {
	for _, e := range entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// asRegex accepts a pattern string or a compiled pattern.
func asRegex(v any) (Regex, bool) {
	if s, ok := v.(string); ok {
		return Regex{Pattern: s}, true
	}
	return asRegexValue(v)
}

// asRegexValue accepts only values that are patterns by type, so a bare
// string stays an equality operand.
func asRegexValue(v any) (Regex, bool) {
	switch r := v.(type) {
	case Regex:
		return r, true
	case *Regex:
		if r != nil {
			return *r, true
		}
	case *regexp.Regexp:
		if r != nil {
			return Regex{Pattern: r.String()}, true
		}
	}
	return Regex{}, false
}

// regexFlags keeps the options the store understands, in a stable order.
func regexFlags(options string) string {
	var flags string
	if strings.Contains(options, "i") {
		flags += "i"
	}
	if strings.Contains(options, "s") {
		flags += "s"
	}
	return flags
}

func truthy(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	if IsNumeric(v) {
		f, _ := ToFloat64(v)
		return f != 0, true
	}
	return false, false
}

func isArray(v any) bool {
	_, ok := asArray(v)
	return ok
}

// asArray accepts the slice shapes callers commonly build filters from.
func asArray(v any) ([]any, bool) {
	switch a := v.(type) {
	case []any:
		return a, true
	case []schema.D:
		out := make([]any, len(a))
		for i, x := range a {
			out[i] = x
		}
		return out, true
	case []schema.Document:
		out := make([]any, len(a))
		for i, x := range a {
			out[i] = x
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(a))
		for i, x := range a {
			out[i] = x
		}
		return out, true
	case []string:
		out := make([]any, len(a))
		for i, x := range a {
			out[i] = x
		}
		return out, true
	case []int:
		out := make([]any, len(a))
		for i, x := range a {
			out[i] = x
		}
		return out, true
	}
	return nil, false
}
