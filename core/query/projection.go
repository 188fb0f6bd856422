package query

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-docstore/core/schema"
)

// variadic marks an operator without an upper argument bound.
const variadic = -1

// projectionOperator is one entry of the computed-field sublanguage.
type projectionOperator struct {
	min, max int
	render   func(args []Expr) Expr
}

var projectionOperators map[string]projectionOperator

func init() {
	projectionOperators = map[string]projectionOperator{
		"$add":              {2, variadic, chain("+")},
		"$multiply":         {2, variadic, chain("*")},
		"$subtract":         {2, 2, chain("-")},
		"$divide":           {2, 2, chain("/")},
		"$mod":              {2, 2, function("mod")},
		"$abs":              {1, 1, function("abs")},
		"$ceil":             {1, 1, function("ceil")},
		"$floor":            {1, 1, function("floor")},
		"$round":            {1, 2, function("round")},
		"$trunc":            {1, 2, function("trunc")},
		"$exp":              {1, 1, function("exp")},
		"$log":              {2, 2, function("log")},
		"$ln":               {1, 1, function("ln")},
		"$log10":            {1, 1, function("log10")},
		"$pow":              {2, 2, function("power")},
		"$sqrt":             {1, 1, function("sqrt")},
		"$cos":              {1, 1, function("cos")},
		"$sin":              {1, 1, function("sin")},
		"$tan":              {1, 1, function("tan")},
		"$acos":             {1, 1, function("acos")},
		"$asin":             {1, 1, function("asin")},
		"$atan":             {1, 1, function("atan")},
		"$atan2":            {2, 2, function("atan2")},
		"$radiansToDegrees": {1, 1, function("degrees")},
		"$degreesToRadians": {1, 1, function("radians")},
		"$rand":             {0, 0, function("rand")},
		"$eq":               {2, 2, chain("=")},
		"$ne":               {2, 2, chain("!=")},
		"$gt":               {2, 2, chain(">")},
		"$gte":              {2, 2, chain(">=")},
		"$lt":               {2, 2, chain("<")},
		"$lte":              {2, 2, chain("<=")},
		"$and":              {1, variadic, func(args []Expr) Expr { return Junction{Op: "AND", Terms: args} }},
		"$or":               {1, variadic, func(args []Expr) Expr { return Junction{Op: "OR", Terms: args} }},
		"$not":              {1, 1, func(args []Expr) Expr { return Not{X: args[0]} }},
		"$concat":           {1, variadic, function("concat")},
		"$substrCP":         {3, 3, function("substring")},
		"$toUpper":          {1, 1, function("upper")},
		"$toLower":          {1, 1, function("lower")},
		"$trim":             {1, 2, trim("both")},
		"$ltrim":            {1, 2, trim("leading")},
		"$rtrim":            {1, 2, trim("trailing")},
		"$strLenCP":         {1, 1, function("length")},
		"$indexOfCP":        {2, 3, function("index_of")},
	}
}

func function(name string) func([]Expr) Expr {
	return func(args []Expr) Expr { return Call{Name: name, Args: args} }
}

// chain left-folds args with an infix operator and parenthesizes the result.
func chain(op string) func([]Expr) Expr {
	return func(args []Expr) Expr {
		acc := args[0]
		for _, a := range args[1:] {
			acc = Binary{Op: op, Left: acc, Right: a}
		}
		b := acc.(Binary)
		b.Grouped = true
		return b
	}
}

func trim(where string) func([]Expr) Expr {
	return func(args []Expr) Expr {
		if len(args) == 1 && where == "both" {
			return Call{Name: "trim", Args: args}
		}
		out := []Expr{args[0], StringLiteral(where)}
		return Call{Name: "trim", Args: append(out, args[1:]...)}
	}
}

type projectionMode int

const (
	modeBranch projectionMode = iota
	modeInclude
	modeExclude
	modeComputed
)

// projectionNode is one segment of the inclusion/exclusion tree.
type projectionNode struct {
	name     string
	mode     projectionMode
	value    any
	children []*projectionNode
	index    map[string]*projectionNode
}

func newProjectionNode(name string) *projectionNode {
	return &projectionNode{name: name, index: map[string]*projectionNode{}}
}

func (n *projectionNode) child(name string) *projectionNode {
	return n.index[name]
}

// ProjectionCompiler compiles projection documents into select columns.
type ProjectionCompiler struct {
	keys    *schema.KeySchema
	catalog *schema.SchemaDefinition
}

// NewProjectionCompiler creates a compiler. catalog may be nil; exclusion
// projections then fail with ErrMissingSchema.
func NewProjectionCompiler(keys *schema.KeySchema, catalog *schema.SchemaDefinition) *ProjectionCompiler {
	if keys == nil {
		keys = schema.NewSimpleKey(schema.DefaultKeyColumn)
	}
	return &ProjectionCompiler{keys: keys, catalog: catalog}
}

// CompileProjection returns the select-column text for spec.
func CompileProjection(spec any, catalog *schema.SchemaDefinition, keys *schema.KeySchema) (string, error) {
	return NewProjectionCompiler(keys, catalog).Compile(spec)
}

// Compile returns the select-column text, "*" when every column is selected.
func (c *ProjectionCompiler) Compile(spec any) (string, error) {
	cols, err := c.Columns(spec)
	if err != nil {
		return "", err
	}
	if cols == nil {
		return "*", nil
	}
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = Render(col)
	}
	return strings.Join(parts, ", "), nil
}

// Columns returns the aliased select columns, or nil when whole rows are
// selected.
func (c *ProjectionCompiler) Columns(spec any) ([]Expr, error) {
	if spec == nil {
		return nil, nil
	}
	entries, ok := schema.Entries(spec)
	if !ok {
		return nil, invalidProjection("projection must be a document, got %T", spec)
	}

	root := newProjectionNode("")
	includeID := true
	explicitID := false
	for _, e := range entries {
		if e.Key == schema.IdentityField {
			include, ok := truthy(e.Value)
			if !ok {
				return nil, invalidProjection("%s accepts only 1/0 or true/false, got %s", schema.IdentityField, fragment(e.Value))
			}
			includeID, explicitID = include, true
			continue
		}
		if err := c.insert(root, e.Key, e.Value); err != nil {
			return nil, err
		}
	}

	included, excluded := countModes(root)
	switch {
	case included > 0 && excluded > 0:
		return nil, invalidProjection("cannot mix inclusion and exclusion in %s", fragment(spec))
	case included > 0:
		return c.inclusion(root, includeID)
	case excluded > 0:
		return c.exclusion(root, includeID)
	case explicitID && includeID:
		return c.identityColumns(), nil
	case explicitID:
		return c.exclusion(root, false)
	case c.catalog != nil:
		return c.exclusion(root, true)
	}
	return nil, nil
}

// insert adds a dot path to the tree, expanding nested projection documents.
func (c *ProjectionCompiler) insert(root *projectionNode, path string, value any) error {
	mode, err := leafMode(value)
	if err != nil {
		return fmt.Errorf("%w (field %q)", err, path)
	}
	if mode == modeBranch {
		entries, _ := schema.Entries(value)
		if len(entries) == 0 {
			return invalidProjection("empty sub-projection for %q", path)
		}
		for _, e := range entries {
			if err := c.insert(root, path+"."+e.Key, e.Value); err != nil {
				return err
			}
		}
		return nil
	}

	node := root
	segments := strings.Split(path, ".")
	for i, name := range segments {
		if name == "" {
			return invalidProjection("invalid field path %q", path)
		}
		next := node.child(name)
		last := i == len(segments)-1
		switch {
		case next == nil:
			next = newProjectionNode(name)
			node.index[name] = next
			node.children = append(node.children, next)
			if last {
				next.mode, next.value = mode, value
			}
		case last || next.mode != modeBranch:
			return invalidProjection("path collision at %q", path)
		}
		node = next
	}
	return nil
}

// leafMode classifies a projection value. modeBranch means a nested
// projection document.
func leafMode(value any) (projectionMode, error) {
	if b, ok := truthy(value); ok {
		if b {
			return modeInclude, nil
		}
		return modeExclude, nil
	}
	if isOperatorDocument(value) {
		return modeComputed, nil
	}
	if entries, ok := schema.Entries(value); ok {
		for _, e := range entries {
			if strings.HasPrefix(e.Key, "$") {
				return 0, invalidProjection("operator document must have a single operator, got %s", fragment(value))
			}
		}
		return modeBranch, nil
	}
	switch value.(type) {
	case string, nil:
		return modeComputed, nil
	}
	return 0, invalidProjection("unsupported projection value %s", fragment(value))
}

func countModes(n *projectionNode) (included, excluded int) {
	for _, ch := range n.children {
		switch ch.mode {
		case modeInclude, modeComputed:
			included++
		case modeExclude:
			excluded++
		default:
			i, e := countModes(ch)
			included += i
			excluded += e
		}
	}
	return included, excluded
}

func (c *ProjectionCompiler) identityColumns() []Expr {
	cols := make([]Expr, 0, len(c.keys.KeyColumns()))
	for _, col := range c.keys.KeyColumns() {
		cols = append(cols, Aliased{X: KeyColumn(col), Alias: col})
	}
	return cols
}

func (c *ProjectionCompiler) inclusion(root *projectionNode, includeID bool) ([]Expr, error) {
	var cols []Expr
	if includeID {
		cols = c.identityColumns()
	}
	for _, ch := range root.children {
		if includeID && c.keys.IsKeyColumn(ch.name) {
			if ch.mode == modeInclude {
				continue
			}
			return nil, invalidProjection("field %q is a key column and is already selected", ch.name)
		}
		expr, err := c.includedExpr(ch, Column{Root: TableAlias})
		if err != nil {
			return nil, err
		}
		cols = append(cols, Aliased{X: expr, Alias: ch.name})
	}
	return cols, nil
}

func (c *ProjectionCompiler) includedExpr(n *projectionNode, parent Column) (Expr, error) {
	col := appendSegment(parent, n.name)
	switch n.mode {
	case modeInclude:
		return col, nil
	case modeComputed:
		return c.operand(n.value)
	}
	obj := Object{Fields: make([]Field, 0, len(n.children))}
	for _, ch := range n.children {
		expr, err := c.includedExpr(ch, col)
		if err != nil {
			return nil, err
		}
		obj.Fields = append(obj.Fields, Field{Name: ch.name, Value: expr})
	}
	return obj, nil
}

func (c *ProjectionCompiler) exclusion(root *projectionNode, includeID bool) ([]Expr, error) {
	if c.catalog == nil {
		return nil, fmt.Errorf("%w: exclusion projection needs a field catalog", ErrMissingSchema)
	}
	var cols []Expr
	if includeID {
		cols = c.identityColumns()
	}
	for _, name := range schema.SortedFieldNames(c.catalog.Fields) {
		if name == schema.IdentityField || name == schema.VersionField || c.keys.IsKeyColumn(name) {
			continue
		}
		expr, keep, err := c.remainder(c.catalog.Fields[name], root.child(name), Column{Root: TableAlias}, name)
		if err != nil {
			return nil, err
		}
		if keep {
			cols = append(cols, Aliased{X: expr, Alias: name})
		}
	}
	return cols, nil
}

// remainder returns what is left of a catalog field after the exclusions
// under node. keep is false when the field is excluded entirely.
func (c *ProjectionCompiler) remainder(def *schema.FieldDefinition, node *projectionNode, parent Column, name string) (Expr, bool, error) {
	col := appendSegment(parent, name)
	switch {
	case node == nil:
		return col, true, nil
	case node.mode == modeExclude:
		return nil, false, nil
	case def == nil || !def.IsEmbedded():
		return nil, false, fmt.Errorf("%w: field %q declares no nested fields to exclude from", ErrMissingSchema, name)
	}

	if def.IsArray() {
		item, err := c.remainderObject(def.Fields, node, Column{Root: ContextRoot})
		if err != nil {
			return nil, false, err
		}
		col.Flatten = true
		return Array{Items: []Expr{Call{Name: "seq_transform", Args: []Expr{col, item}}}}, true, nil
	}
	obj, err := c.remainderObject(def.Fields, node, col)
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

func (c *ProjectionCompiler) remainderObject(fields map[string]*schema.FieldDefinition, node *projectionNode, base Column) (Object, error) {
	obj := Object{}
	for _, name := range schema.SortedFieldNames(fields) {
		var child *projectionNode
		if node != nil {
			child = node.child(name)
		}
		expr, keep, err := c.remainder(fields[name], child, base, name)
		if err != nil {
			return Object{}, err
		}
		if keep {
			obj.Fields = append(obj.Fields, Field{Name: name, Value: expr})
		}
	}
	return obj, nil
}

// operand resolves one value of the computed-field sublanguage.
func (c *ProjectionCompiler) operand(v any) (Expr, error) {
	switch val := v.(type) {
	case nil:
		return Literal{Text: "null"}, nil
	case bool:
		return BoolLiteral(val), nil
	case string:
		if ref, ok := strings.CutPrefix(val, PathReference); ok && ref != "" {
			if ref == schema.IdentityField && !c.keys.IsComposite {
				return KeyColumn(c.keys.SimpleColumn()), nil
			}
			return FieldColumn(ref, false), nil
		}
		return StringLiteral(val), nil
	}
	if IsNumeric(v) {
		return NumberLiteral(v), nil
	}

	entries, ok := schema.Entries(v)
	if !ok || len(entries) != 1 {
		return nil, invalidProjection("expected a single-operator document, got %s", fragment(v))
	}
	name, operand := entries[0].Key, entries[0].Value
	op, ok := projectionOperators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrInvalidProjection, ErrUnsupportedOperator, name)
	}

	var raw []any
	if items, isArray := asArray(operand); isArray {
		raw = items
	} else if entries, isDoc := schema.Entries(operand); isDoc && len(entries) == 0 {
		raw = nil
	} else {
		raw = []any{operand}
	}
	if len(raw) < op.min || (op.max != variadic && len(raw) > op.max) {
		return nil, invalidProjection("%s %s, got %s", name, arityText(op), fragment(operand))
	}

	args := make([]Expr, len(raw))
	for i, r := range raw {
		arg, err := c.operand(r)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}
	return op.render(args), nil
}

func arityText(op projectionOperator) string {
	switch {
	case op.max == variadic:
		return fmt.Sprintf("expects at least %d arguments", op.min)
	case op.min == op.max:
		return fmt.Sprintf("expects %d arguments", op.min)
	}
	return fmt.Sprintf("expects %d to %d arguments", op.min, op.max)
}

func appendSegment(parent Column, name string) Column {
	segments := make([]Segment, len(parent.Segments), len(parent.Segments)+1)
	copy(segments, parent.Segments)
	return Column{Root: parent.Root, Segments: append(segments, ParsePath(name)...)}
}
