package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/asaidimu/go-docstore/core/schema"
)

// updateOperator compiles the operand document of one update operator into
// mutation clauses.
type updateOperator func(c *UpdateCompiler, fields []schema.E) ([]Expr, error)

var updateOperators map[string]updateOperator

func init() {
	updateOperators = map[string]updateOperator{
		OpSet:         compileSet,
		OpUnset:       compileUnset,
		OpCurrentDate: compileCurrentDate,
		OpInc:         arithmetic(OpInc, "+"),
		OpMul:         arithmetic(OpMul, "*"),
		OpMin:         conditional(OpMin, ">"),
		OpMax:         conditional(OpMax, "<"),
		OpRename:      compileRename,
	}
}

// UpdateCompiler compiles an update document into the clause list of an
// UPDATE statement.
type UpdateCompiler struct {
	keys     *schema.KeySchema
	bindings *BindingTable
	values   *schema.RowMarshaller
}

// NewUpdateCompiler creates a compiler binding $set values into bindings.
func NewUpdateCompiler(keys *schema.KeySchema, bindings *BindingTable, values *schema.RowMarshaller) *UpdateCompiler {
	if keys == nil {
		keys = schema.NewSimpleKey(schema.DefaultKeyColumn)
	}
	if values == nil {
		values = schema.NewRowMarshaller(keys, schema.MarshalOptions{})
	}
	return &UpdateCompiler{keys: keys, bindings: bindings, values: values}
}

// Compile returns the comma-joined clause text for update.
func (c *UpdateCompiler) Compile(update any) (string, error) {
	clauses, err := c.Clauses(update)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(clauses))
	for i, cl := range clauses {
		parts[i] = Render(cl)
	}
	return strings.Join(parts, ", "), nil
}

// Clauses compiles update operator by operator, in document order.
func (c *UpdateCompiler) Clauses(update any) ([]Expr, error) {
	entries, ok := schema.Entries(update)
	if !ok {
		return nil, invalidUpdate("update must be a document, got %T", update)
	}
	if len(entries) == 0 {
		return nil, invalidUpdate("update document is empty")
	}

	var clauses []Expr
	for _, e := range entries {
		if !strings.HasPrefix(e.Key, "$") {
			return nil, invalidUpdate("update must contain only operators, found field %q", e.Key)
		}
		op, ok := updateOperators[e.Key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, e.Key)
		}
		fields, ok := schema.Entries(e.Value)
		if !ok {
			return nil, invalidUpdate("%s expects a document, got %s", e.Key, fragment(e.Value))
		}
		for _, f := range fields {
			if err := c.checkPath(e.Key, f.Key); err != nil {
				return nil, err
			}
		}
		out, err := op(c, fields)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, out...)
	}
	if len(clauses) == 0 {
		return nil, invalidUpdate("update changes nothing")
	}
	return clauses, nil
}

func (c *UpdateCompiler) checkPath(op, path string) error {
	if path == "" {
		return invalidUpdate("%s with an empty field path", op)
	}
	first, _, _ := strings.Cut(path, ".")
	if first == schema.IdentityField {
		return invalidUpdate("%s cannot modify %s", op, schema.IdentityField)
	}
	if c.keys.IsKeyColumn(first) {
		return invalidUpdate("%s cannot modify primary key column %q", op, first)
	}
	return nil
}

// setClause assigns the value of an expression to an existing path.
type setClause struct {
	Target Column
	Value  Expr
}

func (s setClause) writeTo(sb *strings.Builder) {
	sb.WriteString("SET ")
	s.Target.writeTo(sb)
	sb.WriteString(" = ")
	s.Value.writeTo(sb)
}

// putClause merges the fields of an object into the map at Target.
type putClause struct {
	Target Column
	Value  Object
}

func (p putClause) writeTo(sb *strings.Builder) {
	sb.WriteString("PUT ")
	p.Target.writeTo(sb)
	sb.WriteByte(' ')
	p.Value.writeTo(sb)
}

// removeClause deletes the item at Target.
type removeClause struct {
	Target Column
}

func (r removeClause) writeTo(sb *strings.Builder) {
	sb.WriteString("REMOVE ")
	r.Target.writeTo(sb)
}

var rowRoot = Column{Root: TableAlias}

// nestedObject rewrites dot paths into one object rooted at the row, so
// intermediate containers are created by the PUT. Sibling paths under the
// same parent merge into one object.
type nestedObject struct {
	names    []string
	children map[string]*nestedObject
	leaves   map[string]Expr
}

func newNestedObject() *nestedObject {
	return &nestedObject{children: map[string]*nestedObject{}, leaves: map[string]Expr{}}
}

func (n *nestedObject) insert(path []string, value Expr, full string) error {
	name := path[0]
	if len(path) == 1 {
		if _, ok := n.children[name]; ok {
			return invalidUpdate("conflicting update paths at %q", full)
		}
		if _, ok := n.leaves[name]; ok {
			return invalidUpdate("duplicate update path %q", full)
		}
		n.names = append(n.names, name)
		n.leaves[name] = value
		return nil
	}
	if _, ok := n.leaves[name]; ok {
		return invalidUpdate("conflicting update paths at %q", full)
	}
	child, ok := n.children[name]
	if !ok {
		child = newNestedObject()
		n.children[name] = child
		n.names = append(n.names, name)
	}
	return child.insert(path[1:], value, full)
}

func (n *nestedObject) object() Object {
	obj := Object{Fields: make([]Field, 0, len(n.names))}
	for _, name := range n.names {
		if leaf, ok := n.leaves[name]; ok {
			obj.Fields = append(obj.Fields, Field{Name: name, Value: leaf})
			continue
		}
		obj.Fields = append(obj.Fields, Field{Name: name, Value: n.children[name].object()})
	}
	return obj
}

// upsertPaths emits one PUT for the plain paths and a SET for each path that
// addresses an array element, which a nested object cannot express.
func upsertPaths(fields []schema.E, value func(schema.E) (Expr, error)) ([]Expr, error) {
	root := newNestedObject()
	var indexed []Expr
	for _, f := range fields {
		v, err := value(f)
		if err != nil {
			return nil, err
		}
		segments := ParsePath(f.Key)
		if hasIndex(segments) {
			indexed = append(indexed, setClause{Target: FieldColumn(f.Key, false), Value: v})
			continue
		}
		if err := root.insert(strings.Split(f.Key, "."), v, f.Key); err != nil {
			return nil, err
		}
	}
	var out []Expr
	if len(root.names) > 0 {
		out = append(out, putClause{Target: rowRoot, Value: root.object()})
	}
	return append(out, indexed...), nil
}

func compileSet(c *UpdateCompiler, fields []schema.E) ([]Expr, error) {
	return upsertPaths(fields, func(f schema.E) (Expr, error) {
		name, err := c.bindings.Add(f.Key, c.values.EncodeValue(f.Value))
		if err != nil {
			return nil, err
		}
		return Param{Name: name}, nil
	})
}

var currentTime = Call{Name: "cast", Args: []Expr{Literal{Text: "current_time() AS STRING"}}}

func compileCurrentDate(c *UpdateCompiler, fields []schema.E) ([]Expr, error) {
	return upsertPaths(fields, func(f schema.E) (Expr, error) {
		switch v := f.Value.(type) {
		case bool:
			if v {
				return currentTime, nil
			}
		default:
			if spec, ok := schema.Entries(v); ok && len(spec) == 1 && spec[0].Key == "$type" {
				if t, _ := spec[0].Value.(string); t == "date" || t == "timestamp" {
					return currentTime, nil
				}
			}
		}
		return nil, invalidUpdate("%s on %q expects true or {$type: \"date\"}, got %s", OpCurrentDate, f.Key, fragment(f.Value))
	})
}

func compileUnset(c *UpdateCompiler, fields []schema.E) ([]Expr, error) {
	out := make([]Expr, 0, len(fields))
	for _, f := range fields {
		out = append(out, removeClause{Target: FieldColumn(f.Key, false)})
	}
	return out, nil
}

func arithmetic(op, symbol string) updateOperator {
	return func(c *UpdateCompiler, fields []schema.E) ([]Expr, error) {
		out := make([]Expr, 0, len(fields))
		for _, f := range fields {
			if !IsNumeric(f.Value) {
				return nil, invalidUpdate("%s on %q expects a number, got %s", op, f.Key, fragment(f.Value))
			}
			target := FieldColumn(f.Key, false)
			out = append(out, setClause{
				Target: target,
				Value:  Binary{Op: symbol, Left: target, Right: NumberLiteral(f.Value)},
			})
		}
		return out, nil
	}
}

// conditional replaces the current value with the literal when the current
// value compares with it as symbol says.
func conditional(op, symbol string) updateOperator {
	return func(c *UpdateCompiler, fields []schema.E) ([]Expr, error) {
		out := make([]Expr, 0, len(fields))
		for _, f := range fields {
			lit, err := c.literal(op, f)
			if err != nil {
				return nil, err
			}
			target := FieldColumn(f.Key, false)
			out = append(out, setClause{
				Target: target,
				Value: Case{
					When: Binary{Op: symbol, Left: target, Right: lit},
					Then: lit,
					Else: target,
				},
			})
		}
		return out, nil
	}
}

func (c *UpdateCompiler) literal(op string, f schema.E) (Literal, error) {
	switch v := f.Value.(type) {
	case string:
		return StringLiteral(v), nil
	case time.Time:
		return StringLiteral(c.values.EncodeValue(v).(string)), nil
	}
	if IsNumeric(f.Value) {
		return NumberLiteral(f.Value), nil
	}
	return Literal{}, invalidUpdate("%s on %q expects a number, string or date, got %s", op, f.Key, fragment(f.Value))
}

func compileRename(c *UpdateCompiler, fields []schema.E) ([]Expr, error) {
	out := make([]Expr, 0, 2*len(fields))
	for _, f := range fields {
		target, ok := f.Value.(string)
		if !ok || target == "" {
			return nil, invalidUpdate("%s on %q expects a field name, got %s", OpRename, f.Key, fragment(f.Value))
		}
		oldSegments := ParsePath(f.Key)
		if hasIndex(oldSegments) {
			return nil, invalidUpdate("%s cannot rename array element %q", OpRename, f.Key)
		}

		parent, oldName := splitParent(f.Key)
		newName := target
		if strings.Contains(target, ".") {
			newParent, name := splitParent(target)
			if newParent != parent {
				return nil, invalidUpdate("%s from %q to %q changes nesting level", OpRename, f.Key, target)
			}
			newName = name
		}
		if newName == oldName {
			continue
		}
		if parent == "" {
			if err := c.checkPath(OpRename, newName); err != nil {
				return nil, err
			}
		}

		parentColumn := rowRoot
		if parent != "" {
			parentColumn = FieldColumn(parent, false)
		}
		source := FieldColumn(f.Key, false)
		out = append(out,
			putClause{Target: parentColumn, Value: Object{Fields: []Field{{Name: newName, Value: source}}}},
			removeClause{Target: source},
		)
	}
	return out, nil
}

func splitParent(path string) (string, string) {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
