package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/asaidimu/go-docstore/core/schema"
)

// MaxBindingAttempts bounds the numeric suffixes tried when a binding name
// is already taken.
const MaxBindingAttempts = 1000

// BindingType is the declared type of a bind variable.
type BindingType string

const (
	BindingString    BindingType = "STRING"
	BindingNumber    BindingType = "NUMBER"
	BindingBoolean   BindingType = "BOOLEAN"
	BindingJSON      BindingType = "JSON"
	BindingAnyAtomic BindingType = "ANYATOMIC"
)

// Binding is one named, typed placeholder.
type Binding struct {
	Name  string
	Type  BindingType
	Value any
}

// BindingTable accumulates the bind variables of a statement. Names are
// unique and declaration order follows insertion.
type BindingTable struct {
	byName map[string]*Binding
	order  []string
}

// NewBindingTable creates an empty table.
func NewBindingTable() *BindingTable {
	return &BindingTable{byName: make(map[string]*Binding)}
}

// Add stores value under a name derived from base and returns that name,
// including the leading '$'. A taken name gets the first free numeric suffix.
func (b *BindingTable) Add(base string, value any) (string, error) {
	stem := "$" + sanitizeBindingName(base)
	name := stem
	for attempt := 1; ; attempt++ {
		if _, taken := b.byName[name]; !taken {
			break
		}
		if attempt > MaxBindingAttempts {
			return "", fmt.Errorf("%w: no free name for %q after %d attempts", ErrTooManyBindings, stem, MaxBindingAttempts)
		}
		name = fmt.Sprintf("%s_%d", stem, attempt)
	}

	b.byName[name] = &Binding{Name: name, Type: InferBindingType(value), Value: value}
	b.order = append(b.order, name)
	return name, nil
}

// Get returns the value bound under name.
func (b *BindingTable) Get(name string) (any, bool) {
	binding, ok := b.byName[name]
	if !ok {
		return nil, false
	}
	return binding.Value, true
}

// Len returns the number of bindings.
func (b *BindingTable) Len() int {
	return len(b.order)
}

// Bindings returns the bindings in declaration order.
func (b *BindingTable) Bindings() []Binding {
	out := make([]Binding, len(b.order))
	for i, name := range b.order {
		out[i] = *b.byName[name]
	}
	return out
}

// Values returns name to value, the shape a store binds from.
func (b *BindingTable) Values() map[string]any {
	if b == nil {
		return nil
	}
	out := make(map[string]any, len(b.order))
	for _, name := range b.order {
		out[name] = b.byName[name].Value
	}
	return out
}

// Declarations renders the variable-declaration preamble, or "" when the
// table is empty.
func (b *BindingTable) Declarations() string {
	if len(b.order) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("DECLARE ")
	for _, name := range b.order {
		sb.WriteString(name)
		sb.WriteByte(' ')
		sb.WriteString(string(b.byName[name].Type))
		sb.WriteString("; ")
	}
	return sb.String()
}

// InferBindingType maps a Go value to the declared bind-variable type.
func InferBindingType(v any) BindingType {
	switch v.(type) {
	case string, time.Time, schema.ObjectID:
		return BindingString
	case bool:
		return BindingBoolean
	case []any:
		return BindingJSON
	}
	if _, ok := ToFloat64(v); ok {
		return BindingNumber
	}
	if schema.IsDocument(v) {
		return BindingJSON
	}
	return BindingAnyAtomic
}

func sanitizeBindingName(base string) string {
	var sb strings.Builder
	for i, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				sb.WriteByte('v')
			}
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	name := strings.Trim(sb.String(), "_")
	if name == "" {
		return "v"
	}
	return name
}
