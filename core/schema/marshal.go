package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// ObjectIDTag prefixes stored identifier strings when tagging is enabled.
	ObjectIDTag = "$oid:"
	// DateLayout is the ISO-8601 form dates are stored in.
	DateLayout = "2006-01-02T15:04:05.000Z07:00"
)

// MarshalOptions controls value normalization in both directions.
type MarshalOptions struct {
	// TagObjectIDs stores ObjectID values as ObjectIDTag+hex and restores
	// them on read. Without it ObjectIDs are stored as bare hex and read back
	// as strings.
	TagObjectIDs bool `yaml:"tagObjectIds"`
	// RestoreDates turns strings in DateLayout back into time.Time on read.
	RestoreDates bool `yaml:"restoreDates"`
}

// RowMarshaller converts documents to store rows and back for one key schema.
type RowMarshaller struct {
	keys    *KeySchema
	options MarshalOptions
}

// NewRowMarshaller creates a marshaller for the given key schema. A nil key
// schema means a simple key in DefaultKeyColumn.
func NewRowMarshaller(keys *KeySchema, options MarshalOptions) *RowMarshaller {
	if keys == nil {
		keys = NewSimpleKey(DefaultKeyColumn)
	}
	return &RowMarshaller{keys: keys, options: options}
}

// Keys returns the key schema the marshaller relocates identities into.
func (m *RowMarshaller) Keys() *KeySchema {
	return m.keys
}

// ToRow relocates the identity into the key columns and normalizes every
// nested value. Applying it to an already converted row is a no-op.
func (m *RowMarshaller) ToRow(doc any) (Document, error) {
	entries, ok := Entries(doc)
	if !ok {
		return nil, fmt.Errorf("cannot marshal %T as a row: not a document", doc)
	}

	row := make(Document, len(entries)+len(m.keys.KeyColumns()))
	var identity any
	hasIdentity := false
	for _, e := range entries {
		if e.Key == IdentityField {
			identity, hasIdentity = e.Value, true
			continue
		}
		row[e.Key] = m.EncodeValue(e.Value)
	}

	if !hasIdentity {
		for _, col := range m.keys.KeyColumns() {
			if _, present := row[col]; !present {
				return nil, fmt.Errorf("document has no %s and no value for key column %q", IdentityField, col)
			}
		}
		return row, nil
	}

	key, err := m.KeyFromIdentity(identity)
	if err != nil {
		return nil, err
	}
	for col, v := range key {
		row[col] = v
	}
	return row, nil
}

// FromRow moves the key columns back under the identity field and restores
// typed values. Applying it to an already converted document is a no-op.
func (m *RowMarshaller) FromRow(row map[string]any) Document {
	doc := make(Document, len(row))
	for k, v := range row {
		doc[k] = m.DecodeValue(v)
	}

	if m.keys.IsComposite {
		var id Document
		for _, col := range m.keys.KeyColumns() {
			v, ok := doc[col]
			if !ok {
				continue
			}
			if id == nil {
				id = Document{}
			}
			id[col] = v
			delete(doc, col)
		}
		if id != nil {
			doc[IdentityField] = id
		}
		return doc
	}

	col := m.keys.SimpleColumn()
	if v, ok := doc[col]; ok {
		doc[IdentityField] = v
		delete(doc, col)
	}
	return doc
}

// KeyFromIdentity builds the primary key row for an identity value. A simple
// key gets the stringified identity; a composite key requires a document
// carrying every key field.
func (m *RowMarshaller) KeyFromIdentity(identity any) (Document, error) {
	if !m.keys.IsComposite {
		s, err := m.StringifyIdentity(identity)
		if err != nil {
			return nil, err
		}
		return Document{m.keys.SimpleColumn(): s}, nil
	}

	entries, ok := Entries(identity)
	if !ok {
		return nil, fmt.Errorf("composite key requires %s to be a document, got %T", IdentityField, identity)
	}
	fields := make(map[string]any, len(entries))
	for _, e := range entries {
		fields[e.Key] = e.Value
	}
	key := make(Document, len(m.keys.KeyColumns()))
	for _, col := range m.keys.KeyColumns() {
		v, ok := fields[col]
		if !ok {
			return nil, fmt.Errorf("%s is missing key field %q", IdentityField, col)
		}
		key[col] = m.EncodeValue(v)
	}
	return key, nil
}

// StringifyIdentity renders a simple-key identity as the string stored in
// the key column.
func (m *RowMarshaller) StringifyIdentity(identity any) (string, error) {
	switch v := identity.(type) {
	case nil:
		return "", fmt.Errorf("%s must not be null", IdentityField)
	case string:
		return v, nil
	case ObjectID:
		return m.encodeObjectID(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.UTC().Format(DateLayout), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), nil
	}
	if IsDocument(identity) {
		b, err := json.Marshal(m.EncodeValue(identity))
		if err != nil {
			return "", fmt.Errorf("failed to stringify %s: %w", IdentityField, err)
		}
		return string(b), nil
	}
	return "", fmt.Errorf("unsupported %s type %T", IdentityField, identity)
}

// EncodeValue normalizes a value for storage: dates become ISO-8601 strings,
// ObjectIDs become (optionally tagged) hex strings and ordered documents
// become plain maps. It recurses through arrays and documents.
func (m *RowMarshaller) EncodeValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(DateLayout)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(DateLayout)
	case ObjectID:
		return m.encodeObjectID(val)
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = m.EncodeValue(x)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = x
		}
		return out
	}
	if entries, ok := Entries(v); ok {
		out := make(map[string]any, len(entries))
		for _, e := range entries {
			out[e.Key] = m.EncodeValue(e.Value)
		}
		return out
	}
	return v
}

// DecodeValue reverses EncodeValue for the values it can recognize.
func (m *RowMarshaller) DecodeValue(v any) any {
	switch val := v.(type) {
	case string:
		if m.options.TagObjectIDs && strings.HasPrefix(val, ObjectIDTag) {
			if id, err := ObjectIDFromHex(val[len(ObjectIDTag):]); err == nil {
				return id
			}
		}
		if m.options.RestoreDates && len(val) == len(DateLayout)-5 && strings.HasSuffix(val, "Z") {
			if t, err := time.Parse(DateLayout, val); err == nil {
				return t
			}
		}
		return val
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = m.DecodeValue(x)
		}
		return out
	case map[string]any:
		out := make(Document, len(val))
		for k, x := range val {
			out[k] = m.DecodeValue(x)
		}
		return out
	case Document:
		out := make(Document, len(val))
		for k, x := range val {
			out[k] = m.DecodeValue(x)
		}
		return out
	}
	return v
}

func (m *RowMarshaller) encodeObjectID(id ObjectID) string {
	if m.options.TagObjectIDs {
		return ObjectIDTag + id.Hex()
	}
	return id.Hex()
}
