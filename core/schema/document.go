package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"
)

// Document is an unordered document as exchanged with the store.
type Document map[string]any

// E is a single element of an ordered document.
type E struct {
	Key   string
	Value any
}

// D is an ordered document. Update and sort specifications are applied in
// element order, so callers that care about order pass a D.
type D []E

// Get returns the value stored under key.
func (d D) Get(key string) (any, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Map converts the document, and any nested ordered documents, into a Document.
func (d D) Map() Document {
	out := make(Document, len(d))
	for _, e := range d {
		out[e.Key] = plain(e.Value)
	}
	return out
}

// MarshalJSON writes the elements in order.
func (d D) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %q: %w", e.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Entries returns the elements of a document value. Ordered documents keep
// their order; maps are returned in sorted key order. The boolean is false
// when v is not a document.
func Entries(v any) ([]E, bool) {
	switch doc := v.(type) {
	case D:
		return doc, true
	case Document:
		return sortedEntries(doc), true
	case map[string]any:
		return sortedEntries(doc), true
	}
	return nil, false
}

// IsDocument reports whether v is one of the document representations.
func IsDocument(v any) bool {
	switch v.(type) {
	case D, Document, map[string]any:
		return true
	}
	return false
}

func sortedEntries(m map[string]any) []E {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]E, len(keys))
	for i, k := range keys {
		out[i] = E{Key: k, Value: m[k]}
	}
	return out
}

// plain converts ordered documents nested anywhere in v into Documents.
func plain(v any) any {
	switch val := v.(type) {
	case D:
		return val.Map()
	case map[string]any:
		out := make(Document, len(val))
		for k, x := range val {
			out[k] = plain(x)
		}
		return out
	case Document:
		out := make(Document, len(val))
		for k, x := range val {
			out[k] = plain(x)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = plain(x)
		}
		return out
	}
	return v
}

// ParseJSON decodes JSON text into ordered documents. Integral numbers become
// int64, other numbers float64. The extended forms {"$oid": "<hex>"} and
// {"$date": "<rfc3339>"} (or {"$date": <unix millis>}) decode to ObjectID and
// time.Time.
func ParseJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse JSON: unexpected data after top-level value")
	}
	return v, nil
}

// ParseDocument is ParseJSON for input that must be a JSON object.
func ParseDocument(data []byte) (D, error) {
	v, err := ParseJSON(data)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(D)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return doc, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	}
	return tok, nil
}

func decodeObject(dec *json.Decoder) (any, error) {
	doc := D{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		doc = append(doc, E{Key: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return decodeExtended(doc)
}

func decodeArray(dec *json.Decoder) (any, error) {
	arr := []any{}
	for dec.More() {
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}

func decodeExtended(doc D) (any, error) {
	if len(doc) != 1 {
		return doc, nil
	}
	switch doc[0].Key {
	case "$oid":
		hex, ok := doc[0].Value.(string)
		if !ok {
			return nil, fmt.Errorf("$oid expects a string, got %T", doc[0].Value)
		}
		return ObjectIDFromHex(hex)
	case "$date":
		switch v := doc[0].Value.(type) {
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("invalid $date %q: %w", v, err)
			}
			return t.UTC(), nil
		case int64:
			return time.UnixMilli(v).UTC(), nil
		}
		return nil, fmt.Errorf("$date expects a string or integer, got %T", doc[0].Value)
	}
	return doc, nil
}
