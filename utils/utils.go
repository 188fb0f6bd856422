// Package utils converts between Go structs and documents through their
// JSON encoding, so `json` tags decide field names.
package utils

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/asaidimu/go-docstore/core/schema"
)

// IsStruct reports whether v is a struct or a non-nil pointer to one.
func IsStruct(v any) bool {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return false
		}
		val = val.Elem()
	}
	return val.Kind() == reflect.Struct
}

// ToDocument converts a struct, or a pointer to one, into a document.
// Nested structs become nested documents.
//
//	type User struct {
//		ID   string `json:"_id"`
//		Name string `json:"name"`
//	}
//	doc, err := ToDocument(User{ID: "u1", Name: "al"})
//	// doc is schema.Document{"_id": "u1", "name": "al"}
func ToDocument(record any) (schema.Document, error) {
	val := reflect.ValueOf(record)
	if !val.IsValid() {
		return nil, fmt.Errorf("input record cannot be nil")
	}
	if val.Kind() == reflect.Ptr && val.IsNil() {
		return nil, fmt.Errorf("input record cannot be a nil pointer to a struct")
	}
	if !IsStruct(record) {
		return nil, fmt.Errorf("input record must be a struct or a pointer to a struct, got %s", val.Kind())
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", record, err)
	}
	var doc schema.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %T as a document: %w", record, err)
	}
	return doc, nil
}

// FromDocument decodes doc into a new T, which must be a struct or a
// pointer to one.
func FromDocument[T any](doc map[string]any) (T, error) {
	var zero T
	if doc == nil {
		return zero, fmt.Errorf("input document cannot be nil")
	}

	typ := reflect.TypeOf(zero)
	if typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return zero, fmt.Errorf("target type must be a struct or a pointer to a struct, got %v", typ)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal document: %w", err)
	}
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return zero, fmt.Errorf("failed to decode document into %T: %w", result, err)
	}
	return result, nil
}
