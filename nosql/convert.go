package nosql

import (
	"reflect"

	"github.com/oracle/nosql-go-sdk/nosqldb/types"
)

// fromMapValue turns an SDK row into plain Go values.
func fromMapValue(v *types.MapValue) map[string]any {
	if v == nil {
		return nil
	}
	row := make(map[string]any, v.Len())
	for k, x := range v.Map() {
		row[k] = plainValue(x)
	}
	return row
}

// plainValue unwraps nested SDK containers so rows hold only maps, slices
// and scalars.
func plainValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case *types.MapValue:
		return fromMapValue(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = plainValue(x)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = plainValue(x)
		}
		return out
	case []byte, string:
		return val
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = plainValue(rv.Index(i).Interface())
		}
		return out
	}
	return v
}
