package metadata

import (
	"fmt"
	"math"
	"reflect"
)

// FromAny converts a decoded YAML or JSON value into a Value. Every integer
// kind maps to KindInt, floats to KindFloat and slices to KindArray.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case []string:
		return Strings(x), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: integer %d overflows int64", ErrSchemaViolation, u)
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		arr := make([]Value, rv.Len())
		for i := range arr {
			elem, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			arr[i] = elem
		}
		return Array(arr), nil
	}
	return Value{}, fmt.Errorf("%w: unsupported type %T", ErrSchemaViolation, v)
}

// DocumentFromAny converts a decoded map into a Document.
func DocumentFromAny(m map[string]any) (Document, error) {
	doc := make(Document, len(m))
	for key, raw := range m {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		doc[key] = v
	}
	return doc, nil
}
