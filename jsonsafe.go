package h402

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// FunctionSentinel replaces func values
	FunctionSentinel = "[Function]"
	// CircularSentinel replaces a value that refers back to one of its ancestors
	CircularSentinel = "[Circular]"
)

var (
	timeType      = reflect.TypeOf(time.Time{})
	bigIntType    = reflect.TypeOf(big.Int{})
	h402BigType   = reflect.TypeOf(BigInt{})
	decimalType   = reflect.TypeOf(decimal.Decimal{})
	emptyStruct   = reflect.TypeOf(struct{}{})
	byteSliceType = reflect.TypeOf([]byte(nil))
)

// ToJSONSafe converts v into plain maps, slices and scalars that encode to
// JSON without loss or failure:
//   - nil values and nil map entries are dropped
//   - big integers and decimals become decimal strings
//   - time.Time becomes an ISO-8601 UTC string
//   - sets (map[K]struct{}) become sorted arrays
//   - structs become objects keyed by their json tags
//   - funcs become FunctionSentinel
//   - references back to an ancestor become CircularSentinel
func ToJSONSafe(v interface{}) interface{} {
	out, ok := jsonSafe(reflect.ValueOf(v), make(map[uintptr]struct{}))
	if !ok {
		return nil
	}
	return out
}

func jsonSafe(v reflect.Value, path map[uintptr]struct{}) (interface{}, bool) {
	if !v.IsValid() {
		return nil, false
	}

	switch v.Type() {
	case timeType:
		t := v.Interface().(time.Time)
		return t.UTC().Format("2006-01-02T15:04:05.000Z07:00"), true
	case bigIntType:
		b := v.Interface().(big.Int)
		return b.String(), true
	case h402BigType:
		b := v.Interface().(BigInt)
		return b.Int.String(), true
	case decimalType:
		return v.Interface().(decimal.Decimal).String(), true
	case byteSliceType:
		if v.IsNil() {
			return nil, false
		}
		return base64.StdEncoding.EncodeToString(v.Bytes()), true
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil, false
		}
		return jsonSafe(v.Elem(), path)

	case reflect.Ptr:
		if v.IsNil() {
			return nil, false
		}
		return visit(v.Pointer(), path, func() (interface{}, bool) {
			return jsonSafe(v.Elem(), path)
		})

	case reflect.Map:
		if v.IsNil() {
			return nil, false
		}
		return visit(v.Pointer(), path, func() (interface{}, bool) {
			if v.Type().Elem() == emptyStruct {
				return setToSlice(v, path), true
			}
			out := make(map[string]interface{}, v.Len())
			iter := v.MapRange()
			for iter.Next() {
				if val, ok := jsonSafe(iter.Value(), path); ok {
					out[mapKey(iter.Key())] = val
				}
			}
			return out, true
		})

	case reflect.Slice:
		if v.IsNil() {
			return nil, false
		}
		if v.Len() == 0 {
			return []interface{}{}, true
		}
		return visit(v.Pointer(), path, func() (interface{}, bool) {
			return sliceToSafe(v, path), true
		})

	case reflect.Array:
		return sliceToSafe(v, path), true

	case reflect.Struct:
		out := make(map[string]interface{})
		structToSafe(v, path, out)
		return out, true

	case reflect.Func:
		if v.IsNil() {
			return nil, false
		}
		return FunctionSentinel, true

	case reflect.Chan, reflect.UnsafePointer, reflect.Uintptr, reflect.Complex64, reflect.Complex128:
		return nil, false

	case reflect.String:
		return v.String(), true
	case reflect.Bool:
		return v.Bool(), true
	}

	return v.Interface(), true
}

// visit runs fn with ptr marked as an ancestor, or returns CircularSentinel
// when ptr is already on the current path
func visit(ptr uintptr, path map[uintptr]struct{}, fn func() (interface{}, bool)) (interface{}, bool) {
	if _, seen := path[ptr]; seen {
		return CircularSentinel, true
	}
	path[ptr] = struct{}{}
	defer delete(path, ptr)
	return fn()
}

func sliceToSafe(v reflect.Value, path map[uintptr]struct{}) []interface{} {
	out := make([]interface{}, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		val, ok := jsonSafe(v.Index(i), path)
		if !ok {
			val = nil
		}
		out = append(out, val)
	}
	return out
}

func setToSlice(v reflect.Value, path map[uintptr]struct{}) []interface{} {
	keys := v.MapKeys()
	sort.SliceStable(keys, func(i, j int) bool {
		return lessValue(keys[i], keys[j])
	})
	out := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		if val, ok := jsonSafe(k, path); ok {
			out = append(out, val)
		}
	}
	return out
}

func lessValue(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() < b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return a.Uint() < b.Uint()
	case reflect.Float32, reflect.Float64:
		return a.Float() < b.Float()
	case reflect.String:
		return a.String() < b.String()
	}
	return fmt.Sprint(a.Interface()) < fmt.Sprint(b.Interface())
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if s, ok := k.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(k.Interface())
}

func structToSafe(v reflect.Value, path map[uintptr]struct{}, out map[string]interface{}) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, omitEmpty, skip := parseJSONTag(field)
		if skip {
			continue
		}
		fv := v.Field(i)

		if field.Anonymous && name == "" && fv.Kind() == reflect.Struct {
			structToSafe(fv, path, out)
			continue
		}
		if name == "" {
			name = field.Name
		}
		if omitEmpty && fv.IsZero() {
			continue
		}
		if val, ok := jsonSafe(fv, path); ok {
			out[name] = val
		}
	}
}

func parseJSONTag(field reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	for _, opt := range parts[1:] {
		if opt == "omitempty" || opt == "omitzero" {
			omitEmpty = true
		}
	}
	return parts[0], omitEmpty, false
}
