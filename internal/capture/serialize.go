package capture

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
)

// Sentinels substituted for values JSON cannot represent.
const (
	FunctionSentinel       = "[Function]"
	SymbolSentinel         = "[Symbol]"
	UndefinedSentinel      = "[Undefined]"
	CircularSentinel       = "[Circular]"
	UnserializableSentinel = "[Unserializable]"
)

type undefined struct{}

// Undefined stands for an absent JavaScript value.
var Undefined = undefined{}

// Symbol stands for a JavaScript symbol; Description is informational only.
type Symbol struct {
	Description string
}

// SafeSerialize converts v into a value that json.Marshal accepts. It never
// panics: cyclic graphs, funcs, channels and other unencodable values degrade
// to sentinel strings.
func SafeSerialize(v any) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = UnserializableSentinel
		}
	}()

	switch val := v.(type) {
	case nil:
		return nil
	case undefined:
		return UndefinedSentinel
	case Symbol, *Symbol:
		return SymbolSentinel
	case *big.Int:
		if val == nil {
			return nil
		}
		return "[BigInt: " + val.String() + "]"
	case json.RawMessage:
		if json.Valid(val) {
			return val
		}
		return string(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		return FunctionSentinel
	case reflect.Chan, reflect.UnsafePointer:
		return SymbolSentinel
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return v
	}

	if _, err := json.Marshal(v); err == nil {
		return v
	}

	if cleaned, err := decycle(v); err == nil {
		return cleaned
	}

	if s, ok := stringify(v); ok {
		return s
	}
	return UnserializableSentinel
}

// decycle rebuilds v as plain maps and slices, replacing any reference that
// was already visited with CircularSentinel.
func decycle(v any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decycle: %v", r)
		}
	}()

	w := &walker{seen: make(map[uintptr]struct{})}
	out = w.walk(reflect.ValueOf(v))
	if _, err := json.Marshal(out); err != nil {
		return nil, err
	}
	return out, nil
}

func stringify(v any) (s string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return fmt.Sprint(v), true
}

type walker struct {
	seen map[uintptr]struct{}
}

func (w *walker) visit(rv reflect.Value) bool {
	ptr := rv.Pointer()
	if ptr == 0 {
		return true
	}
	if _, ok := w.seen[ptr]; ok {
		return false
	}
	w.seen[ptr] = struct{}{}
	return true
}

func (w *walker) walk(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}

	if rv.CanInterface() {
		switch val := rv.Interface().(type) {
		case undefined, Symbol, *Symbol, *big.Int:
			return SafeSerialize(val)
		case json.Marshaler:
			if rv.Kind() != reflect.Pointer || !rv.IsNil() {
				if data, err := val.MarshalJSON(); err == nil && json.Valid(data) {
					return json.RawMessage(data)
				}
			}
		}
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return w.walk(rv.Elem())
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		if !w.visit(rv) {
			return CircularSentinel
		}
		return w.walk(rv.Elem())
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		if !w.visit(rv) {
			return CircularSentinel
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = w.walk(iter.Value())
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes()
		}
		if rv.Len() > 0 && !w.visit(rv) {
			return CircularSentinel
		}
		return w.walkList(rv)
	case reflect.Array:
		return w.walkList(rv)
	case reflect.Struct:
		return w.walkStruct(rv)
	case reflect.Func:
		return FunctionSentinel
	case reflect.Chan, reflect.UnsafePointer:
		return SymbolSentinel
	case reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(rv.Complex())
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return f
	default:
		if rv.CanInterface() {
			return rv.Interface()
		}
		return fmt.Sprint(rv)
	}
}

func (w *walker) walkList(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = w.walk(rv.Index(i))
	}
	return out
}

func (w *walker) walkStruct(rv reflect.Value) map[string]any {
	t := rv.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			if tag == "-" {
				continue
			}
			if n, _, _ := strings.Cut(tag, ","); n != "" {
				name = n
			}
		}
		out[name] = w.walk(rv.Field(i))
	}
	return out
}
