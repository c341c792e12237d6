package value

import (
	"fmt"
	"slices"
)

// Of converts a Go value into a Value. int and uint map to their 64-bit tags;
// []any must be homogeneous and an empty []any becomes an empty string array.
// map[string]any becomes a nested map.
func Of(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int8:
		return Int8(t), nil
	case uint8:
		return Uint8(t), nil
	case int16:
		return Int16(t), nil
	case uint16:
		return Uint16(t), nil
	case int32:
		return Int32(t), nil
	case uint32:
		return Uint32(t), nil
	case int64:
		return Int64(t), nil
	case uint64:
		return Uint64(t), nil
	case int:
		return Int64(int64(t)), nil
	case uint:
		return Uint64(uint64(t)), nil
	case uintptr:
		return Uintptr(t), nil
	case float32:
		return Float32(t), nil
	case float64:
		return Float64(t), nil
	case Decimal:
		return FromDecimal(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case *Map:
		return FromMap(t), nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return ArrayOf(TagString, items...)
	case []any:
		return arrayOf(t)
	case map[string]any:
		m, err := MapOf(t)
		if err != nil {
			return Value{}, err
		}
		return FromMap(m), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupported, x)
	}
}

func arrayOf(xs []any) (Value, error) {
	if len(xs) == 0 {
		return ArrayOf(TagString)
	}
	items := make([]Value, len(xs))
	for i, x := range xs {
		v, err := Of(x)
		if err != nil {
			return Value{}, fmt.Errorf("item %d: %w", i, err)
		}
		items[i] = v
	}
	return ArrayOf(items[0].tag, items...)
}

// MapOf converts a Go map into a Map.
func MapOf(src map[string]any) (*Map, error) {
	m := NewMap()
	for name, x := range src {
		v, err := Of(x)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", name, err)
		}
		if err := m.Set(name, v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Interface returns the natural Go representation of v. Arrays become []any,
// maps become map[string]any and chars become rune.
func (v Value) Interface() any {
	switch v.tag {
	case TagNull:
		return nil
	case TagBool:
		return v.bits != 0
	case TagInt8:
		return int8(v.bits)
	case TagUint8:
		return uint8(v.bits)
	case TagInt16:
		return int16(v.bits)
	case TagUint16:
		return uint16(v.bits)
	case TagInt32:
		return int32(v.bits)
	case TagUint32:
		return uint32(v.bits)
	case TagInt64:
		return int64(v.bits)
	case TagUint64:
		return v.bits
	case TagFloat32:
		f, _ := v.AsFloat32()
		return f
	case TagFloat64:
		f, _ := v.AsFloat64()
		return f
	case TagDecimal:
		return v.dec
	case TagChar:
		return rune(uint32(v.bits))
	case TagUintptr:
		return uintptr(v.bits)
	case TagString:
		return v.str
	case TagBytes:
		return slices.Clone(v.raw)
	case TagArray:
		out := make([]any, len(v.items))
		for i, it := range v.items {
			out[i] = it.Interface()
		}
		return out
	case TagMap:
		return v.m.Interface()
	default:
		return nil
	}
}

func (m *Map) Interface() map[string]any {
	out := make(map[string]any, m.Len())
	if m == nil {
		return out
	}
	for name, v := range m.entries {
		out[name] = v.Interface()
	}
	return out
}
