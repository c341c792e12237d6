package value

// Scalar lists the Go types Get can return. Char is read through Map.Char and
// arrays through Value.AsArray.
type Scalar interface {
	bool | int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 |
		float32 | float64 | uintptr | string | []byte | Decimal | *Map
}

// Get returns the entry called name when its tag is exactly T's tag. No
// widening happens: an int32 entry is absent to Get[int64].
func Get[T Scalar](m *Map, name string) (T, bool) {
	var zero T
	v, ok := m.Get(name)
	if !ok {
		return zero, false
	}
	var out any
	switch any(zero).(type) {
	case bool:
		b, err := v.AsBool()
		if err != nil {
			return zero, false
		}
		out = b
	case int8:
		n, err := v.AsInt8()
		if err != nil {
			return zero, false
		}
		out = n
	case uint8:
		n, err := v.AsUint8()
		if err != nil {
			return zero, false
		}
		out = n
	case int16:
		n, err := v.AsInt16()
		if err != nil {
			return zero, false
		}
		out = n
	case uint16:
		n, err := v.AsUint16()
		if err != nil {
			return zero, false
		}
		out = n
	case int32:
		n, err := v.AsInt32()
		if err != nil {
			return zero, false
		}
		out = n
	case uint32:
		n, err := v.AsUint32()
		if err != nil {
			return zero, false
		}
		out = n
	case int64:
		n, err := v.AsInt64()
		if err != nil {
			return zero, false
		}
		out = n
	case uint64:
		n, err := v.AsUint64()
		if err != nil {
			return zero, false
		}
		out = n
	case float32:
		f, err := v.AsFloat32()
		if err != nil {
			return zero, false
		}
		out = f
	case float64:
		f, err := v.AsFloat64()
		if err != nil {
			return zero, false
		}
		out = f
	case uintptr:
		p, err := v.AsUintptr()
		if err != nil {
			return zero, false
		}
		out = p
	case string:
		s, err := v.AsString()
		if err != nil {
			return zero, false
		}
		out = s
	case []byte:
		b, err := v.AsBytes()
		if err != nil {
			return zero, false
		}
		out = b
	case Decimal:
		d, err := v.AsDecimal()
		if err != nil {
			return zero, false
		}
		out = d
	case *Map:
		child, err := v.AsMap()
		if err != nil {
			return zero, false
		}
		out = child
	default:
		return zero, false
	}
	return out.(T), true
}
