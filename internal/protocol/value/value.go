package value

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// Value is one tagged scalar, array, or nested map. The zero Value is null.
type Value struct {
	tag   Tag
	bits  uint64
	dec   Decimal
	str   string
	raw   []byte
	elem  Tag
	items []Value
	m     *Map
}

func Null() Value             { return Value{} }
func Int8(v int8) Value       { return Value{tag: TagInt8, bits: uint64(int64(v))} }
func Uint8(v uint8) Value     { return Value{tag: TagUint8, bits: uint64(v)} }
func Int16(v int16) Value     { return Value{tag: TagInt16, bits: uint64(int64(v))} }
func Uint16(v uint16) Value   { return Value{tag: TagUint16, bits: uint64(v)} }
func Int32(v int32) Value     { return Value{tag: TagInt32, bits: uint64(int64(v))} }
func Uint32(v uint32) Value   { return Value{tag: TagUint32, bits: uint64(v)} }
func Int64(v int64) Value     { return Value{tag: TagInt64, bits: uint64(v)} }
func Uint64(v uint64) Value   { return Value{tag: TagUint64, bits: v} }
func Float32(v float32) Value { return Value{tag: TagFloat32, bits: uint64(math.Float32bits(v))} }
func Float64(v float64) Value { return Value{tag: TagFloat64, bits: math.Float64bits(v)} }
func Char(r rune) Value       { return Value{tag: TagChar, bits: uint64(uint32(r))} }
func Uintptr(v uintptr) Value { return Value{tag: TagUintptr, bits: uint64(v)} }
func String(s string) Value   { return Value{tag: TagString, str: s} }
func FromDecimal(d Decimal) Value {
	return Value{tag: TagDecimal, dec: d}
}

func Bool(v bool) Value {
	if v {
		return Value{tag: TagBool, bits: 1}
	}
	return Value{tag: TagBool}
}

// Bytes copies b.
func Bytes(b []byte) Value {
	return Value{tag: TagBytes, raw: bytes.Clone(b)}
}

// FromMap wraps m without copying it. A nil map becomes an empty one.
func FromMap(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{tag: TagMap, m: m}
}

// ArrayOf builds a homogeneous array. Every item must carry elem.
func ArrayOf(elem Tag, items ...Value) (Value, error) {
	if !elem.Valid() || elem == TagNull {
		return Value{}, fmt.Errorf("%w: element tag %s", ErrArrayElem, elem)
	}
	out := make([]Value, len(items))
	for i, it := range items {
		if it.tag != elem {
			return Value{}, fmt.Errorf("%w: item %d is %s, array holds %s", ErrArrayElem, i, it.tag, elem)
		}
		out[i] = it
	}
	return Value{tag: TagArray, elem: elem, items: out}, nil
}

func (v Value) Tag() Tag     { return v.tag }
func (v Value) IsNull() bool { return v.tag == TagNull }

func (v Value) AsBool() (bool, error) {
	if v.tag != TagBool {
		return false, mismatch(TagBool, v.tag)
	}
	return v.bits != 0, nil
}

func (v Value) AsInt8() (int8, error) {
	if v.tag != TagInt8 {
		return 0, mismatch(TagInt8, v.tag)
	}
	return int8(v.bits), nil
}

func (v Value) AsUint8() (uint8, error) {
	if v.tag != TagUint8 {
		return 0, mismatch(TagUint8, v.tag)
	}
	return uint8(v.bits), nil
}

func (v Value) AsInt16() (int16, error) {
	if v.tag != TagInt16 {
		return 0, mismatch(TagInt16, v.tag)
	}
	return int16(v.bits), nil
}

func (v Value) AsUint16() (uint16, error) {
	if v.tag != TagUint16 {
		return 0, mismatch(TagUint16, v.tag)
	}
	return uint16(v.bits), nil
}

func (v Value) AsInt32() (int32, error) {
	if v.tag != TagInt32 {
		return 0, mismatch(TagInt32, v.tag)
	}
	return int32(v.bits), nil
}

func (v Value) AsUint32() (uint32, error) {
	if v.tag != TagUint32 {
		return 0, mismatch(TagUint32, v.tag)
	}
	return uint32(v.bits), nil
}

func (v Value) AsInt64() (int64, error) {
	if v.tag != TagInt64 {
		return 0, mismatch(TagInt64, v.tag)
	}
	return int64(v.bits), nil
}

func (v Value) AsUint64() (uint64, error) {
	if v.tag != TagUint64 {
		return 0, mismatch(TagUint64, v.tag)
	}
	return v.bits, nil
}

func (v Value) AsFloat32() (float32, error) {
	if v.tag != TagFloat32 {
		return 0, mismatch(TagFloat32, v.tag)
	}
	return math.Float32frombits(uint32(v.bits)), nil
}

func (v Value) AsFloat64() (float64, error) {
	if v.tag != TagFloat64 {
		return 0, mismatch(TagFloat64, v.tag)
	}
	return math.Float64frombits(v.bits), nil
}

func (v Value) AsDecimal() (Decimal, error) {
	if v.tag != TagDecimal {
		return Decimal{}, mismatch(TagDecimal, v.tag)
	}
	return v.dec, nil
}

func (v Value) AsChar() (rune, error) {
	if v.tag != TagChar {
		return 0, mismatch(TagChar, v.tag)
	}
	return rune(uint32(v.bits)), nil
}

func (v Value) AsUintptr() (uintptr, error) {
	if v.tag != TagUintptr {
		return 0, mismatch(TagUintptr, v.tag)
	}
	return uintptr(v.bits), nil
}

func (v Value) AsString() (string, error) {
	if v.tag != TagString {
		return "", mismatch(TagString, v.tag)
	}
	return v.str, nil
}

// AsBytes returns the stored slice; callers must not modify it.
func (v Value) AsBytes() ([]byte, error) {
	if v.tag != TagBytes {
		return nil, mismatch(TagBytes, v.tag)
	}
	return v.raw, nil
}

// AsArray returns the items and their shared element tag.
func (v Value) AsArray() ([]Value, Tag, error) {
	if v.tag != TagArray {
		return nil, TagNull, mismatch(TagArray, v.tag)
	}
	return v.items, v.elem, nil
}

func (v Value) AsMap() (*Map, error) {
	if v.tag != TagMap {
		return nil, mismatch(TagMap, v.tag)
	}
	return v.m, nil
}

// WidenInt64 reads any integer tag as int64. from must equal the stored tag;
// unsigned values above math.MaxInt64 fail with ErrOverflow.
func (v Value) WidenInt64(from Tag) (int64, error) {
	if v.tag != from {
		return 0, mismatch(from, v.tag)
	}
	switch {
	case from.isSigned():
		return int64(v.bits), nil
	case from.isUnsigned():
		if v.bits > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d does not fit int64", ErrOverflow, v.bits)
		}
		return int64(v.bits), nil
	default:
		return 0, fmt.Errorf("%w: %s is not an integer", ErrTagMismatch, from)
	}
}

// WidenUint64 reads any integer tag as uint64. Negative values fail with
// ErrOverflow.
func (v Value) WidenUint64(from Tag) (uint64, error) {
	if v.tag != from {
		return 0, mismatch(from, v.tag)
	}
	switch {
	case from.isUnsigned():
		return v.bits, nil
	case from.isSigned():
		if int64(v.bits) < 0 {
			return 0, fmt.Errorf("%w: %d is negative", ErrOverflow, int64(v.bits))
		}
		return v.bits, nil
	default:
		return 0, fmt.Errorf("%w: %s is not an integer", ErrTagMismatch, from)
	}
}

// WidenFloat64 reads float and integer tags as float64.
func (v Value) WidenFloat64(from Tag) (float64, error) {
	if v.tag != from {
		return 0, mismatch(from, v.tag)
	}
	switch {
	case from == TagFloat32:
		return float64(math.Float32frombits(uint32(v.bits))), nil
	case from == TagFloat64:
		return math.Float64frombits(v.bits), nil
	case from.isSigned():
		return float64(int64(v.bits)), nil
	case from.isUnsigned():
		return float64(v.bits), nil
	default:
		return 0, fmt.Errorf("%w: %s is not numeric", ErrTagMismatch, from)
	}
}

// Equal compares tags and bit patterns. Floats compare bitwise, so NaN equals
// an identical NaN and 0.0 differs from -0.0.
func (v Value) Equal(o Value) bool {
	if v.tag != o.tag {
		return false
	}
	switch v.tag {
	case TagDecimal:
		return v.dec == o.dec
	case TagString:
		return v.str == o.str
	case TagBytes:
		return bytes.Equal(v.raw, o.raw)
	case TagArray:
		if v.elem != o.elem || len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case TagMap:
		return v.m.Equal(o.m)
	default:
		return v.bits == o.bits
	}
}

// Clone deep-copies bytes, arrays and nested maps.
func (v Value) Clone() Value {
	switch v.tag {
	case TagBytes:
		v.raw = bytes.Clone(v.raw)
	case TagArray:
		items := make([]Value, len(v.items))
		for i, it := range v.items {
			items[i] = it.Clone()
		}
		v.items = items
	case TagMap:
		v.m = v.m.Clone()
	}
	return v
}

func (v Value) String() string {
	switch v.tag {
	case TagNull:
		return "null"
	case TagBool:
		return strconv.FormatBool(v.bits != 0)
	case TagInt8, TagInt16, TagInt32, TagInt64:
		return strconv.FormatInt(int64(v.bits), 10)
	case TagUint8, TagUint16, TagUint32, TagUint64, TagUintptr:
		return strconv.FormatUint(v.bits, 10)
	case TagFloat32:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(v.bits))), 'g', -1, 32)
	case TagFloat64:
		return strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, 64)
	case TagDecimal:
		return v.dec.String()
	case TagChar:
		return strconv.QuoteRune(rune(uint32(v.bits)))
	case TagString:
		return strconv.Quote(v.str)
	case TagBytes:
		return fmt.Sprintf("bytes[%d]", len(v.raw))
	case TagArray:
		return fmt.Sprintf("%s[%d]", v.elem, len(v.items))
	case TagMap:
		return fmt.Sprintf("map[%d]", v.m.Len())
	default:
		return v.tag.String()
	}
}
