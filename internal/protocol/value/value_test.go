package value

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/danmuck/netcore/internal/protocol"
)

func sampleMap(t *testing.T) *Map {
	t.Helper()
	dec, err := ParseDecimal("-1234.5678")
	if err != nil {
		t.Fatalf("parse decimal: %v", err)
	}

	m := NewMap()
	m.SetNull("null")
	m.SetBool("bool", true)
	m.SetInt8("i8", -8)
	m.SetUint8("u8", 200)
	m.SetInt16("i16", -1600)
	m.SetUint16("u16", 60000)
	m.SetInt32("i32", math.MinInt32)
	m.SetUint32("u32", math.MaxUint32)
	m.SetInt64("i64", math.MinInt64)
	m.SetUint64("u64", math.MaxUint64)
	m.SetFloat32("f32", 3.25)
	m.SetFloat64("f64", -0.0)
	m.SetDecimal("dec", dec)
	m.SetChar("char", '世')
	m.SetUintptr("ptr", 0xdeadbeef)
	m.SetString("str", "hello, 世界")
	m.SetString("empty", "")
	m.SetBytes("bytes", []byte{0, 1, 2, 0xff})

	arrays := []struct {
		name  string
		elem  Tag
		items []Value
	}{
		{"a_bool", TagBool, []Value{Bool(true), Bool(false)}},
		{"a_i8", TagInt8, []Value{Int8(-1), Int8(127)}},
		{"a_u8", TagUint8, []Value{Uint8(0), Uint8(255)}},
		{"a_i16", TagInt16, []Value{Int16(-2), Int16(300)}},
		{"a_u16", TagUint16, []Value{Uint16(65535)}},
		{"a_i32", TagInt32, []Value{Int32(-3), Int32(1 << 20)}},
		{"a_u32", TagUint32, []Value{Uint32(7)}},
		{"a_i64", TagInt64, []Value{Int64(-4)}},
		{"a_u64", TagUint64, []Value{Uint64(1 << 63)}},
		{"a_f32", TagFloat32, []Value{Float32(1.5), Float32(-2)}},
		{"a_f64", TagFloat64, []Value{Float64(math.Pi)}},
		{"a_dec", TagDecimal, []Value{FromDecimal(dec)}},
		{"a_char", TagChar, []Value{Char('a'), Char('é')}},
		{"a_ptr", TagUintptr, []Value{Uintptr(42)}},
		{"a_str", TagString, []Value{String("x"), String("")}},
		{"a_bytes", TagBytes, []Value{Bytes([]byte{9}), Bytes(nil)}},
		{"a_empty", TagInt32, nil},
	}
	for _, a := range arrays {
		if err := m.SetArray(a.name, a.elem, a.items...); err != nil {
			t.Fatalf("set array %s: %v", a.name, err)
		}
	}

	inner := NewMap()
	inner.SetString("name", "inner")
	deeper := NewMap()
	deeper.SetInt32("depth", 2)
	if err := inner.SetMap("deeper", deeper); err != nil {
		t.Fatalf("set deeper: %v", err)
	}
	if err := m.SetMap("nested", inner); err != nil {
		t.Fatalf("set nested: %v", err)
	}
	nestedArr, err := ArrayOf(TagArray, mustArray(t, TagString, String("p")), mustArray(t, TagUint8, Uint8(1)))
	if err != nil {
		t.Fatalf("array of arrays: %v", err)
	}
	if err := m.Set("a_arr", nestedArr); err != nil {
		t.Fatalf("set a_arr: %v", err)
	}
	if err := m.SetArray("a_map", TagMap, FromMap(deeper.Clone())); err != nil {
		t.Fatalf("set a_map: %v", err)
	}
	return m
}

func mustArray(t *testing.T, elem Tag, items ...Value) Value {
	t.Helper()
	v, err := ArrayOf(elem, items...)
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	return v
}

func TestRoundTripEveryKind(t *testing.T) {
	m := sampleMap(t)
	raw, err := Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(m) {
		t.Fatalf("round-trip mismatch")
	}
	for _, name := range m.Names() {
		want, _ := m.Get(name)
		got, ok := decoded.Get(name)
		if !ok || got.Tag() != want.Tag() {
			t.Fatalf("entry %q: tag %s want %s", name, got.Tag(), want.Tag())
		}
	}
	again, err := Marshal(decoded)
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if !bytes.Equal(raw, again) {
		t.Fatalf("re-encoding differs")
	}
}

func TestFloatsCompareBitwise(t *testing.T) {
	m := NewMap()
	m.SetFloat64("nan", math.NaN())
	m.SetFloat32("negzero", float32(math.Copysign(0, -1)))
	raw, err := Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(m) {
		t.Fatalf("expected NaN and -0 to survive bit-for-bit")
	}
	if Float32(0).Equal(Float32(float32(math.Copysign(0, -1)))) {
		t.Fatalf("0 and -0 must differ bitwise")
	}
}

func TestGetRequiresExactTag(t *testing.T) {
	m := NewMap()
	m.SetInt32("n", 42)

	if _, ok := Get[int64](m, "n"); ok {
		t.Fatalf("int32 entry must not be visible as int64")
	}
	got, ok := Get[int32](m, "n")
	if !ok || got != 42 {
		t.Fatalf("Get[int32]: got (%d,%v)", got, ok)
	}
	if _, ok := Get[int32](m, "missing"); ok {
		t.Fatalf("missing entry reported present")
	}

	v, _ := m.Get("n")
	if _, err := v.AsInt64(); !errors.Is(err, ErrTagMismatch) {
		t.Fatalf("expected ErrTagMismatch, got %v", err)
	}
	wide, err := v.WidenInt64(TagInt32)
	if err != nil || wide != 42 {
		t.Fatalf("widen: got (%d,%v)", wide, err)
	}
	if _, err := v.WidenInt64(TagInt16); !errors.Is(err, ErrTagMismatch) {
		t.Fatalf("widen with wrong source tag: %v", err)
	}
	if f, err := v.WidenFloat64(TagInt32); err != nil || f != 42 {
		t.Fatalf("widen float: got (%v,%v)", f, err)
	}

	m.SetChar("c", 'z')
	if _, ok := Get[int32](m, "c"); ok {
		t.Fatalf("char must not be visible as int32")
	}
	if r, ok := m.Char("c"); !ok || r != 'z' {
		t.Fatalf("char: got (%q,%v)", r, ok)
	}
}

func TestWidenOverflow(t *testing.T) {
	if _, err := Uint64(math.MaxUint64).WidenInt64(TagUint64); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Int8(-1).WidenUint64(TagInt8); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if n, err := Uint16(9).WidenUint64(TagUint16); err != nil || n != 9 {
		t.Fatalf("widen uint: got (%d,%v)", n, err)
	}
}

func TestSetMapRejectsCycles(t *testing.T) {
	parent := NewMap()
	child := NewMap()
	if err := parent.SetMap("child", child); err != nil {
		t.Fatalf("set child: %v", err)
	}
	if err := parent.SetMap("self", parent); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle for self insert, got %v", err)
	}
	if err := child.SetMap("up", parent); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle for ancestor insert, got %v", err)
	}
	if err := child.SetArray("ups", TagMap, FromMap(parent)); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle through array, got %v", err)
	}
}

func TestArrayOfRejectsMixedTags(t *testing.T) {
	if _, err := ArrayOf(TagInt32, Int32(1), Int64(2)); !errors.Is(err, ErrArrayElem) {
		t.Fatalf("expected ErrArrayElem, got %v", err)
	}
	if _, err := ArrayOf(TagNull); !errors.Is(err, ErrArrayElem) {
		t.Fatalf("null arrays must be rejected, got %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := sampleMap(t)
	c := m.Clone()
	inner, _ := Get[*Map](c, "nested")
	inner.SetString("name", "changed")
	orig, _ := Get[*Map](m, "nested")
	if s, _ := Get[string](orig, "name"); s != "inner" {
		t.Fatalf("clone shares nested map: %q", s)
	}
}

func TestUnmarshalRejectsMalformedInput(t *testing.T) {
	valid, err := Marshal(sampleMap(t))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	cases := []struct {
		name string
		raw  []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"short", valid[:len(valid)-1], protocol.ErrDecode},
		{"trailing", append(append([]byte(nil), valid...), 0), ErrMalformed},
		{"unknown tag", []byte{1, 0, 0, 0, 1, 0, 'a', 99}, ErrUnknownTag},
		{"string overrun", []byte{1, 0, 0, 0, 1, 0, 'a', byte(TagString), 0xe8, 0x03, 0, 0, 'x'}, ErrLengthOverflow},
		{"name overrun", []byte{1, 0, 0, 0, 9, 0, 'a'}, ErrLengthOverflow},
		{"huge count", []byte{0xff, 0xff, 0xff, 0xff}, ErrLengthOverflow},
		{"huge array", []byte{1, 0, 0, 0, 1, 0, 'a', byte(TagArray), byte(TagInt64), 0xff, 0xff, 0, 0}, ErrLengthOverflow},
		{"null array", []byte{1, 0, 0, 0, 1, 0, 'a', byte(TagArray), byte(TagNull), 1, 0, 0, 0}, ErrMalformed},
		{"bad bool", []byte{1, 0, 0, 0, 1, 0, 'a', byte(TagBool), 2}, ErrMalformed},
		{"bad char", []byte{1, 0, 0, 0, 1, 0, 'a', byte(TagChar), 0x00, 0xd8, 0, 0}, ErrMalformed},
		{"duplicate", []byte{2, 0, 0, 0, 1, 0, 'a', 0, 1, 0, 'a', 0}, ErrDuplicateName},
	}
	for _, tc := range cases {
		_, err := Unmarshal(tc.raw)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if !errors.Is(err, protocol.ErrDecode) {
			t.Fatalf("%s: expected decode class, got %v", tc.name, err)
		}
	}
}

func TestNestingDepthBounded(t *testing.T) {
	var raw []byte
	for i := 0; i < MaxDepth+2; i++ {
		raw = append(raw, 1, 0, 0, 0, 0, 0, byte(TagMap))
	}
	raw = append(raw, 0, 0, 0, 0)
	if _, err := Unmarshal(raw); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("expected ErrTooDeep, got %v", err)
	}

	root := NewMap()
	cur := root
	for i := 0; i < MaxDepth+1; i++ {
		next := NewMap()
		if err := cur.SetMap("n", next); err != nil {
			t.Fatalf("set: %v", err)
		}
		cur = next
	}
	if _, err := Marshal(root); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("expected encode ErrTooDeep, got %v", err)
	}
}

func TestMarshalRejectsInvalidUTF8(t *testing.T) {
	m := NewMap()
	m.SetString("s", "\xff")
	if _, err := Marshal(m); !errors.Is(err, ErrInvalidString) {
		t.Fatalf("expected ErrInvalidString, got %v", err)
	}
}

func TestDecimalText(t *testing.T) {
	cases := []string{"0", "-12.50", "0.005", "79228162514264337593543950335"}
	for _, s := range cases {
		d, err := ParseDecimal(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got := d.String(); got != s {
			t.Fatalf("decimal %q printed as %q", s, got)
		}
	}
	if _, err := ParseDecimal("79228162514264337593543950336"); err == nil {
		t.Fatalf("expected range error")
	}
	if _, err := ParseDecimal("1.2.3"); err == nil {
		t.Fatalf("expected syntax error")
	}
}

func TestOfAndInterface(t *testing.T) {
	v, err := Of(map[string]any{
		"name": "echo",
		"n":    7,
		"args": []any{"a", "b"},
		"none": nil,
	})
	if err != nil {
		t.Fatalf("of: %v", err)
	}
	m, err := v.AsMap()
	if err != nil {
		t.Fatalf("as map: %v", err)
	}
	if n, ok := Get[int64](m, "n"); !ok || n != 7 {
		t.Fatalf("int should map to int64: (%d,%v)", n, ok)
	}
	back := m.Interface()
	args, ok := back["args"].([]any)
	if !ok || len(args) != 2 || args[1] != "b" {
		t.Fatalf("interface args: %#v", back["args"])
	}
	if _, err := Of([]any{"a", 1}); !errors.Is(err, ErrArrayElem) {
		t.Fatalf("expected mixed []any to fail, got %v", err)
	}
	if _, err := Of(struct{}{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestMarshalRejectsValuesDecodeWouldRefuse(t *testing.T) {
	m := NewMap()
	m.SetChar("c", 0xD800)
	if _, err := Marshal(m); !errors.Is(err, ErrInvalidChar) {
		t.Fatalf("surrogate char: expected ErrInvalidChar, got %v", err)
	}

	m = NewMap()
	m.SetDecimal("d", Decimal{Lo: 1, Scale: MaxDecimalScale + 12})
	if _, err := Marshal(m); !errors.Is(err, ErrInvalidScale) {
		t.Fatalf("scale: expected ErrInvalidScale, got %v", err)
	}

	m = NewMap()
	m.SetChar("c", 0x10FFFF)
	m.SetDecimal("d", Decimal{Lo: 1, Scale: MaxDecimalScale})
	raw, err := Marshal(m)
	if err != nil {
		t.Fatalf("marshal boundary values: %v", err)
	}
	out, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal boundary values: %v", err)
	}
	if !out.Equal(m) {
		t.Fatalf("boundary values changed across round trip")
	}
}

func boolArrayMap(n int) []byte {
	raw := []byte{1, 0, 0, 0, 1, 0, 'a', byte(TagArray), byte(TagBool)}
	raw = append(raw, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	return append(raw, make([]byte, n)...)
}

func TestUnmarshalBudgetBoundsArrays(t *testing.T) {
	raw := boolArrayMap(1 << 20)
	_, err := Unmarshal(raw)
	if !errors.Is(err, ErrBudget) {
		t.Fatalf("expected ErrBudget, got %v", err)
	}
	if !errors.Is(err, ErrLengthOverflow) || !errors.Is(err, protocol.ErrDecode) {
		t.Fatalf("budget error should be a decode length overflow, got %v", err)
	}

	small := boolArrayMap(16)
	if _, err := Unmarshal(small); err != nil {
		t.Fatalf("small array: %v", err)
	}
	if _, err := UnmarshalBudget(small, 4*valueCost); !errors.Is(err, ErrBudget) {
		t.Fatalf("tight budget: expected ErrBudget, got %v", err)
	}
	m, err := UnmarshalBudget(raw, 0)
	if err != nil {
		t.Fatalf("unbounded decode: %v", err)
	}
	items, elem, err := m.entries["a"].AsArray()
	if err != nil || elem != TagBool || len(items) != 1<<20 {
		t.Fatalf("unbounded decode: got %d items of %s, err %v", len(items), elem, err)
	}
}
