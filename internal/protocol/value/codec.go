package value

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
	"unsafe"
)

// MaxDepth bounds map and array nesting on both encode and decode.
const MaxDepth = 64

// DefaultDecodeBudget caps the in-memory size of the map and array slots one
// Unmarshal call may allocate.
const DefaultDecodeBudget = 16 << 20

const (
	valueCost = int64(unsafe.Sizeof(Value{}))
	entryCost = valueCost + int64(unsafe.Sizeof(""))
)

// Marshal encodes m as a map block. Entries are written in name order so
// equal maps encode to equal bytes.
func Marshal(m *Map) ([]byte, error) {
	return AppendMap(nil, m)
}

func AppendMap(dst []byte, m *Map) ([]byte, error) {
	return appendMap(dst, m, 0)
}

// Unmarshal decodes a single map block that must span all of b, within
// DefaultDecodeBudget.
func Unmarshal(b []byte) (*Map, error) {
	return UnmarshalBudget(b, DefaultDecodeBudget)
}

// UnmarshalBudget is Unmarshal with an explicit budget in bytes for decoded
// map entries and array items. Input that would exceed it fails with
// ErrBudget. A budget of zero or less disables the check.
func UnmarshalBudget(b []byte, budget int64) (*Map, error) {
	r := &reader{data: b, budget: budget}
	m := r.readMap(0)
	if r.err != nil {
		return nil, r.err
	}
	if r.pos != len(b) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(b)-r.pos)
	}
	return m, nil
}

func appendMap(dst []byte, m *Map, depth int) ([]byte, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	names := m.Names()
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(names)))
	for _, name := range names {
		if len(name) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
		}
		v := m.entries[name]
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(name)))
		dst = append(dst, name...)
		dst = append(dst, byte(v.tag))
		var err error
		if dst, err = appendPayload(dst, v, depth); err != nil {
			return nil, fmt.Errorf("entry %q: %w", name, err)
		}
	}
	return dst, nil
}

func appendPayload(dst []byte, v Value, depth int) ([]byte, error) {
	le := binary.LittleEndian
	switch v.tag {
	case TagNull:
		return dst, nil
	case TagBool, TagInt8, TagUint8:
		return append(dst, byte(v.bits)), nil
	case TagInt16, TagUint16:
		return le.AppendUint16(dst, uint16(v.bits)), nil
	case TagChar:
		if c := uint32(v.bits); c > utf8.MaxRune || !utf8.ValidRune(rune(c)) {
			return nil, fmt.Errorf("%w: 0x%x", ErrInvalidChar, c)
		}
		return le.AppendUint32(dst, uint32(v.bits)), nil
	case TagInt32, TagUint32, TagFloat32:
		return le.AppendUint32(dst, uint32(v.bits)), nil
	case TagInt64, TagUint64, TagFloat64, TagUintptr:
		return le.AppendUint64(dst, v.bits), nil
	case TagDecimal:
		if v.dec.Scale > MaxDecimalScale {
			return nil, fmt.Errorf("%w: %d", ErrInvalidScale, v.dec.Scale)
		}
		dst = le.AppendUint64(dst, v.dec.Lo)
		dst = le.AppendUint32(dst, v.dec.Hi)
		return le.AppendUint32(dst, v.dec.flags()), nil
	case TagString:
		if !utf8.ValidString(v.str) {
			return nil, ErrInvalidString
		}
		if uint64(len(v.str)) > math.MaxUint32 {
			return nil, ErrTooLarge
		}
		dst = le.AppendUint32(dst, uint32(len(v.str)))
		return append(dst, v.str...), nil
	case TagBytes:
		if uint64(len(v.raw)) > math.MaxUint32 {
			return nil, ErrTooLarge
		}
		dst = le.AppendUint32(dst, uint32(len(v.raw)))
		return append(dst, v.raw...), nil
	case TagArray:
		if depth+1 > MaxDepth {
			return nil, ErrTooDeep
		}
		if uint64(len(v.items)) > math.MaxUint32 {
			return nil, ErrTooLarge
		}
		dst = append(dst, byte(v.elem))
		dst = le.AppendUint32(dst, uint32(len(v.items)))
		var err error
		for _, it := range v.items {
			if dst, err = appendPayload(dst, it, depth+1); err != nil {
				return nil, err
			}
		}
		return dst, nil
	case TagMap:
		return appendMap(dst, v.m, depth+1)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, uint8(v.tag))
	}
}

// reader walks a little-endian buffer and latches the first error. Once
// err is set every read returns a zero value.
type reader struct {
	data   []byte
	pos    int
	err    error
	budget int64
	spent  int64
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) require(n int) bool {
	if r.err != nil {
		return false
	}
	if n > r.remaining() {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.pos, r.remaining())
		return false
	}
	return true
}

func (r *reader) u8() uint8 {
	if !r.require(1) {
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

func (r *reader) u16() uint16 {
	if !r.require(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u32() uint32 {
	if !r.require(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) u64() uint64 {
	if !r.require(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

// span consumes a length-prefixed region. A declared length larger than the
// remaining input is ErrLengthOverflow rather than a plain truncation.
func (r *reader) span(n uint64) []byte {
	if r.err != nil {
		return nil
	}
	if n > uint64(r.remaining()) {
		r.fail(fmt.Errorf("%w: declared %d at offset %d, have %d", ErrLengthOverflow, n, r.pos, r.remaining()))
		return nil
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b
}

// fits reports whether count items of at least width bytes can still follow.
func (r *reader) fits(count uint64, width int) bool {
	if r.err != nil {
		return false
	}
	if count*uint64(width) > uint64(r.remaining()) {
		r.fail(fmt.Errorf("%w: %d items of %d bytes at offset %d, have %d", ErrLengthOverflow, count, width, r.pos, r.remaining()))
		return false
	}
	return true
}

// charge accounts for count decoded slots of cost bytes each.
func (r *reader) charge(count uint64, cost int64) bool {
	if r.err != nil {
		return false
	}
	if r.budget <= 0 {
		return true
	}
	if count > uint64(r.budget/cost) || r.spent+int64(count)*cost > r.budget {
		r.fail(fmt.Errorf("%w: %d slots at offset %d, budget %d", ErrBudget, count, r.pos, r.budget))
		return false
	}
	r.spent += int64(count) * cost
	return true
}

// smallest possible entry: empty name, null tag
const minEntryWidth = 3

func (r *reader) readMap(depth int) *Map {
	if depth > MaxDepth {
		r.fail(ErrTooDeep)
		return nil
	}
	count := uint64(r.u32())
	if !r.fits(count, minEntryWidth) || !r.charge(count, entryCost) {
		return nil
	}
	m := &Map{entries: make(map[string]Value, count)}
	for i := uint64(0); i < count && r.err == nil; i++ {
		name := string(r.span(uint64(r.u16())))
		tag := Tag(r.u8())
		if r.err != nil {
			break
		}
		if !tag.Valid() {
			r.fail(fmt.Errorf("%w: %d at offset %d", ErrUnknownTag, uint8(tag), r.pos-1))
			break
		}
		v := r.readPayload(tag, depth)
		if r.err != nil {
			break
		}
		if _, dup := m.entries[name]; dup {
			r.fail(fmt.Errorf("%w: %q", ErrDuplicateName, name))
			break
		}
		m.entries[name] = v
	}
	if r.err != nil {
		return nil
	}
	return m
}

func (r *reader) readPayload(tag Tag, depth int) Value {
	v := Value{tag: tag}
	switch tag {
	case TagNull:
	case TagBool:
		b := r.u8()
		if b > 1 {
			r.fail(fmt.Errorf("%w: bool byte 0x%02x", ErrMalformed, b))
		}
		v.bits = uint64(b)
	case TagInt8:
		v.bits = uint64(int64(int8(r.u8())))
	case TagUint8:
		v.bits = uint64(r.u8())
	case TagInt16:
		v.bits = uint64(int64(int16(r.u16())))
	case TagUint16:
		v.bits = uint64(r.u16())
	case TagInt32:
		v.bits = uint64(int64(int32(r.u32())))
	case TagUint32, TagFloat32:
		v.bits = uint64(r.u32())
	case TagInt64, TagUint64, TagFloat64:
		v.bits = r.u64()
	case TagChar:
		c := r.u32()
		if r.err == nil && (c > utf8.MaxRune || !utf8.ValidRune(rune(c))) {
			r.fail(fmt.Errorf("%w: char 0x%x", ErrMalformed, c))
		}
		v.bits = uint64(c)
	case TagUintptr:
		p := r.u64()
		if uint64(uintptr(p)) != p {
			r.fail(fmt.Errorf("%w: uintptr %d overflows platform width", ErrMalformed, p))
		}
		v.bits = p
	case TagDecimal:
		lo, hi, flags := r.u64(), r.u32(), r.u32()
		if r.err == nil {
			d, err := decimalFromWire(lo, hi, flags)
			r.fail(err)
			v.dec = d
		}
	case TagString:
		s := r.span(uint64(r.u32()))
		if r.err == nil && !utf8.Valid(s) {
			r.fail(fmt.Errorf("%w: string is not valid utf-8", ErrMalformed))
		}
		v.str = string(s)
	case TagBytes:
		b := r.span(uint64(r.u32()))
		v.raw = append([]byte(nil), b...)
	case TagArray:
		v.elem, v.items = r.readArray(depth + 1)
	case TagMap:
		v.m = r.readMap(depth + 1)
	}
	return v
}

func (r *reader) readArray(depth int) (Tag, []Value) {
	if depth > MaxDepth {
		r.fail(ErrTooDeep)
		return TagNull, nil
	}
	elem := Tag(r.u8())
	count := uint64(r.u32())
	if r.err != nil {
		return TagNull, nil
	}
	if !elem.Valid() {
		r.fail(fmt.Errorf("%w: array element %d", ErrUnknownTag, uint8(elem)))
		return TagNull, nil
	}
	if elem == TagNull {
		r.fail(fmt.Errorf("%w: null array element", ErrMalformed))
		return TagNull, nil
	}
	if !r.fits(count, elem.minWidth()) || !r.charge(count, valueCost) {
		return TagNull, nil
	}
	items := make([]Value, 0, count)
	for i := uint64(0); i < count && r.err == nil; i++ {
		items = append(items, r.readPayload(elem, depth))
	}
	return elem, items
}
