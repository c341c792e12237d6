package value

import (
	"fmt"
	"slices"
)

// Map is a set of uniquely named values. It owns its entries, nested maps
// included. Map is not safe for concurrent mutation.
type Map struct {
	entries map[string]Value
}

func NewMap() *Map {
	return &Map{entries: make(map[string]Value)}
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Names returns the entry names in sorted order.
func (m *Map) Names() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (m *Map) Has(name string) bool {
	_, ok := m.Get(name)
	return ok
}

func (m *Map) Get(name string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.entries[name]
	return v, ok
}

func (m *Map) Delete(name string) {
	delete(m.entries, name)
}

// Set stores v under name, replacing any previous entry. It fails with
// ErrCycle when v is, or reaches, m itself.
func (m *Map) Set(name string, v Value) error {
	if reaches(v, m) {
		return fmt.Errorf("%w: entry %q", ErrCycle, name)
	}
	m.put(name, v)
	return nil
}

func (m *Map) put(name string, v Value) {
	if m.entries == nil {
		m.entries = make(map[string]Value)
	}
	m.entries[name] = v
}

func (m *Map) SetNull(name string)               { m.put(name, Null()) }
func (m *Map) SetBool(name string, v bool)       { m.put(name, Bool(v)) }
func (m *Map) SetInt8(name string, v int8)       { m.put(name, Int8(v)) }
func (m *Map) SetUint8(name string, v uint8)     { m.put(name, Uint8(v)) }
func (m *Map) SetInt16(name string, v int16)     { m.put(name, Int16(v)) }
func (m *Map) SetUint16(name string, v uint16)   { m.put(name, Uint16(v)) }
func (m *Map) SetInt32(name string, v int32)     { m.put(name, Int32(v)) }
func (m *Map) SetUint32(name string, v uint32)   { m.put(name, Uint32(v)) }
func (m *Map) SetInt64(name string, v int64)     { m.put(name, Int64(v)) }
func (m *Map) SetUint64(name string, v uint64)   { m.put(name, Uint64(v)) }
func (m *Map) SetFloat32(name string, v float32) { m.put(name, Float32(v)) }
func (m *Map) SetFloat64(name string, v float64) { m.put(name, Float64(v)) }
func (m *Map) SetDecimal(name string, v Decimal) { m.put(name, FromDecimal(v)) }
func (m *Map) SetChar(name string, v rune)       { m.put(name, Char(v)) }
func (m *Map) SetUintptr(name string, v uintptr) { m.put(name, Uintptr(v)) }
func (m *Map) SetString(name string, v string)   { m.put(name, String(v)) }
func (m *Map) SetBytes(name string, v []byte)    { m.put(name, Bytes(v)) }

func (m *Map) SetMap(name string, child *Map) error {
	return m.Set(name, FromMap(child))
}

func (m *Map) SetArray(name string, elem Tag, items ...Value) error {
	arr, err := ArrayOf(elem, items...)
	if err != nil {
		return err
	}
	return m.Set(name, arr)
}

// Char returns a char entry. Chars are looked up separately from Get because
// rune and int32 are the same Go type.
func (m *Map) Char(name string) (rune, bool) {
	v, ok := m.Get(name)
	if !ok || v.tag != TagChar {
		return 0, false
	}
	return rune(uint32(v.bits)), true
}

func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	out := &Map{entries: make(map[string]Value, len(m.entries))}
	for name, v := range m.entries {
		out.entries[name] = v.Clone()
	}
	return out
}

func (m *Map) Equal(o *Map) bool {
	if m.Len() != o.Len() {
		return false
	}
	for name, v := range m.entries {
		ov, ok := o.Get(name)
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Each visits entries in name order.
func (m *Map) Each(fn func(name string, v Value) bool) {
	for _, name := range m.Names() {
		if !fn(name, m.entries[name]) {
			return
		}
	}
}

func reaches(v Value, target *Map) bool {
	switch v.tag {
	case TagMap:
		if v.m == target {
			return true
		}
		for _, child := range v.m.entries {
			if reaches(child, target) {
				return true
			}
		}
	case TagArray:
		for _, it := range v.items {
			if reaches(it, target) {
				return true
			}
		}
	}
	return false
}
