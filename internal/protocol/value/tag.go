package value

import "fmt"

// Tag identifies the kind of a Value on the wire. The numeric values are part
// of the format and must not be renumbered.
type Tag uint8

const (
	TagNull Tag = iota
	TagBool
	TagInt8
	TagUint8
	TagInt16
	TagUint16
	TagInt32
	TagUint32
	TagInt64
	TagUint64
	TagFloat32
	TagFloat64
	TagDecimal
	TagChar
	TagUintptr
	TagString
	TagBytes
	TagArray
	TagMap
)

var tagNames = [...]string{
	TagNull:    "null",
	TagBool:    "bool",
	TagInt8:    "int8",
	TagUint8:   "uint8",
	TagInt16:   "int16",
	TagUint16:  "uint16",
	TagInt32:   "int32",
	TagUint32:  "uint32",
	TagInt64:   "int64",
	TagUint64:  "uint64",
	TagFloat32: "float32",
	TagFloat64: "float64",
	TagDecimal: "decimal",
	TagChar:    "char",
	TagUintptr: "uintptr",
	TagString:  "string",
	TagBytes:   "bytes",
	TagArray:   "array",
	TagMap:     "map",
}

func (t Tag) Valid() bool {
	return t <= TagMap
}

func (t Tag) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
	return tagNames[t]
}

// width returns the fixed payload size for scalar tags, or -1 for
// length-prefixed and composite tags.
func (t Tag) width() int {
	switch t {
	case TagNull:
		return 0
	case TagBool, TagInt8, TagUint8:
		return 1
	case TagInt16, TagUint16:
		return 2
	case TagInt32, TagUint32, TagFloat32, TagChar:
		return 4
	case TagInt64, TagUint64, TagFloat64, TagUintptr:
		return 8
	case TagDecimal:
		return 16
	default:
		return -1
	}
}

// minWidth is the smallest number of bytes a payload of this tag can occupy.
// Decoders use it to reject counts that cannot fit the remaining input.
func (t Tag) minWidth() int {
	switch t {
	case TagString, TagBytes, TagMap:
		return 4
	case TagArray:
		return 5
	default:
		return t.width()
	}
}

func (t Tag) isSigned() bool {
	switch t {
	case TagInt8, TagInt16, TagInt32, TagInt64:
		return true
	}
	return false
}

func (t Tag) isUnsigned() bool {
	switch t {
	case TagUint8, TagUint16, TagUint32, TagUint64, TagUintptr:
		return true
	}
	return false
}
