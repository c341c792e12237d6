// Package value implements the self-describing binary payload format.
//
// A payload is a map block: a uint32 entry count followed by entries of
// uint16 name length, name bytes, a one-byte Tag and the tag's payload. All
// integers are little-endian. Arrays carry one element tag for all items and
// nested maps recurse. The tag is authoritative: accessors never widen
// implicitly, callers that want widening name the source tag.
package value
