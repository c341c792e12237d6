package value

import (
	"errors"
	"fmt"

	"github.com/danmuck/netcore/internal/protocol"
)

// Decode failures. Each wraps protocol.ErrDecode.
var (
	ErrTruncated      = fmt.Errorf("%w: value: truncated input", protocol.ErrDecode)
	ErrUnknownTag     = fmt.Errorf("%w: value: unknown tag", protocol.ErrDecode)
	ErrLengthOverflow = fmt.Errorf("%w: value: length exceeds remaining input", protocol.ErrDecode)
	ErrMalformed      = fmt.Errorf("%w: value: malformed payload", protocol.ErrDecode)
	ErrDuplicateName  = fmt.Errorf("%w: value: duplicate entry name", protocol.ErrDecode)
	ErrTooDeep        = fmt.Errorf("%w: value: nesting too deep", protocol.ErrDecode)
	ErrBudget         = fmt.Errorf("%w: value: decoded size exceeds budget", ErrLengthOverflow)
)

// Construction and access failures.
var (
	ErrTagMismatch   = errors.New("value: tag mismatch")
	ErrOverflow      = errors.New("value: numeric overflow")
	ErrCycle         = errors.New("value: map would contain itself")
	ErrArrayElem     = errors.New("value: invalid array element")
	ErrNameTooLong   = errors.New("value: entry name too long")
	ErrTooLarge      = errors.New("value: payload too large")
	ErrInvalidString = errors.New("value: string is not valid utf-8")
	ErrInvalidChar   = errors.New("value: char is not a unicode scalar value")
	ErrInvalidScale  = fmt.Errorf("value: decimal scale exceeds %d", MaxDecimalScale)
	ErrUnsupported   = errors.New("value: unsupported go type")
)

func mismatch(want, got Tag) error {
	return fmt.Errorf("%w: want %s, have %s", ErrTagMismatch, want, got)
}
