package protocol

import "errors"

// Class sentinels. Package-level errors wrap exactly one of these so callers
// can branch with errors.Is without knowing the concrete error.
var (
	ErrTransport   = errors.New("protocol: transport error")
	ErrFraming     = errors.New("protocol: framing error")
	ErrSecurity    = errors.New("protocol: security error")
	ErrDecode      = errors.New("protocol: decode error")
	ErrApplication = errors.New("protocol: application error")
)

type Class int

const (
	ClassNone Class = iota
	ClassTransport
	ClassFraming
	ClassSecurity
	ClassDecode
	ClassApplication
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransport:
		return "transport"
	case ClassFraming:
		return "framing"
	case ClassSecurity:
		return "security"
	case ClassDecode:
		return "decode"
	case ClassApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Classify maps err onto its class. Security wins over framing when both are
// present since a failed integrity check usually surfaces as bad framing too.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrSecurity):
		return ClassSecurity
	case errors.Is(err, ErrFraming):
		return ClassFraming
	case errors.Is(err, ErrDecode):
		return ClassDecode
	case errors.Is(err, ErrTransport):
		return ClassTransport
	case errors.Is(err, ErrApplication):
		return ClassApplication
	default:
		return ClassUnknown
	}
}

// Fatal reports whether a stream connection must be closed after err.
func Fatal(err error) bool {
	switch Classify(err) {
	case ClassTransport, ClassFraming, ClassSecurity:
		return true
	default:
		return false
	}
}
