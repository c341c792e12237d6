package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/netcore/internal/protocol"
	"github.com/danmuck/netcore/internal/protocol/security"
)

// Wire layout: magic(2) flags(1) reserved(1) length(4) | payload | EndMarker.
const (
	Magic     uint16 = 0x4E43
	HeaderLen        = 8
	EndMarker byte   = 0x03
	Overhead         = HeaderLen + 1

	FlagEncrypted uint8 = 0x01
	FlagSigned    uint8 = 0x02
	knownFlags          = FlagEncrypted | FlagSigned
)

var (
	ErrShortHeader      = fmt.Errorf("%w: frame: short header", protocol.ErrFraming)
	ErrBadMagic         = fmt.Errorf("%w: frame: bad magic", protocol.ErrFraming)
	ErrUnknownFlags     = fmt.Errorf("%w: frame: unknown flag bits", protocol.ErrFraming)
	ErrLengthMismatch   = fmt.Errorf("%w: frame: length does not match declared length", protocol.ErrFraming)
	ErrMissingEndMarker = fmt.Errorf("%w: frame: missing end marker", protocol.ErrFraming)
	ErrPayloadTooLarge  = fmt.Errorf("%w: frame: payload too large", protocol.ErrFraming)
	ErrFlagMismatch     = fmt.Errorf("%w: frame: flags do not match security provider", protocol.ErrSecurity)
)

// Header is the fixed wire header. Reserved is carried through unchanged so
// a re-encoded header matches the bytes that arrived.
type Header struct {
	Flags    uint8
	Reserved uint8
	Length   uint32
}

func (h Header) Encrypted() bool { return h.Flags&FlagEncrypted != 0 }
func (h Header) Signed() bool    { return h.Flags&FlagSigned != 0 }

// FrameLen is the total size of a frame carrying h.
func (h Header) FrameLen() int {
	return Overhead + int(h.Length)
}

// Limits constrains frame decode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 8 * 1024 * 1024}
}

func (l Limits) Check(h Header) error {
	if l.MaxPayloadBytes > 0 && h.Length > l.MaxPayloadBytes {
		return fmt.Errorf("%w: declared %d, limit %d", ErrPayloadTooLarge, h.Length, l.MaxPayloadBytes)
	}
	return nil
}

func FlagsFor(sec *security.Provider) uint8 {
	var f uint8
	if sec.Encrypts() {
		f |= FlagEncrypted
	}
	if sec.Signs() {
		f |= FlagSigned
	}
	return f
}

func EncodeHeader(h Header) []byte {
	return appendHeader(make([]byte, 0, HeaderLen), h)
}

func appendHeader(dst []byte, h Header) []byte {
	dst = binary.BigEndian.AppendUint16(dst, Magic)
	dst = append(dst, h.Flags, h.Reserved)
	return binary.BigEndian.AppendUint32(dst, h.Length)
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	if m := binary.BigEndian.Uint16(b[0:2]); m != Magic {
		return Header{}, fmt.Errorf("%w: 0x%04x", ErrBadMagic, m)
	}
	h := Header{Flags: b[2], Reserved: b[3], Length: binary.BigEndian.Uint32(b[4:8])}
	if h.Flags&^knownFlags != 0 {
		return Header{}, fmt.Errorf("%w: 0x%02x", ErrUnknownFlags, h.Flags)
	}
	return h, nil
}

// Pack seals payload with sec and wraps it in a frame. A nil sec sends the
// payload as is.
func Pack(payload []byte, sec *security.Provider) ([]byte, error) {
	sealed, err := sec.Seal(payload)
	if err != nil {
		return nil, err
	}
	if uint64(len(sealed)) > uint64(^uint32(0)) {
		return nil, ErrPayloadTooLarge
	}
	h := Header{Flags: FlagsFor(sec), Length: uint32(len(sealed))}
	out := make([]byte, 0, h.FrameLen())
	out = appendHeader(out, h)
	out = append(out, sealed...)
	return append(out, EndMarker), nil
}

// Parse checks the framing of raw, which must be exactly one frame, and
// returns the still-sealed body.
func Parse(raw []byte) (Header, []byte, error) {
	h, err := DecodeHeader(raw)
	if err != nil {
		return Header{}, nil, err
	}
	if len(raw) != h.FrameLen() {
		return Header{}, nil, fmt.Errorf("%w: have %d bytes, header declares %d", ErrLengthMismatch, len(raw), h.FrameLen())
	}
	end := HeaderLen + int(h.Length)
	if raw[end] != EndMarker {
		return Header{}, nil, fmt.Errorf("%w: 0x%02x at %d", ErrMissingEndMarker, raw[end], end)
	}
	return h, raw[HeaderLen:end], nil
}

// Unpack validates raw and returns the opened payload.
func Unpack(raw []byte, sec *security.Provider) ([]byte, error) {
	h, body, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if want := FlagsFor(sec); h.Flags != want {
		return nil, fmt.Errorf("%w: frame 0x%02x, provider 0x%02x", ErrFlagMismatch, h.Flags, want)
	}
	return sec.Open(body)
}

// ReadHeader reads one header from a stream. A clean EOF before any header
// byte is returned as io.EOF.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, ErrShortHeader
		}
		return Header{}, err
	}
	return DecodeHeader(buf[:])
}

// ReadRest reads the payload and end marker that follow h and returns the
// complete frame, header included.
func ReadRest(r io.Reader, h Header) ([]byte, error) {
	raw := make([]byte, h.FrameLen())
	copy(raw, EncodeHeader(h))
	if _, err := io.ReadFull(r, raw[HeaderLen:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream ended inside frame", ErrLengthMismatch)
		}
		return nil, err
	}
	if raw[len(raw)-1] != EndMarker {
		return nil, fmt.Errorf("%w: 0x%02x", ErrMissingEndMarker, raw[len(raw)-1])
	}
	return raw, nil
}

// ReadFrame reads one complete frame, rejecting oversized declarations before
// allocating.
func ReadFrame(r io.Reader, limits Limits) ([]byte, Header, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, Header{}, err
	}
	if err := limits.Check(h); err != nil {
		return nil, Header{}, err
	}
	raw, err := ReadRest(r, h)
	if err != nil {
		return nil, Header{}, err
	}
	return raw, h, nil
}
