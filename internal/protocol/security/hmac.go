package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

const (
	MinHMACKeySize = 16
	hmacSigSize    = sha256.Size
)

type hmacSHA256 struct {
	key []byte
}

// NewHMACSHA256 returns an Integrity provider whose protected layout is
// uint16 sigLen | sig | uint32 dataLen | data, big-endian.
func NewHMACSHA256(key []byte) (Integrity, error) {
	if len(key) < MinHMACKeySize {
		return nil, fmt.Errorf("%w: hmac key is %d bytes, need %d", ErrKeySize, len(key), MinHMACKeySize)
	}
	return &hmacSHA256{key: append([]byte(nil), key...)}, nil
}

func (h *hmacSHA256) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, h.key)
	mac.Write(data)
	return mac.Sum(nil)
}

func (h *hmacSHA256) Protect(data []byte) ([]byte, error) {
	sig := h.sign(data)
	out := make([]byte, 0, 2+len(sig)+4+len(data))
	out = binary.BigEndian.AppendUint16(out, uint16(len(sig)))
	out = append(out, sig...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(data)))
	return append(out, data...), nil
}

func (h *hmacSHA256) Unprotect(protected []byte) ([]byte, error) {
	if len(protected) < 2 {
		return nil, fmt.Errorf("%w: missing signature length", ErrMalformed)
	}
	sigLen := int(binary.BigEndian.Uint16(protected))
	if sigLen != hmacSigSize {
		return nil, fmt.Errorf("%w: signature is %d bytes", ErrMalformed, sigLen)
	}
	rest := protected[2:]
	if len(rest) < sigLen+4 {
		return nil, fmt.Errorf("%w: truncated signature block", ErrMalformed)
	}
	sig := rest[:sigLen]
	rest = rest[sigLen:]
	dataLen := uint64(binary.BigEndian.Uint32(rest))
	data := rest[4:]
	if uint64(len(data)) != dataLen {
		return nil, fmt.Errorf("%w: data is %d bytes, declared %d", ErrMalformed, len(data), dataLen)
	}
	if !hmac.Equal(sig, h.sign(data)) {
		return nil, ErrIntegrity
	}
	return append([]byte(nil), data...), nil
}
