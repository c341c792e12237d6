package security

import (
	"errors"
	"fmt"

	"github.com/danmuck/netcore/internal/protocol"
)

// Failures raised while sealing or opening a payload. Each wraps
// protocol.ErrSecurity.
var (
	ErrKeySize   = fmt.Errorf("%w: security: invalid key size", protocol.ErrSecurity)
	ErrDecrypt   = fmt.Errorf("%w: security: decryption failed", protocol.ErrSecurity)
	ErrIntegrity = fmt.Errorf("%w: security: integrity check failed", protocol.ErrSecurity)
	ErrMalformed = fmt.Errorf("%w: security: malformed protected payload", protocol.ErrSecurity)
)

var ErrInvalidMode = errors.New("security: invalid mode")

// Cipher transforms a payload into ciphertext and back.
type Cipher interface {
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(sealed []byte) ([]byte, error)
}

// Integrity attaches and verifies an authentication tag.
type Integrity interface {
	Protect(data []byte) ([]byte, error)
	Unprotect(protected []byte) ([]byte, error)
}

// Provider pairs an optional Cipher with an optional Integrity provider. A
// nil or empty Provider passes payloads through untouched.
type Provider struct {
	Cipher    Cipher
	Integrity Integrity
}

func (p *Provider) Encrypts() bool {
	return p != nil && p.Cipher != nil
}

func (p *Provider) Signs() bool {
	return p != nil && p.Integrity != nil
}

// Seal encrypts, then protects. Errors from either stage are reported as
// security errors.
func (p *Provider) Seal(payload []byte) ([]byte, error) {
	out := payload
	var err error
	if p.Encrypts() {
		if out, err = p.Cipher.Encrypt(out); err != nil {
			return nil, asSecurity(err)
		}
	}
	if p.Signs() {
		if out, err = p.Integrity.Protect(out); err != nil {
			return nil, asSecurity(err)
		}
	}
	return out, nil
}

// Open reverses Seal: unprotect, then decrypt.
func (p *Provider) Open(sealed []byte) ([]byte, error) {
	out := sealed
	var err error
	if p.Signs() {
		if out, err = p.Integrity.Unprotect(out); err != nil {
			return nil, asSecurity(err)
		}
	}
	if p.Encrypts() {
		if out, err = p.Cipher.Decrypt(out); err != nil {
			return nil, asSecurity(err)
		}
	}
	return out, nil
}

func asSecurity(err error) error {
	if errors.Is(err, protocol.ErrSecurity) {
		return err
	}
	return fmt.Errorf("%w: %w", protocol.ErrSecurity, err)
}
