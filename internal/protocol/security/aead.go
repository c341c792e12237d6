package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// aeadCipher prefixes each ciphertext with a fresh random nonce.
type aeadCipher struct {
	name string
	aead cipher.AEAD
}

// NewAESGCM accepts 16, 24 or 32 byte keys.
func NewAESGCM(key []byte) (Cipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: aes-gcm key is %d bytes", ErrKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &aeadCipher{name: CipherAESGCM, aead: aead}, nil
}

// NewXChaCha20 accepts a 32 byte key.
func NewXChaCha20(key []byte) (Cipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: xchacha20 key is %d bytes", ErrKeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &aeadCipher{name: CipherXChaCha20, aead: aead}, nil
}

func (c *aeadCipher) String() string {
	return c.name
}

func (c *aeadCipher) Encrypt(plain []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	out := make([]byte, ns, ns+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("security: nonce: %w", err)
	}
	return c.aead.Seal(out, out[:ns], plain, nil), nil
}

func (c *aeadCipher) Decrypt(sealed []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(sealed) < ns+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: %s ciphertext is %d bytes", ErrDecrypt, c.name, len(sealed))
	}
	plain, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecrypt, c.name)
	}
	return plain, nil
}
