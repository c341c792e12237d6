package security

import (
	"encoding/base64"
	"fmt"
	"strings"
)

type Mode string

const (
	ModeNone      Mode = "none"
	ModeCipher    Mode = "cipher"
	ModeIntegrity Mode = "integrity"
	ModeBoth      Mode = "both"
)

const (
	CipherAESGCM    = "aes-gcm"
	CipherXChaCha20 = "xchacha20"
)

// Config selects the payload protection applied by every frame. Keys come
// from KeyFile when set, otherwise they are derived from Passphrase and Salt
// (base64).
type Config struct {
	Mode       Mode
	Cipher     string
	KeyFile    string
	Passphrase string
	Salt       string
}

func NormalizeMode(mode Mode) Mode {
	m := Mode(strings.ToLower(strings.TrimSpace(string(mode))))
	if m == "" {
		return ModeNone
	}
	return m
}

func normalizeCipher(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return CipherAESGCM
	}
	return n
}

func (m Mode) usesCipher() bool    { return m == ModeCipher || m == ModeBoth }
func (m Mode) usesIntegrity() bool { return m == ModeIntegrity || m == ModeBoth }

func (c Config) Validate() error {
	mode := NormalizeMode(c.Mode)
	switch mode {
	case ModeNone, ModeCipher, ModeIntegrity, ModeBoth:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}
	if mode == ModeNone {
		return nil
	}
	if mode.usesCipher() {
		switch normalizeCipher(c.Cipher) {
		case CipherAESGCM, CipherXChaCha20:
		default:
			return fmt.Errorf("%w: cipher %q", ErrInvalidMode, c.Cipher)
		}
	}
	if strings.TrimSpace(c.KeyFile) == "" && strings.TrimSpace(c.Passphrase) == "" {
		return fmt.Errorf("%w: %s needs key_file or passphrase", ErrInvalidMode, mode)
	}
	if strings.TrimSpace(c.KeyFile) == "" && strings.TrimSpace(c.Salt) == "" {
		return fmt.Errorf("%w: passphrase needs salt", ErrInvalidMode)
	}
	return nil
}

// NewProvider resolves key material for cfg and builds the matching Provider.
// ModeNone yields an empty Provider.
func NewProvider(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode := NormalizeMode(cfg.Mode)
	if mode == ModeNone {
		return &Provider{}, nil
	}

	var keys Keys
	var err error
	if strings.TrimSpace(cfg.KeyFile) != "" {
		keys, _, err = LoadOrCreateKeyFile(cfg.KeyFile)
	} else {
		var salt []byte
		if salt, err = base64.StdEncoding.DecodeString(cfg.Salt); err != nil {
			return nil, fmt.Errorf("security: salt: %w", err)
		}
		keys, err = DeriveKeys([]byte(cfg.Passphrase), salt)
	}
	if err != nil {
		return nil, err
	}
	return ProviderFromKeys(mode, cfg.Cipher, keys)
}

func ProviderFromKeys(mode Mode, cipherName string, keys Keys) (*Provider, error) {
	mode = NormalizeMode(mode)
	p := &Provider{}
	var err error
	if mode.usesCipher() {
		switch normalizeCipher(cipherName) {
		case CipherAESGCM:
			p.Cipher, err = NewAESGCM(keys.CipherKey)
		case CipherXChaCha20:
			p.Cipher, err = NewXChaCha20(keys.CipherKey)
		default:
			err = fmt.Errorf("%w: cipher %q", ErrInvalidMode, cipherName)
		}
		if err != nil {
			return nil, err
		}
	}
	if mode.usesIntegrity() {
		if p.Integrity, err = NewHMACSHA256(keys.HMACKey); err != nil {
			return nil, err
		}
	}
	return p, nil
}
