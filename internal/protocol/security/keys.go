package security

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize          = 32
	MinSaltSize      = 8
	DeriveIterations = 100_000
)

var ErrKeyFile = errors.New("security: invalid key file")

// Keys is the symmetric material a Provider is built from.
type Keys struct {
	CipherKey []byte
	HMACKey   []byte
}

type keyFile struct {
	CipherKey string `toml:"cipher_key"`
	HMACKey   string `toml:"hmac_key"`
}

func GenerateKeys() (Keys, error) {
	k := Keys{CipherKey: make([]byte, KeySize), HMACKey: make([]byte, KeySize)}
	if _, err := rand.Read(k.CipherKey); err != nil {
		return Keys{}, err
	}
	if _, err := rand.Read(k.HMACKey); err != nil {
		return Keys{}, err
	}
	return k, nil
}

// DeriveKeys stretches passphrase with PBKDF2-SHA256 and splits the result
// into independent cipher and HMAC keys with HKDF.
func DeriveKeys(passphrase, salt []byte) (Keys, error) {
	if len(passphrase) == 0 {
		return Keys{}, fmt.Errorf("%w: empty passphrase", ErrKeySize)
	}
	if len(salt) < MinSaltSize {
		return Keys{}, fmt.Errorf("%w: salt is %d bytes, need %d", ErrKeySize, len(salt), MinSaltSize)
	}
	master := pbkdf2.Key(passphrase, salt, DeriveIterations, KeySize, sha256.New)
	k := Keys{CipherKey: make([]byte, KeySize), HMACKey: make([]byte, KeySize)}
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte("netcore cipher")), k.CipherKey); err != nil {
		return Keys{}, err
	}
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte("netcore hmac")), k.HMACKey); err != nil {
		return Keys{}, err
	}
	return k, nil
}

func LoadKeyFile(path string) (Keys, error) {
	var raw keyFile
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return Keys{}, fmt.Errorf("%w: %s: %w", ErrKeyFile, path, err)
	}
	cipherKey, err := base64.StdEncoding.DecodeString(raw.CipherKey)
	if err != nil {
		return Keys{}, fmt.Errorf("%w: cipher_key: %w", ErrKeyFile, err)
	}
	hmacKey, err := base64.StdEncoding.DecodeString(raw.HMACKey)
	if err != nil {
		return Keys{}, fmt.Errorf("%w: hmac_key: %w", ErrKeyFile, err)
	}
	if len(cipherKey) != KeySize || len(hmacKey) < MinHMACKeySize {
		return Keys{}, fmt.Errorf("%w: cipher_key=%d hmac_key=%d bytes", ErrKeyFile, len(cipherKey), len(hmacKey))
	}
	return Keys{CipherKey: cipherKey, HMACKey: hmacKey}, nil
}

// WriteKeyFile writes k with owner-only permissions, creating parent
// directories as needed.
func WriteKeyFile(path string, k Keys) error {
	var buf bytes.Buffer
	err := toml.NewEncoder(&buf).Encode(keyFile{
		CipherKey: base64.StdEncoding.EncodeToString(k.CipherKey),
		HMACKey:   base64.StdEncoding.EncodeToString(k.HMACKey),
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// LoadOrCreateKeyFile loads path, or generates and writes fresh keys when it
// does not exist. created reports which happened.
func LoadOrCreateKeyFile(path string) (k Keys, created bool, err error) {
	k, err = LoadKeyFile(path)
	if err == nil {
		return k, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return Keys{}, false, err
	}
	if k, err = GenerateKeys(); err != nil {
		return Keys{}, false, err
	}
	if err := WriteKeyFile(path, k); err != nil {
		return Keys{}, false, err
	}
	return k, true, nil
}
