// Package tlstest writes a throwaway certificate chain for TLS tests.
package tlstest

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Bundle holds the PEM paths of one CA, a loopback server leaf and a client
// leaf, all written under a test temp dir.
type Bundle struct {
	Dir        string
	CAFile     string
	ServerCert string
	ServerKey  string
	ClientCert string
	ClientKey  string
}

type signer struct {
	cert *x509.Certificate
	key  crypto.Signer
}

type leaf struct {
	name  string
	usage x509.ExtKeyUsage
	dns   []string
	ips   []net.IP
}

// NewBundle issues the chain. The server leaf is valid for localhost, 127.0.0.1
// and ::1.
func NewBundle(t testing.TB) Bundle {
	t.Helper()
	dir := t.TempDir()
	ca := newCA(t, dir)
	b := Bundle{Dir: dir, CAFile: filepath.Join(dir, "ca.crt")}
	b.ServerCert, b.ServerKey = ca.issue(t, dir, leaf{
		name:  "server",
		usage: x509.ExtKeyUsageServerAuth,
		dns:   []string{"localhost"},
		ips:   []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	})
	b.ClientCert, b.ClientKey = ca.issue(t, dir, leaf{
		name:  "client",
		usage: x509.ExtKeyUsageClientAuth,
	})
	return b
}

func newCA(t testing.TB, dir string) signer {
	t.Helper()
	pub, key := newKey(t)
	tmpl := template(t, "netcore test ca")
	tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	tmpl.BasicConstraintsValid = true
	tmpl.IsCA = true
	tmpl.MaxPathLenZero = true

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, key)
	if err != nil {
		t.Fatalf("tlstest: create ca: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("tlstest: parse ca: %v", err)
	}
	writePEM(t, filepath.Join(dir, "ca.crt"), "CERTIFICATE", der, 0o644)
	return signer{cert: cert, key: key}
}

func (s signer) issue(t testing.TB, dir string, l leaf) (certPath, keyPath string) {
	t.Helper()
	pub, key := newKey(t)
	tmpl := template(t, l.name)
	tmpl.KeyUsage = x509.KeyUsageDigitalSignature
	tmpl.ExtKeyUsage = []x509.ExtKeyUsage{l.usage}
	tmpl.DNSNames = l.dns
	tmpl.IPAddresses = l.ips

	der, err := x509.CreateCertificate(rand.Reader, tmpl, s.cert, pub, s.key)
	if err != nil {
		t.Fatalf("tlstest: issue %s: %v", l.name, err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("tlstest: marshal %s key: %v", l.name, err)
	}
	certPath = filepath.Join(dir, l.name+".crt")
	keyPath = filepath.Join(dir, l.name+".key")
	writePEM(t, certPath, "CERTIFICATE", der, 0o644)
	writePEM(t, keyPath, "PRIVATE KEY", keyDER, 0o600)
	return certPath, keyPath
}

func template(t testing.TB, commonName string) *x509.Certificate {
	t.Helper()
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		t.Fatalf("tlstest: serial: %v", err)
	}
	now := time.Now()
	return &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName, Organization: []string{"netcore"}},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
	}
}

func newKey(t testing.TB) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("tlstest: generate key: %v", err)
	}
	return pub, key
}

func writePEM(t testing.TB, path, blockType string, der []byte, perm os.FileMode) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		t.Fatalf("tlstest: write %s: %v", path, err)
	}
}
