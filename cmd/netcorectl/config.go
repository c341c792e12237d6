package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/netcore/internal/protocol/security"
	"github.com/danmuck/netcore/internal/session"
	"github.com/danmuck/netcore/internal/transport"
)

// fileConfig maps netcorectl config.toml keys. Durations are Go duration
// strings ("30s").
type fileConfig struct {
	TCPAddr            string   `toml:"tcp_addr"`
	UDPAddr            string   `toml:"udp_addr"`
	AdminAddr          string   `toml:"admin_addr"`
	CORSOrigins        []string `toml:"cors_origins"`
	AuthToken          string   `toml:"auth_token"`
	AuthMaxFailures    int      `toml:"auth_max_failures"`
	ConnectTimeout     string   `toml:"connect_timeout"`
	ReadTimeout        string   `toml:"read_timeout"`
	WriteTimeout       string   `toml:"write_timeout"`
	ResponseTimeout    string   `toml:"response_timeout"`
	IdleTimeout        string   `toml:"idle_timeout"`
	ScanInterval       string   `toml:"scan_interval"`
	MaxPayloadBytes    uint32   `toml:"max_payload_bytes"`
	MaxConnectAttempts int      `toml:"max_connect_attempts"`

	SessionSecurityMode string `toml:"session_security_mode"`
	SessionTLSEnabled   bool   `toml:"session_tls_enabled"`
	SessionTLSMutual    bool   `toml:"session_tls_mutual"`
	SessionTLSCertFile  string `toml:"session_tls_cert_file"`
	SessionTLSKeyFile   string `toml:"session_tls_key_file"`
	SessionTLSCAFile    string `toml:"session_tls_ca_file"`
	SessionTLSServer    string `toml:"session_tls_server_name"`

	SecurityMode       string `toml:"security_mode"`
	SecurityCipher     string `toml:"security_cipher"`
	SecurityKeyFile    string `toml:"security_key_file"`
	SecurityPassphrase string `toml:"security_passphrase"`
	SecuritySalt       string `toml:"security_salt"`
}

type serviceConfig struct {
	Server          transport.ServerConfig
	AdminAddr       string
	CORSOrigins     []string
	AuthToken       string
	AuthMaxFailures int
}

func defaultServiceConfig() serviceConfig {
	return serviceConfig{Server: transport.DefaultServerConfig()}
}

// loadServiceConfig overlays the keys present in path onto the defaults. An
// empty path yields the defaults.
func loadServiceConfig(path string) (serviceConfig, error) {
	cfg := defaultServiceConfig()
	if strings.TrimSpace(path) == "" {
		cfg.Server.Session = cfg.Server.Session.WithDefaults()
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serviceConfig{}, fmt.Errorf("load netcore config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return serviceConfig{}, fmt.Errorf("load netcore config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("tcp_addr") {
		cfg.Server.TCPAddr = strings.TrimSpace(raw.TCPAddr)
	}
	if meta.IsDefined("udp_addr") {
		cfg.Server.UDPAddr = strings.TrimSpace(raw.UDPAddr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("auth_token") {
		cfg.AuthToken = strings.TrimSpace(raw.AuthToken)
	}
	if meta.IsDefined("auth_max_failures") {
		cfg.AuthMaxFailures = raw.AuthMaxFailures
	}
	if err := applySession(&cfg.Server.Session, meta, raw); err != nil {
		return serviceConfig{}, err
	}
	cfg.Server.Session = cfg.Server.Session.WithDefaults()
	return cfg, nil
}

// loadSessionConfig reads only the session keys, for the client side.
func loadSessionConfig(path string) (session.Config, error) {
	cfg := session.DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return session.Config{}, fmt.Errorf("load netcore config: %w", err)
	}
	if err := applySession(&cfg, meta, raw); err != nil {
		return session.Config{}, err
	}
	return cfg.WithDefaults(), nil
}

func applySession(cfg *session.Config, meta toml.MetaData, raw fileConfig) error {
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
		{"response_timeout", raw.ResponseTimeout, &cfg.ResponseTimeout},
		{"idle_timeout", raw.IdleTimeout, &cfg.IdleTimeout},
		{"scan_interval", raw.ScanInterval, &cfg.ScanInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("load netcore config: %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("max_payload_bytes") {
		cfg.MaxPayloadBytes = raw.MaxPayloadBytes
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}

	if meta.IsDefined("session_security_mode") {
		cfg.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SessionSecurityMode))
	}
	if meta.IsDefined("session_tls_enabled") {
		cfg.TLS.Enabled = raw.SessionTLSEnabled
	}
	if meta.IsDefined("session_tls_mutual") {
		cfg.TLS.Mutual = raw.SessionTLSMutual
	}
	if meta.IsDefined("session_tls_cert_file") {
		cfg.TLS.CertFile = strings.TrimSpace(raw.SessionTLSCertFile)
	}
	if meta.IsDefined("session_tls_key_file") {
		cfg.TLS.KeyFile = strings.TrimSpace(raw.SessionTLSKeyFile)
	}
	if meta.IsDefined("session_tls_ca_file") {
		cfg.TLS.CAFile = strings.TrimSpace(raw.SessionTLSCAFile)
	}
	if meta.IsDefined("session_tls_server_name") {
		cfg.TLS.ServerName = strings.TrimSpace(raw.SessionTLSServer)
	}

	if meta.IsDefined("security_mode") {
		cfg.Security.Mode = security.Mode(strings.TrimSpace(raw.SecurityMode))
	}
	if meta.IsDefined("security_cipher") {
		cfg.Security.Cipher = strings.TrimSpace(raw.SecurityCipher)
	}
	if meta.IsDefined("security_key_file") {
		cfg.Security.KeyFile = strings.TrimSpace(raw.SecurityKeyFile)
	}
	if meta.IsDefined("security_passphrase") {
		cfg.Security.Passphrase = raw.SecurityPassphrase
	}
	if meta.IsDefined("security_salt") {
		cfg.Security.Salt = strings.TrimSpace(raw.SecuritySalt)
	}
	return nil
}
