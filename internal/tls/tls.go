package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/emuctl/internal/config"
)

// File names used inside a certificate directory.
const (
	CACertName = "tls_ca.crt"
	CertName   = "tls.crt"
	KeyName    = "tls.key"
)

const defaultValidity = 5 * 365 * 24 * time.Hour

// Setup returns the server TLS configuration, or nil when TLS is disabled.
// Explicit cert/key files win over a certificate directory. In directory
// mode a self-signed pair is generated when AutoGenerate is set and the
// pair is missing.
func Setup(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		return serverConfig(cfg.CertFile, cfg.KeyFile)
	}
	if cfg.Dir == "" {
		return nil, errors.New("tls enabled but neither cert_file/key_file nor dir is set")
	}
	certPath := filepath.Join(cfg.Dir, CertName)
	keyPath := filepath.Join(cfg.Dir, KeyName)
	if !exists(certPath) || !exists(keyPath) {
		if !cfg.AutoGenerate {
			return nil, fmt.Errorf("tls certificate pair not found in %s", cfg.Dir)
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create tls dir: %w", err)
		}
		hostname, _ := os.Hostname()
		err := GenerateSelfSigned(CertConfig{
			CommonName:   "localhost",
			Organization: "emuctl",
			DNSNames:     nonEmpty("localhost", hostname),
			IPAddresses:  []string{"127.0.0.1", "::1"},
			NotAfter:     time.Now().Add(defaultValidity),
			CertPath:     certPath,
			KeyPath:      keyPath,
			CACertPath:   filepath.Join(cfg.Dir, CACertName),
		})
		if err != nil {
			return nil, fmt.Errorf("certificate generation failed: %w", err)
		}
	}
	return serverConfig(certPath, keyPath)
}

// serverConfig loads the pair once up front so a bad pair fails at startup.
func serverConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(filepath.Clean(certPath), filepath.Clean(keyPath))
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func nonEmpty(vals ...string) []string {
	out := make([]string, 0, len(vals))
	seen := map[string]bool{}
	for _, v := range vals {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
