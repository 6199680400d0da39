package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig holds the TLS settings for broker connections.
type TLSConfig struct {
	// InsecureSkipVerify disables broker certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// CAFiles are PEM files whose certificates are trusted in addition to
	// the system pool.
	CAFiles []string `yaml:"ca_files"`

	// ServerName overrides the name used for SNI and verification.
	ServerName string `yaml:"server_name"`
}

// NewClientTLSConfig builds the TLS configuration used to dial a broker.
func NewClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if cfg == nil {
		return tlsConfig, nil
	}

	tlsConfig.ServerName = cfg.ServerName
	tlsConfig.InsecureSkipVerify = cfg.InsecureSkipVerify

	if len(cfg.CAFiles) > 0 {
		pool, err := loadCertPool(cfg.CAFiles)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

func loadCertPool(files []string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	for _, f := range files {
		pem, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", f)
		}
	}
	return pool, nil
}
