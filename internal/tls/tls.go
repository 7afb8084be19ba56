// Package tls builds the TLS client configuration used to reach mail panels,
// including panels served with certificates from a private CA.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
)

// ClientConfig returns a tls.Config trusting the system roots plus the PEM
// certificates in caFile. It returns nil when neither caFile nor
// insecureSkipVerify is set, so the HTTP client keeps its default transport.
func ClientConfig(caFile string, insecureSkipVerify bool) (*tls.Config, error) {
	if caFile == "" && !insecureSkipVerify {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if caFile != "" {
		if _, err := os.Stat(caFile); err != nil {
			return nil, fmt.Errorf("CA file not found: %w", err)
		}

		pemData, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}

		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("no certificates found in CA file %s", caFile)
		}
		cfg.RootCAs = pool
	}

	if insecureSkipVerify {
		slog.Warn("panel certificate verification disabled")
		cfg.InsecureSkipVerify = true
	}

	return cfg, nil
}
