package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/crypto/acme/autocert"

	"orrery.space/config"
)

// setupTLS builds an autocert manager that only requests certificates for
// the configured hosts, and the TLS config serving them
func setupTLS(cfg config.TLS, log *slog.Logger) (*autocert.Manager, *tls.Config, error) {
	if err := os.MkdirAll(cfg.CacheDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create certificate cache: %w", err)
	}

	hosts := NewOriginValidator(cfg.Hosts)
	manager := &autocert.Manager{
		Cache:  autocert.DirCache(cfg.CacheDir),
		Prompt: autocert.AcceptTOS,
		Email:  cfg.Email,
		HostPolicy: func(ctx context.Context, host string) error {
			if hosts.IsAllowedHost(host) {
				log.Info("accepting certificate request", "host", host)
				return nil
			}
			log.Warn("rejecting certificate request", "host", host)
			return fmt.Errorf("host %s not configured", host)
		},
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12
	tlsConfig.CurvePreferences = []tls.CurveID{tls.X25519, tls.CurveP256}
	return manager, tlsConfig, nil
}
