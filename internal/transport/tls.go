package transport

import (
	"crypto/tls"

	tlsutil "deskmirror/internal/tls"
)

const alpn = "deskmirror"

func serverTLS(cfg *tls.Config, proto string) (*tls.Config, error) {
	if cfg == nil {
		var err error
		if cfg, err = tlsutil.SelfSigned(); err != nil {
			return nil, err
		}
	} else {
		cfg = cfg.Clone()
	}
	if proto != "" {
		cfg.NextProtos = []string{proto}
	}
	return cfg, nil
}

// clientTLS skips verification when no config is given, matching the
// self-signed default on the listening side.
func clientTLS(cfg *tls.Config, proto string) *tls.Config {
	if cfg == nil {
		cfg = &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}
	} else {
		cfg = cfg.Clone()
	}
	if proto != "" {
		cfg.NextProtos = []string{proto}
	}
	return cfg
}
