package vaulthttp

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-rootcerts"
	"golang.org/x/net/http2"

	"github.com/thomasdesr/vaultiam/internal/errorutil"
)

type Config struct {
	// TLSConfig is cloned and used as the base TLS configuration.
	TLSConfig *tls.Config

	// CACertFile, CACertPEM and CACertPath, in that order of precedence,
	// replace the system roots.
	CACertFile string
	CACertPath string
	CACertPEM  []byte

	InsecureSkipVerify bool

	// DialContext overrides how connections are made.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Transport returns a non-pooling transport that speaks HTTP/2 where it can.
func Transport(cfg Config) (*http.Transport, error) {
	tr := cleanhttp.DefaultTransport()
	tr.DisableKeepAlives = true

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.TLSConfig != nil {
		tlsCfg = cfg.TLSConfig.Clone()
	}

	if cfg.CACertFile != "" || cfg.CACertPath != "" || len(cfg.CACertPEM) > 0 {
		err := rootcerts.ConfigureTLS(tlsCfg, &rootcerts.Config{
			CAFile:        cfg.CACertFile,
			CAPath:        cfg.CACertPath,
			CACertificate: cfg.CACertPEM,
		})
		if err != nil {
			return nil, errorutil.Wrap(err, "loading CA certificates")
		}
	}

	if cfg.InsecureSkipVerify {
		tlsCfg.InsecureSkipVerify = true
	}
	tr.TLSClientConfig = tlsCfg

	if cfg.DialContext != nil {
		tr.DialContext = cfg.DialContext
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, errorutil.Wrap(err, "configuring http2")
	}

	return tr, nil
}

// NewClient returns an http.Client for one login exchange.
func NewClient(cfg Config) (*http.Client, error) {
	tr, err := Transport(cfg)
	if err != nil {
		return nil, err
	}

	return &http.Client{Transport: tr}, nil
}
