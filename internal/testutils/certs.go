package testutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// CA is a throwaway certificate authority for TLS tests that need a private
// root, as with a Vault behind an internal CA.
type CA struct {
	priv *ecdsa.PrivateKey
	cert *x509.Certificate

	CertPEM []byte
}

func NewCA(tb testing.TB) *CA {
	tb.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatalf("generate ca key: %v", err)
	}

	template := baseX509Cert(tb)
	template.Subject.CommonName = "vaultiam test ca"
	template.IsCA = true
	template.KeyUsage = x509.KeyUsageCertSign
	template.BasicConstraintsValid = true

	// Self-sign ourselves
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		tb.Fatalf("create ca certificate: %v", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		tb.Fatalf("parsing the cert we just created: %v", err)
	}

	return &CA{
		priv:    priv,
		cert:    cert,
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

// WriteCertFile writes the CA certificate to a temp file and returns its path.
func (ca *CA) WriteCertFile(tb testing.TB) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "ca.pem")
	if err := os.WriteFile(path, ca.CertPEM, 0o600); err != nil {
		tb.Fatalf("write ca file: %v", err)
	}
	return path
}

// ServerCert issues a serving certificate for hostnames, which may be DNS
// names or IP addresses.
func (ca *CA) ServerCert(tb testing.TB, hostnames ...string) tls.Certificate {
	tb.Helper()

	template := baseX509Cert(tb)
	template.KeyUsage = x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature
	template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}

	for _, h := range hostnames {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatalf("generate server key: %v", err)
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &priv.PublicKey, ca.priv)
	if err != nil {
		tb.Fatalf("create server cert: %v", err)
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		tb.Fatalf("parse server cert: %v", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        leaf,
	}
}

// NewTLSServer starts h behind a certificate issued by ca for 127.0.0.1,
// offering HTTP/2 and HTTP/1.1.
func (ca *CA) NewTLSServer(tb testing.TB, h http.Handler) *httptest.Server {
	tb.Helper()

	srv := httptest.NewUnstartedServer(h)
	srv.EnableHTTP2 = true
	srv.TLS = &tls.Config{
		Certificates: []tls.Certificate{ca.ServerCert(tb, "127.0.0.1", "localhost")},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}
	srv.StartTLS()
	tb.Cleanup(srv.Close)

	return srv
}

func baseX509Cert(tb testing.TB) *x509.Certificate {
	tb.Helper()

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		tb.Fatalf("serial number: %v", err)
	}

	return &x509.Certificate{
		SerialNumber: serialNumber,
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
	}
}
