package fakevault

import (
	"net/http/httptest"
	"testing"

	"github.com/thomasdesr/vaultiam/internal/testutils"
)

// Harness is a fake Vault wired to a fake STS, both listening locally.
type Harness struct {
	STS       *STS
	STSServer *httptest.Server

	Vault       *Vault
	VaultServer *httptest.Server
}

// Start launches both servers and closes them when the test ends. The fake
// Vault reaches the fake STS whatever host the signed request names.
func Start(tb testing.TB, mount string, identities ...Identity) *Harness {
	tb.Helper()

	h := &Harness{STS: NewSTS(identities...)}

	h.STSServer = httptest.NewTLSServer(h.STS)
	tb.Cleanup(h.STSServer.Close)

	h.Vault = New(mount, testutils.ServerTransport(tb, h.STSServer))
	h.VaultServer = httptest.NewServer(h.Vault)
	tb.Cleanup(h.VaultServer.Close)

	return h
}
