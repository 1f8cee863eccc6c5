package vaultiam

import (
	"fmt"
	"strings"

	"github.com/juju/errors"

	"github.com/thomasdesr/vaultiam/gcisigner"
)

// Error kinds. Errors returned by this package carry exactly one of them;
// test with errors.Is.
const (
	ErrInvalidParameters = errors.ConstError("invalid parameters")

	// ErrCredentials means no usable AWS credentials were found. Nothing was
	// sent to Vault.
	ErrCredentials = gcisigner.ErrCredentials

	// ErrConnect covers failures to reach Vault at all: DNS, TCP, TLS or a
	// cancelled context.
	ErrConnect = errors.ConstError("failed to connect to vault")

	// ErrProtocol means Vault was reached but the HTTP exchange broke.
	ErrProtocol = errors.ConstError("http protocol error")

	// ErrDeserialization means Vault's response body was not what the login
	// endpoint returns.
	ErrDeserialization = errors.ConstError("failed to decode vault response")

	// ErrVerifier means Vault rejected the login. The error unwraps to a
	// *VerifierError.
	ErrVerifier = errors.ConstError("vault rejected login")

	// ErrEmptyToken means Vault answered successfully but without a client
	// token.
	ErrEmptyToken = errors.ConstError("vault returned no client token")
)

// VerifierError carries Vault's error list from a non-2xx response.
type VerifierError struct {
	StatusCode int
	Errors     []string
}

func (e *VerifierError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("Vault error: status %d", e.StatusCode)
	}
	return "Vault error: " + strings.Join(e.Errors, ", ")
}
