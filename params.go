package vaultiam

import (
	"net/url"
	"strings"

	"github.com/juju/errors"

	"github.com/thomasdesr/vaultiam/internal/errorutil"
)

// DefaultMountPath is where Vault mounts the aws auth method unless told
// otherwise.
const DefaultMountPath = "aws"

// Parameters describe one login.
type Parameters struct {
	// VaultAddress is the base address, e.g. https://vault.example.com:8200.
	// A path prefix, for a Vault behind a reverse proxy, is kept.
	VaultAddress *url.URL

	// MountPath is the auth method's mount, "aws" when empty. Surrounding
	// slashes are ignored.
	MountPath string

	// Role is the Vault role to log in as.
	Role string

	// IAMServerID, when set, is signed into the request as
	// X-Vault-AWS-IAM-Server-ID. It must match the mount's
	// iam_server_id_header_value.
	IAMServerID string
}

// Validate checks the parameters and returns them with defaults applied.
func (p Parameters) Validate() (Parameters, error) {
	if p.VaultAddress == nil {
		return p, errors.WithType(errors.New("vault address is required"), ErrInvalidParameters)
	}
	if p.VaultAddress.Scheme != "http" && p.VaultAddress.Scheme != "https" {
		return p, errors.WithType(errors.Errorf("vault address %q must be http or https", p.VaultAddress), ErrInvalidParameters)
	}
	if p.VaultAddress.Host == "" {
		return p, errors.WithType(errors.Errorf("vault address %q has no host", p.VaultAddress), ErrInvalidParameters)
	}
	if strings.TrimSpace(p.Role) == "" {
		return p, errors.WithType(errors.New("role is required"), ErrInvalidParameters)
	}

	if p.MountPath == "" {
		p.MountPath = DefaultMountPath
	}
	p.MountPath = strings.Trim(p.MountPath, "/")
	if p.MountPath == "" {
		return p, errors.WithType(errors.New("mount path is empty"), ErrInvalidParameters)
	}
	for _, seg := range strings.Split(p.MountPath, "/") {
		if seg == "." || seg == ".." {
			return p, errors.WithType(errors.Errorf("mount path %q has a relative segment", p.MountPath), ErrInvalidParameters)
		}
	}

	return p, nil
}

// LoginURL is {VaultAddress}/v1/auth/{MountPath}/login. Call it on validated
// parameters.
func (p Parameters) LoginURL() *url.URL {
	return p.VaultAddress.JoinPath("v1", "auth", p.MountPath, "login")
}

// loginPath is the same endpoint relative to /v1, as vault/api wants it.
func (p Parameters) loginPath() string {
	return "auth/" + p.MountPath + "/login"
}

// ParseAddress parses a Vault address such as VAULT_ADDR. Validate does the
// remaining checks.
func ParseAddress(addr string) (*url.URL, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, errors.WithType(errorutil.Wrapf(err, "parsing vault address %q", addr), ErrInvalidParameters)
	}
	return u, nil
}
