package vaultiam

import (
	"time"

	"github.com/juju/errors"

	"github.com/thomasdesr/vaultiam/gcisigner/sources"
)

// TokenResponse is the body Vault returns from a successful login.
type TokenResponse struct {
	RequestID     string                 `json:"request_id"`
	LeaseID       string                 `json:"lease_id"`
	LeaseDuration int                    `json:"lease_duration"`
	Renewable     bool                   `json:"renewable"`
	Data          map[string]interface{} `json:"data"`
	Auth          *AuthInfo              `json:"auth"`
	Warnings      []string               `json:"warnings"`
	WrapInfo      *WrapInfo              `json:"wrap_info"`
}

// AuthInfo is the token Vault issued and what it is allowed to do.
type AuthInfo struct {
	ClientToken   string            `json:"client_token"`
	Accessor      string            `json:"accessor"`
	Policies      []string          `json:"policies"`
	TokenPolicies []string          `json:"token_policies"`
	Metadata      map[string]string `json:"metadata"`

	// LeaseDuration is in seconds.
	LeaseDuration int  `json:"lease_duration"`
	Renewable     bool `json:"renewable"`

	EntityID  string `json:"entity_id"`
	TokenType string `json:"token_type"`
	Orphan    bool   `json:"orphan"`
}

// TTL is LeaseDuration as a time.Duration.
func (a *AuthInfo) TTL() time.Duration {
	return time.Duration(a.LeaseDuration) * time.Second
}

// Principal returns the IAM role Vault authenticated, from the client_arn or
// canonical_arn metadata the aws auth method attaches.
func (a *AuthInfo) Principal() (sources.Role, error) {
	for _, key := range []string{"canonical_arn", "client_arn"} {
		if v := a.Metadata[key]; v != "" {
			return sources.Principal(v)
		}
	}
	return sources.Role{}, errors.NotFoundf("principal metadata")
}

// WrapInfo is set instead of Auth when the login response was wrapped.
type WrapInfo struct {
	Token           string    `json:"token"`
	Accessor        string    `json:"accessor"`
	TTL             int       `json:"ttl"`
	CreationTime    time.Time `json:"creation_time"`
	CreationPath    string    `json:"creation_path"`
	WrappedAccessor string    `json:"wrapped_accessor"`
}
