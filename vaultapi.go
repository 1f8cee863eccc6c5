package vaultiam

import (
	"context"

	"github.com/hashicorp/vault/api"
	"github.com/juju/errors"

	"github.com/thomasdesr/vaultiam/internal/errorutil"
)

// AuthMethod plugs the iam login into a vault/api client:
//
//	secret, err := vaultClient.Auth().Login(ctx, &vaultiam.AuthMethod{
//		Client: c,
//		Role:   "deployer",
//	})
//
// The vault/api client's own address, TLS settings and retry policy are used
// for the login request.
type AuthMethod struct {
	Client *Client

	// MountPath defaults to "aws".
	MountPath   string
	Role        string
	IAMServerID string
}

var _ api.AuthMethod = (*AuthMethod)(nil)

// NewAuthMethod returns an AuthMethod for role using a Client built from opts.
func NewAuthMethod(role string, opts ...Option) (*AuthMethod, error) {
	c, err := NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return &AuthMethod{Client: c, Role: role}, nil
}

func (a *AuthMethod) Login(ctx context.Context, client *api.Client) (*api.Secret, error) {
	if client == nil {
		return nil, errors.WithType(errors.New("vault client is nil"), ErrInvalidParameters)
	}
	if a.Client == nil {
		return nil, errors.WithType(errors.New("auth method has no client"), ErrInvalidParameters)
	}

	addr, err := ParseAddress(client.Address())
	if err != nil {
		return nil, err
	}

	p, err := Parameters{
		VaultAddress: addr,
		MountPath:    a.MountPath,
		Role:         a.Role,
		IAMServerID:  a.IAMServerID,
	}.Validate()
	if err != nil {
		return nil, err
	}

	env, err := a.Client.buildPayload(ctx, p)
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"iam_http_request_method": env.IAMHTTPRequestMethod,
		"iam_request_url":         env.IAMRequestURL,
		"iam_request_headers":     env.IAMRequestHeaders,
		"iam_request_body":        env.IAMRequestBody,
		"role":                    env.Role,
	}

	secret, err := client.Logical().WriteWithContext(ctx, p.loginPath(), data)
	if err != nil {
		var respErr *api.ResponseError
		if errors.As(err, &respErr) {
			return nil, errors.WithType(&VerifierError{StatusCode: respErr.StatusCode, Errors: respErr.Errors}, ErrVerifier)
		}
		return nil, errors.WithType(errorutil.Wrap(err, "writing login"), ErrConnect)
	}

	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return nil, errors.WithType(errors.New("login response has no client token"), ErrEmptyToken)
	}

	return secret, nil
}
