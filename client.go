package vaultiam

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/thomasdesr/vaultiam/credsource"
	"github.com/thomasdesr/vaultiam/envelope"
	"github.com/thomasdesr/vaultiam/gcisigner"
	"github.com/thomasdesr/vaultiam/internal/errorutil"
	"github.com/thomasdesr/vaultiam/internal/redact"
	"github.com/thomasdesr/vaultiam/vaulthttp"
)

// Client logs in to Vault. It holds no per-login state, so one Client can
// serve concurrent Authenticate calls.
type Client struct {
	credentials aws.CredentialsProvider
	signer      gcisigner.Signer
	sdkSigner   bool

	tlsConfig      vaulthttp.Config
	httpClientFunc func() (*http.Client, error)

	logger log.FieldLogger
}

func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		logger: log.StandardLogger(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errorutil.Wrap(err, "applying option")
		}
	}

	if c.signer == nil {
		if c.credentials == nil {
			c.credentials = credsource.Default().WithLogger(c.logger)
		}

		if c.sdkSigner {
			c.signer = gcisigner.NewSDKSigner(c.credentials, gcisigner.WithLogger(c.logger))
		} else {
			c.signer = gcisigner.NewSigner(c.credentials, gcisigner.WithLogger(c.logger))
		}
	}

	if c.httpClientFunc == nil {
		tlsConfig := c.tlsConfig
		c.httpClientFunc = func() (*http.Client, error) {
			return vaulthttp.NewClient(tlsConfig)
		}
	}

	return c, nil
}

// Authenticate logs in with the default credential chain and HTTP settings.
func Authenticate(ctx context.Context, p Parameters) (*AuthInfo, error) {
	c, err := NewClient()
	if err != nil {
		return nil, err
	}
	return c.Authenticate(ctx, p)
}

// BuildPayload signs a GetCallerIdentity request and returns the login
// envelope for p without contacting Vault.
func (c *Client) BuildPayload(ctx context.Context, p Parameters) (*envelope.Envelope, error) {
	p, err := p.Validate()
	if err != nil {
		return nil, err
	}
	return c.buildPayload(ctx, p)
}

func (c *Client) buildPayload(ctx context.Context, p Parameters) (*envelope.Envelope, error) {
	signed, err := c.signer.Sign(ctx, gcisigner.NewRequest(p.IAMServerID))
	if err != nil {
		if errors.Is(err, ErrCredentials) {
			return nil, err
		}
		return nil, errors.WithType(errorutil.Wrap(err, "signing request"), ErrCredentials)
	}

	env, err := signed.Envelope(p.Role, p.IAMServerID)
	if err != nil {
		return nil, errors.WithType(err, ErrDeserialization)
	}
	return &env, nil
}

// Authenticate logs in as p.Role and returns the issued token.
func (c *Client) Authenticate(ctx context.Context, p Parameters) (*AuthInfo, error) {
	p, err := p.Validate()
	if err != nil {
		return nil, err
	}

	logger := c.logger.WithFields(log.Fields{
		"vault": p.VaultAddress.Redacted(),
		"mount": p.MountPath,
		"role":  p.Role,
	})

	env, err := c.buildPayload(ctx, p)
	if err != nil {
		logger.WithError(err).Debug("failed to build login payload")
		return nil, err
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, errors.WithType(errorutil.Wrap(err, "encoding login payload"), ErrDeserialization)
	}

	resp, err := c.post(ctx, p, body)
	if err != nil {
		logger.WithError(err).Debug("login request failed")
		return nil, err
	}

	info, err := decodeLogin(resp)
	if err != nil {
		logger.WithError(err).WithField("status", resp.status).Debug("login rejected")
		return nil, err
	}

	logger.WithFields(log.Fields{
		"status":   resp.status,
		"token":    redact.Token(info.ClientToken),
		"policies": info.Policies,
	}).Debug("logged in")

	return info, nil
}

type loginResponse struct {
	status int
	body   []byte
}

// post sends the login over a client built for this call alone and reads the
// whole response before the connection is dropped.
func (c *Client) post(ctx context.Context, p Parameters, body []byte) (*loginResponse, error) {
	httpClient, err := c.httpClientFunc()
	if err != nil {
		return nil, errors.WithType(errorutil.Wrap(err, "building http client"), ErrConnect)
	}
	defer httpClient.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.LoginURL().String(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.WithType(errorutil.Wrap(err, "creating login request"), ErrProtocol)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.WithType(errorutil.Wrap(err, "posting login"), ErrConnect)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithType(errorutil.Wrap(err, "reading login response"), ErrProtocol)
	}

	return &loginResponse{status: resp.StatusCode, body: respBody}, nil
}

func decodeLogin(resp *loginResponse) (*AuthInfo, error) {
	if resp.status < 200 || resp.status > 299 {
		var vaultErr struct {
			Errors []string `json:"errors"`
		}
		if err := json.Unmarshal(resp.body, &vaultErr); err != nil {
			return nil, errors.WithType(errorutil.Wrapf(err, "decoding %d response", resp.status), ErrDeserialization)
		}
		return nil, errors.WithType(&VerifierError{StatusCode: resp.status, Errors: vaultErr.Errors}, ErrVerifier)
	}

	var token TokenResponse
	if err := json.Unmarshal(resp.body, &token); err != nil {
		return nil, errors.WithType(errorutil.Wrap(err, "decoding login response"), ErrDeserialization)
	}

	if token.Auth == nil || token.Auth.ClientToken == "" {
		if token.WrapInfo != nil {
			return nil, errors.WithType(errors.New("login response was wrapped; unwrap it to get the token"), ErrEmptyToken)
		}
		return nil, errors.WithType(errors.New("login response has no client token"), ErrEmptyToken)
	}

	return token.Auth, nil
}
