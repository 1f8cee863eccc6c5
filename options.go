package vaultiam

import (
	"crypto/tls"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	log "github.com/sirupsen/logrus"

	"github.com/thomasdesr/vaultiam/gcisigner"
	"github.com/thomasdesr/vaultiam/vaulthttp"
)

// Option configures a Client in NewClient.
type Option func(c *Client) error

// WithAWSConfig signs with the credentials of an already loaded AWS config.
func WithAWSConfig(cfg aws.Config) Option {
	return func(c *Client) error {
		if cfg.Credentials == nil {
			return ErrCredentials
		}
		c.credentials = cfg.Credentials
		return nil
	}
}

// WithCredentialsProvider signs with creds instead of the default chain.
func WithCredentialsProvider(creds aws.CredentialsProvider) Option {
	return func(c *Client) error {
		c.credentials = creds
		return nil
	}
}

// WithSigner replaces the request signer entirely; credential options are
// then ignored.
func WithSigner(s gcisigner.Signer) Option {
	return func(c *Client) error {
		c.signer = s
		return nil
	}
}

// WithSDKSigner signs with the aws-sdk-go-v2 v4 signer instead of the
// built-in one.
func WithSDKSigner() Option {
	return func(c *Client) error {
		c.sdkSigner = true
		return nil
	}
}

// WithHTTPClientFunc sets how the per-login HTTP client is built. The
// function is called once per Authenticate and the client is discarded
// afterwards.
func WithHTTPClientFunc(fn func() (*http.Client, error)) Option {
	return func(c *Client) error {
		c.httpClientFunc = fn
		return nil
	}
}

// WithTLSConfig sets the TLS settings of the default HTTP client.
func WithTLSConfig(cfg vaulthttp.Config) Option {
	return func(c *Client) error {
		c.tlsConfig = cfg
		return nil
	}
}

// WithTLSClientConfig is WithTLSConfig for callers that already hold a
// *tls.Config.
func WithTLSClientConfig(cfg *tls.Config) Option {
	return func(c *Client) error {
		c.tlsConfig.TLSConfig = cfg
		return nil
	}
}

// WithLogger sets where the client and its signer log, the logrus standard
// logger by default.
func WithLogger(logger log.FieldLogger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}
