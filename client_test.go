package vaultiam_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/thomasdesr/vaultiam"
	"github.com/thomasdesr/vaultiam/envelope"
	"github.com/thomasdesr/vaultiam/internal/testutils"
	"github.com/thomasdesr/vaultiam/vaulthttp"
)

func params(tb testing.TB, addr string) vaultiam.Parameters {
	return vaultiam.Parameters{
		VaultAddress: mustParseURL(tb, addr),
		Role:         "deployer",
	}
}

func newClient(tb testing.TB, opts ...vaultiam.Option) *vaultiam.Client {
	tb.Helper()

	c, err := vaultiam.NewClient(append([]vaultiam.Option{vaultiam.WithCredentialsProvider(testCredentials())}, opts...)...)
	require.NoError(tb, err)
	return c
}

// mockVault answers every request with status and body, and remembers the
// last request it saw.
type mockVault struct {
	status int
	body   string

	hits    atomic.Int64
	method  string
	path    string
	header  http.Header
	payload []byte
}

func (m *mockVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.hits.Add(1)
	m.method, m.path, m.header = r.Method, r.URL.Path, r.Header.Clone()
	m.payload, _ = io.ReadAll(r.Body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(m.status)
	_, _ = io.WriteString(w, m.body)
}

func startMock(tb testing.TB, status int, body string) (*mockVault, *httptest.Server) {
	m := &mockVault{status: status, body: body}
	srv := httptest.NewServer(m)
	tb.Cleanup(srv.Close)
	return m, srv
}

func TestAuthenticateReturnsToken(t *testing.T) {
	m, srv := startMock(t, http.StatusOK, `{
		"request_id": "req-1",
		"auth": {
			"client_token": "tok-123",
			"accessor": "acc-1",
			"policies": ["default", "deployer"],
			"metadata": {"client_arn": "arn:aws:sts::123456789012:assumed-role/deployer/i-1"},
			"lease_duration": 3600,
			"renewable": true
		}
	}`)

	info, err := newClient(t).Authenticate(context.Background(), params(t, srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "tok-123", info.ClientToken)
	assert.Equal(t, []string{"default", "deployer"}, info.Policies)
	assert.Equal(t, time.Hour, info.TTL())
	assert.True(t, info.Renewable)

	principal, err := info.Principal()
	require.NoError(t, err)
	assert.Equal(t, deployerRoleARN, principal.String())

	assert.Equal(t, http.MethodPost, m.method)
	assert.Equal(t, "/v1/auth/aws/login", m.path)
	assert.Equal(t, "application/json", m.header.Get("Content-Type"))

	var env envelope.Envelope
	require.NoError(t, json.Unmarshal(m.payload, &env))
	assert.Equal(t, "POST", env.IAMHTTPRequestMethod)
	assert.Equal(t, "deployer", env.Role)

	dec, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, "https://sts.amazonaws.com/", dec.URL)
	assert.Equal(t, "Action=GetCallerIdentity&Version=2011-06-15", string(dec.Body))
	assert.Equal(t, testSession, dec.Headers.Get("X-Amz-Security-Token"))
	assert.Contains(t, dec.Headers.Get("Authorization"), "Credential="+testAccessKey+"/")
}

func TestAuthenticateRejections(t *testing.T) {
	for _, tc := range []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{"null auth", http.StatusOK, `{"auth":null}`, vaultiam.ErrEmptyToken, ""},
		{"empty token", http.StatusOK, `{"auth":{"client_token":""}}`, vaultiam.ErrEmptyToken, ""},
		{"wrapped", http.StatusOK, `{"auth":null,"wrap_info":{"token":"wrapped","ttl":60}}`, vaultiam.ErrEmptyToken, "wrapped"},
		{"permission denied", http.StatusForbidden, `{"errors":["permission denied"]}`, vaultiam.ErrVerifier, "permission denied"},
		{"several errors", http.StatusBadRequest, `{"errors":["a","b"]}`, vaultiam.ErrVerifier, "Vault error: a, b"},
		{"html error page", http.StatusBadGateway, `<html>bad gateway</html>`, vaultiam.ErrDeserialization, ""},
		{"garbage success", http.StatusOK, `not json`, vaultiam.ErrDeserialization, ""},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, srv := startMock(t, tc.status, tc.body)

			_, err := newClient(t).Authenticate(context.Background(), params(t, srv.URL))
			require.ErrorIs(t, err, tc.wantErr)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestAuthenticateVerifierError(t *testing.T) {
	_, srv := startMock(t, http.StatusForbidden, `{"errors":["permission denied"]}`)

	_, err := newClient(t).Authenticate(context.Background(), params(t, srv.URL))
	require.ErrorIs(t, err, vaultiam.ErrVerifier)

	var verr *vaultiam.VerifierError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, http.StatusForbidden, verr.StatusCode)
	assert.Equal(t, []string{"permission denied"}, verr.Errors)
}

func TestCredentialFailuresNeverReachVault(t *testing.T) {
	for name, creds := range map[string]aws.CredentialsProvider{
		"lookup fails": aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{}, errors.New("no credentials here")
		}),
		"expired": aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     testAccessKey,
				SecretAccessKey: testSecretKey,
				CanExpire:       true,
				Expires:         time.Now().Add(-time.Minute),
			}, nil
		}),
		"missing secret": aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: testAccessKey}, nil
		}),
	} {
		name, creds := name, creds
		t.Run(name, func(t *testing.T) {
			m, srv := startMock(t, http.StatusOK, `{"auth":{"client_token":"tok-123"}}`)

			var clients atomic.Int64
			c, err := vaultiam.NewClient(
				vaultiam.WithCredentialsProvider(creds),
				vaultiam.WithHTTPClientFunc(func() (*http.Client, error) {
					clients.Add(1)
					return srv.Client(), nil
				}),
			)
			require.NoError(t, err)

			_, err = c.Authenticate(context.Background(), params(t, srv.URL))
			require.ErrorIs(t, err, vaultiam.ErrCredentials)

			assert.Zero(t, clients.Load())
			assert.Zero(t, m.hits.Load())
		})
	}
}

func TestInvalidParametersNeverLookUpCredentials(t *testing.T) {
	var lookups atomic.Int64
	c, err := vaultiam.NewClient(vaultiam.WithCredentialsProvider(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		lookups.Add(1)
		return aws.Credentials{AccessKeyID: testAccessKey, SecretAccessKey: testSecretKey}, nil
	})))
	require.NoError(t, err)

	_, err = c.Authenticate(context.Background(), vaultiam.Parameters{Role: "deployer"})
	require.ErrorIs(t, err, vaultiam.ErrInvalidParameters)

	_, err = c.Authenticate(context.Background(), vaultiam.Parameters{VaultAddress: mustParseURL(t, "https://vault.example.com")})
	require.ErrorIs(t, err, vaultiam.ErrInvalidParameters)

	assert.Zero(t, lookups.Load())
}

func TestAuthenticateConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := newClient(t).Authenticate(context.Background(), params(t, addr))
	require.ErrorIs(t, err, vaultiam.ErrConnect)
}

func TestAuthenticateCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newClient(t).Authenticate(ctx, params(t, srv.URL))
	require.ErrorIs(t, err, vaultiam.ErrConnect)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuildPayload(t *testing.T) {
	c := newClient(t)

	p := params(t, "https://vault.example.com:8200")
	p.IAMServerID = "vault.example.com"

	env, err := c.BuildPayload(context.Background(), p)
	require.NoError(t, err)

	dec, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, "vault.example.com", dec.Headers.Get("X-Vault-AWS-IAM-Server-ID"))
	assert.Contains(t, dec.Headers.Get("Authorization"), "x-vault-aws-iam-server-id")

	wire, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(wire), "server_id")
}

func TestLoginEndToEnd(t *testing.T) {
	for name, opts := range map[string][]vaultiam.Option{
		"builtin signer": nil,
		"sdk signer":     {vaultiam.WithSDKSigner()},
	} {
		name, opts := name, opts
		t.Run(name, func(t *testing.T) {
			h := startVault(t)

			info, err := newClient(t, opts...).Authenticate(context.Background(), params(t, h.VaultServer.URL))
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(info.ClientToken, "hvs."), info.ClientToken)
			assert.Equal(t, []string{"default", "deployer"}, info.Policies)
			assert.Equal(t, deployerIdentity.Arn, info.Metadata["client_arn"])

			principal, err := info.Principal()
			require.NoError(t, err)
			assert.Equal(t, deployerRoleARN, principal.String())

			assert.Equal(t, 1, h.Vault.Logins())
			assert.Equal(t, 1, h.STS.Calls())
		})
	}
}

func TestLoginServerID(t *testing.T) {
	h := startVault(t)
	h.Vault.RequireServerID("vault.example.com")

	c := newClient(t)
	p := params(t, h.VaultServer.URL)

	_, err := c.Authenticate(context.Background(), p)
	require.ErrorIs(t, err, vaultiam.ErrVerifier)
	assert.Contains(t, err.Error(), "X-Vault-AWS-IAM-Server-ID")

	p.IAMServerID = "vault.other.com"
	_, err = c.Authenticate(context.Background(), p)
	require.ErrorIs(t, err, vaultiam.ErrVerifier)

	p.IAMServerID = "vault.example.com"
	info, err := c.Authenticate(context.Background(), p)
	require.NoError(t, err)
	assert.NotEmpty(t, info.ClientToken)

	// Only the last attempt got as far as STS.
	assert.Equal(t, 1, h.STS.Calls())
}

func TestLoginUnboundPrincipal(t *testing.T) {
	h := startVault(t)
	h.Vault.BindRole("admin", mustRole(t, "arn:aws:iam::123456789012:role/admin"))

	p := params(t, h.VaultServer.URL)
	p.Role = "admin"

	_, err := newClient(t).Authenticate(context.Background(), p)
	require.ErrorIs(t, err, vaultiam.ErrVerifier)

	var verr *vaultiam.VerifierError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, http.StatusForbidden, verr.StatusCode)
	assert.Equal(t, []string{"permission denied"}, verr.Errors)
}

func TestLoginUnknownRole(t *testing.T) {
	h := startVault(t)

	p := params(t, h.VaultServer.URL)
	p.Role = "nope"

	_, err := newClient(t).Authenticate(context.Background(), p)
	require.ErrorIs(t, err, vaultiam.ErrVerifier)
	assert.Contains(t, err.Error(), `entry for role "nope" not found`)
	assert.Zero(t, h.STS.Calls())
}

func TestLoginWrongSecret(t *testing.T) {
	h := startVault(t)

	c := newClient(t, vaultiam.WithCredentialsProvider(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: testAccessKey, SecretAccessKey: "not-the-secret"}, nil
	})))

	_, err := c.Authenticate(context.Background(), params(t, h.VaultServer.URL))
	require.ErrorIs(t, err, vaultiam.ErrVerifier)
	assert.Contains(t, err.Error(), "SignatureDoesNotMatch")
}

func TestLoginUsesOneConnectionPerCall(t *testing.T) {
	h := startVault(t)
	dialer := testutils.NewDialer(t, h.VaultServer)

	c := newClient(t, vaultiam.WithHTTPClientFunc(func() (*http.Client, error) {
		return vaulthttp.NewClient(vaulthttp.Config{DialContext: dialer.DialContext})
	}))

	var stats testutils.ConnStats
	ctx := testutils.WithHTTPTrace(t, context.Background(), &stats)

	const logins = 3
	for i := 0; i < logins; i++ {
		_, err := c.Authenticate(ctx, params(t, h.VaultServer.URL))
		require.NoError(t, err)
	}

	assert.Equal(t, logins, dialer.Dials())
	assert.EqualValues(t, logins, stats.Got.Load())
	assert.Zero(t, stats.Reused.Load())

	conns := dialer.Conns()
	require.Len(t, conns, logins)
	for _, conn := range conns {
		assert.Eventually(t, conn.Closed, time.Second, 10*time.Millisecond)
		assert.False(t, bytes.Contains(conn.Sent(), []byte(testSecretKey)), "secret key went over the wire")
	}
}

func TestLoginOverTLS(t *testing.T) {
	h := startVault(t)

	ca := testutils.NewCA(t)
	srv := ca.NewTLSServer(t, h.Vault)

	c := newClient(t, vaultiam.WithTLSConfig(vaulthttp.Config{CACertPEM: ca.CertPEM}))

	info, err := c.Authenticate(context.Background(), params(t, srv.URL))
	require.NoError(t, err)
	assert.NotEmpty(t, info.ClientToken)

	_, err = newClient(t).Authenticate(context.Background(), params(t, srv.URL))
	require.ErrorIs(t, err, vaultiam.ErrConnect)
}

func TestConcurrentLogins(t *testing.T) {
	h := startVault(t)
	c := newClient(t)

	const logins = 8
	tokens := make([]string, logins)

	g, ctx := errgroup.WithContext(context.Background())
	for i := range tokens {
		i := i
		g.Go(func() error {
			info, err := c.Authenticate(ctx, params(t, h.VaultServer.URL))
			if err != nil {
				return err
			}
			tokens[i] = info.ClientToken
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]bool, logins)
	for _, tok := range tokens {
		assert.False(t, seen[tok], "token %q issued twice", tok)
		seen[tok] = true
	}
	assert.Equal(t, logins, h.Vault.Logins())
}
