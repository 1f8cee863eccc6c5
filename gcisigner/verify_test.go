package gcisigner_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/thomasdesr/vaultiam/envelope"
	"github.com/thomasdesr/vaultiam/gcisigner"
	"github.com/thomasdesr/vaultiam/gcisigner/awsapi"
	"github.com/thomasdesr/vaultiam/internal/fakevault"
	"github.com/thomasdesr/vaultiam/internal/testutils"
)

var exampleIdentity = fakevault.Identity{
	AccessKeyID:     exampleAccessKey,
	SecretAccessKey: exampleSecretKey,
	Arn:             "arn:aws:sts::123456789012:assumed-role/deployer/session",
	UserId:          "AROAEXAMPLE:session",
	Account:         "123456789012",
}

func startSTS(t *testing.T) (*fakevault.STS, *gcisigner.Verifier) {
	t.Helper()

	sts := fakevault.NewSTS(exampleIdentity)
	srv := httptest.NewTLSServer(sts)
	t.Cleanup(srv.Close)

	return sts, gcisigner.NewVerifier(testutils.ServerTransport(t, srv))
}

func signExample(t *testing.T, secretKey, serverID string) *gcisigner.SignedRequest {
	t.Helper()

	s := gcisigner.NewSigner(credentials.NewStaticCredentialsProvider(exampleAccessKey, secretKey, ""), fixedClock(exampleTime))
	signed, err := s.Sign(context.Background(), gcisigner.NewRequest(serverID))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func envelopeFor(t *testing.T, signed *gcisigner.SignedRequest, serverID string) envelope.Envelope {
	t.Helper()

	env, err := signed.Envelope("deployer", serverID)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

// rewrap builds an envelope from parts that need not match what was signed.
func rewrap(t *testing.T, rawURL string, headers interface{}, body string) envelope.Envelope {
	t.Helper()

	headersJSON, err := json.Marshal(headers)
	if err != nil {
		t.Fatal(err)
	}
	return envelope.Encode(rawURL, headersJSON, []byte(body), "deployer", "")
}

func TestVerifyRoundTrip(t *testing.T) {
	sts, v := startSTS(t)

	got, err := v.Verify(context.Background(), envelopeFor(t, signExample(t, exampleSecretKey, ""), ""))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if got.CallerIdentity.Arn != exampleIdentity.Arn {
		t.Errorf("Arn = %q, want %q", got.CallerIdentity.Arn, exampleIdentity.Arn)
	}
	if got.CallerIdentity.Account != exampleIdentity.Account {
		t.Errorf("Account = %q, want %q", got.CallerIdentity.Account, exampleIdentity.Account)
	}
	if got.Role != "deployer" {
		t.Errorf("Role = %q, want deployer", got.Role)
	}
	if sts.Calls() != 1 {
		t.Errorf("sts calls = %d, want 1", sts.Calls())
	}
}

func TestVerifySDKSignedRequest(t *testing.T) {
	_, v := startSTS(t)

	s := gcisigner.NewSDKSigner(credentials.NewStaticCredentialsProvider(exampleAccessKey, exampleSecretKey, "session-token"), fixedClock(exampleTime))
	signed, err := s.Sign(context.Background(), gcisigner.NewRequest("vault.example.com"))
	if err != nil {
		t.Fatal(err)
	}

	v.RequiredServerID = "vault.example.com"
	if _, err := v.Verify(context.Background(), envelopeFor(t, signed, "vault.example.com")); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifySTSErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		env      func(t *testing.T) envelope.Envelope
		wantCode string
	}{
		{
			name: "wrong secret",
			env: func(t *testing.T) envelope.Envelope {
				return envelopeFor(t, signExample(t, "not-the-secret", ""), "")
			},
			wantCode: "SignatureDoesNotMatch",
		},
		{
			name: "unknown access key",
			env: func(t *testing.T) envelope.Envelope {
				s := gcisigner.NewSigner(credentials.NewStaticCredentialsProvider("AKIDUNKNOWN", exampleSecretKey, ""), fixedClock(exampleTime))
				signed, err := s.Sign(context.Background(), gcisigner.NewRequest(""))
				if err != nil {
					t.Fatal(err)
				}
				return envelopeFor(t, signed, "")
			},
			wantCode: "InvalidClientTokenId",
		},
		{
			name: "tampered body",
			env: func(t *testing.T) envelope.Envelope {
				signed := signExample(t, exampleSecretKey, "")
				return rewrap(t, signed.Request.URL, signed.AllHeaders(), string(signed.Request.Body)+"&Extra=1")
			},
			wantCode: "SignatureDoesNotMatch",
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, v := startSTS(t)

			_, err := v.Verify(context.Background(), tc.env(t))

			var stsErr *gcisigner.STSError
			if !errors.As(err, &stsErr) {
				t.Fatalf("Verify error = %v, want *STSError", err)
			}
			if stsErr.StatusCode != http.StatusForbidden {
				t.Errorf("StatusCode = %d, want 403", stsErr.StatusCode)
			}
			if stsErr.Code != tc.wantCode {
				t.Errorf("Code = %q, want %q", stsErr.Code, tc.wantCode)
			}
		})
	}
}

func TestVerifyExpiredSignature(t *testing.T) {
	sts, v := startSTS(t)
	sts.MaxSkew = 15 * time.Minute

	_, err := v.Verify(context.Background(), envelopeFor(t, signExample(t, exampleSecretKey, ""), ""))

	var stsErr *gcisigner.STSError
	if !errors.As(err, &stsErr) || stsErr.Code != "SignatureDoesNotMatch" {
		t.Fatalf("Verify error = %v, want SignatureDoesNotMatch", err)
	}
}

// Requests that are not a GetCallerIdentity POST to STS never leave the
// verifier.
func TestVerifyRefusesNonSTSRequests(t *testing.T) {
	signed := signExample(t, exampleSecretKey, "")

	for name, env := range map[string]envelope.Envelope{
		"other host":   rewrap(t, "https://attacker.example.com/", signed.AllHeaders(), string(signed.Request.Body)),
		"plain http":   rewrap(t, "http://"+awsapi.GlobalSTSHost+"/", signed.AllHeaders(), string(signed.Request.Body)),
		"other action": rewrap(t, signed.Request.URL, signed.AllHeaders(), "Action=GetSessionToken&Version=2011-06-15"),
		"bad url":      rewrap(t, "://", signed.AllHeaders(), string(signed.Request.Body)),
	} {
		name, env := name, env
		t.Run(name, func(t *testing.T) {
			sts, v := startSTS(t)

			if _, err := v.Verify(context.Background(), env); err == nil {
				t.Fatal("Verify succeeded")
			}
			if sts.Calls() != 0 {
				t.Errorf("sts calls = %d, want 0", sts.Calls())
			}
		})
	}
}

func TestVerifyRequiredServerID(t *testing.T) {
	withID := signExample(t, exampleSecretKey, "vault.example.com")
	withoutID := signExample(t, exampleSecretKey, "")

	unsigned := withoutID.AllHeaders()
	unsigned.Add(gcisigner.ServerIDHeader, "vault.example.com")

	for _, tc := range []struct {
		name    string
		env     envelope.Envelope
		wantErr string
	}{
		{"signed and matching", envelopeFor(t, withID, "vault.example.com"), ""},
		{"missing", envelopeFor(t, withoutID, ""), "got \"\""},
		{"wrong value", envelopeFor(t, signExample(t, exampleSecretKey, "vault.other.com"), "vault.other.com"), "vault.other.com"},
		{"not signed", rewrap(t, withoutID.Request.URL, unsigned, string(withoutID.Request.Body)), "not covered by the signature"},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, v := startSTS(t)
			v.RequiredServerID = "vault.example.com"

			_, err := v.Verify(context.Background(), tc.env)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Verify: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Verify error = %v, want it to mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestVerifyGarbageEnvelope(t *testing.T) {
	_, v := startSTS(t)

	env := envelope.Envelope{
		IAMHTTPRequestMethod: "POST",
		IAMRequestURL:        "%%%",
		IAMRequestHeaders:    "e30=",
		IAMRequestBody:       "",
	}
	if _, err := v.Verify(context.Background(), env); err == nil {
		t.Fatal("Verify succeeded")
	}
}
