// Package fakevault provides in-process stand-ins for STS and for Vault's aws
// auth method, for tests that need the whole login exchange without AWS.
package fakevault

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	log "github.com/sirupsen/logrus"

	"github.com/thomasdesr/vaultiam/gcisigner/awsapi"
	"github.com/thomasdesr/vaultiam/gcisigner/sigv4"
)

// Identity is a principal the fake STS knows the secret key of.
type Identity struct {
	AccessKeyID     string
	SecretAccessKey string

	Arn     string
	UserId  string
	Account string
}

// STS answers GetCallerIdentity for known access keys, checking the SigV4
// signature the way AWS does: it re-signs the covered headers with the stored
// secret and compares.
type STS struct {
	identities map[string]Identity
	signer     *v4.Signer

	// MaxSkew bounds how far X-Amz-Date may be from now. Zero disables the
	// check, which tests with fixed clocks rely on.
	MaxSkew time.Duration

	calls atomic.Int64
}

func NewSTS(identities ...Identity) *STS {
	s := &STS{
		identities: make(map[string]Identity, len(identities)),
		signer:     v4.NewSigner(),
	}
	for _, id := range identities {
		s.identities[id.AccessKeyID] = id
	}
	return s
}

// Calls is the number of requests served.
func (s *STS) Calls() int {
	return int(s.calls.Load())
}

func (s *STS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)

	logger := log.WithFields(log.Fields{"component": "fake-sts", "host": r.Host})

	if r.Method != http.MethodPost {
		writeSTSError(w, http.StatusMethodNotAllowed, "InvalidAction", "only POST is supported")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeSTSError(w, http.StatusBadRequest, "MalformedInput", err.Error())
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil || form.Get("Action") != awsapi.GetCallerIdentityAction {
		writeSTSError(w, http.StatusBadRequest, "InvalidAction", "could not find operation")
		return
	}

	auth, err := parseAuthorization(r.Header.Get(sigv4.AuthorizationHeader))
	if err != nil {
		writeSTSError(w, http.StatusForbidden, "IncompleteSignature", err.Error())
		return
	}

	id, ok := s.identities[auth.accessKeyID]
	if !ok {
		writeSTSError(w, http.StatusForbidden, "InvalidClientTokenId", "The security token included in the request is invalid.")
		return
	}

	signingTime, err := time.Parse(sigv4.TimeFormat, r.Header.Get(sigv4.AmzDateHeader))
	if err != nil {
		writeSTSError(w, http.StatusForbidden, "IncompleteSignature", "missing or malformed X-Amz-Date")
		return
	}
	if s.MaxSkew > 0 {
		if skew := time.Since(signingTime); skew > s.MaxSkew || skew < -s.MaxSkew {
			writeSTSError(w, http.StatusForbidden, "SignatureDoesNotMatch", "Signature expired")
			return
		}
	}

	expected, err := s.resign(r, body, auth.signedHeaders, id, signingTime)
	if err != nil {
		writeSTSError(w, http.StatusInternalServerError, "InternalFailure", err.Error())
		return
	}
	if expected != r.Header.Get(sigv4.AuthorizationHeader) {
		logger.WithField("expected", expected).Debug("signature mismatch")
		writeSTSError(w, http.StatusForbidden, "SignatureDoesNotMatch", "The request signature we calculated does not match the signature you provided.")
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	_ = xml.NewEncoder(w).Encode(&awsapi.GetCallerIdentityResponse{
		GetCallerIdentityResult: awsapi.GetCallerIdentityResult{
			Arn:     id.Arn,
			UserId:  id.UserId,
			Account: id.Account,
		},
		ResponseMetadata: awsapi.ResponseMetadata{RequestId: "c6104cbe-af31-11e0-8154-cbc7ccf896c7"},
	})
}

// resign rebuilds the request from only the headers the client claims to
// have signed and signs it again with the stored secret.
func (s *STS) resign(r *http.Request, body []byte, signed []string, id Identity, signingTime time.Time) (string, error) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, "https://"+r.Host+r.URL.RequestURI(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Host = r.Host

	for _, name := range signed {
		switch name {
		case "host", "content-length", "x-amz-date", "x-amz-security-token":
			// The signer sets these itself.
		default:
			for _, v := range r.Header.Values(name) {
				req.Header.Add(name, v)
			}
		}
	}

	creds := aws.Credentials{
		AccessKeyID:     id.AccessKeyID,
		SecretAccessKey: id.SecretAccessKey,
		SessionToken:    r.Header.Get(sigv4.SecurityTokenHeader),
	}
	if err := s.signer.SignHTTP(r.Context(), creds, req, sigv4.HashPayload(body), awsapi.SigningService, awsapi.SigningRegion.String(), signingTime); err != nil {
		return "", err
	}

	return req.Header.Get(sigv4.AuthorizationHeader), nil
}

type authorization struct {
	accessKeyID   string
	signedHeaders []string
}

func parseAuthorization(v string) (authorization, error) {
	rest, ok := strings.CutPrefix(v, sigv4.Algorithm+" ")
	if !ok {
		return authorization{}, fmt.Errorf("unsupported authorization %q", v)
	}

	var a authorization
	for _, part := range strings.Split(rest, ",") {
		k, val, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch k {
		case "Credential":
			a.accessKeyID, _, _ = strings.Cut(val, "/")
		case "SignedHeaders":
			a.signedHeaders = strings.Split(val, ";")
		}
	}

	if a.accessKeyID == "" || len(a.signedHeaders) == 0 {
		return authorization{}, fmt.Errorf("authorization header is missing Credential or SignedHeaders")
	}
	return a, nil
}

func writeSTSError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(status)
	_ = xml.NewEncoder(w).Encode(&awsapi.ErrorResponse{
		Error:     awsapi.Error{Type: "Sender", Code: code, Message: message},
		RequestId: "0b3e6d9a-8d6f-4b0e-9b1c-8a0f6c0f1c11",
	})
}
