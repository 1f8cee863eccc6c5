package gcisigner

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/thomasdesr/vaultiam/envelope"
	"github.com/thomasdesr/vaultiam/gcisigner/awsapi"
	"github.com/thomasdesr/vaultiam/internal/errorutil"
)

// Verifier does what Vault does with a login envelope: it replays the signed
// request to STS and reports who signed it.
type Verifier struct {
	c *http.Client

	// RequiredServerID, when set, must be the value of a signed
	// X-Vault-AWS-IAM-Server-ID header.
	RequiredServerID string
}

type VerifiedRequest struct {
	CallerIdentity awsapi.GetCallerIdentityResult
	Role           string
}

// STSError is a non-200 answer from STS.
type STSError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *STSError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("sts returned %d", e.StatusCode)
	}
	return fmt.Sprintf("sts returned %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// NewVerifier builds a Verifier sending through tr, or
// http.DefaultTransport when tr is nil.
func NewVerifier(tr http.RoundTripper) *Verifier {
	// We should never get a redirect, so we can safely ignore them
	nonRedirectingClient := &http.Client{
		Transport: tr,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}}

	return &Verifier{c: nonRedirectingClient}
}

func (v *Verifier) Verify(ctx context.Context, env envelope.Envelope) (*VerifiedRequest, error) {
	dec, err := env.Decode()
	if err != nil {
		return nil, errorutil.Wrap(err, "failed to decode envelope")
	}

	if err := v.check(dec); err != nil {
		return nil, err
	}

	req, err := newHTTPRequest(ctx, dec.Method, dec.URL, dec.Headers, dec.Body)
	if err != nil {
		return nil, errorutil.Wrap(err, "failed to rebuild request")
	}

	// Send the request to STS to verify the signature
	resp, err := v.c.Do(req)
	if err != nil {
		return nil, errorutil.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorutil.Wrap(err, "failed to read response")
	}

	// This should fail if the signature doesn't match
	if resp.StatusCode != http.StatusOK {
		stsErr := &STSError{StatusCode: resp.StatusCode}

		var errResp awsapi.ErrorResponse
		if xml.Unmarshal(body, &errResp) == nil {
			stsErr.Code = errResp.Error.Code
			stsErr.Message = errResp.Error.Message
		}
		return nil, stsErr
	}

	// Extract the info about the caller from the response
	var gcir awsapi.GetCallerIdentityResponse
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&gcir); err != nil {
		return nil, errorutil.Wrap(err, "failed to unmarshal response")
	}

	return &VerifiedRequest{
		CallerIdentity: gcir.GetCallerIdentityResult,
		Role:           dec.Role,
	}, nil
}

// check refuses anything that isn't a GetCallerIdentity POST to STS, so the
// verifier can't be used to send signed requests somewhere else.
func (v *Verifier) check(dec *envelope.Decoded) error {
	if dec.Method != http.MethodPost {
		return fmt.Errorf("unsupported method %q", dec.Method)
	}

	u, err := url.Parse(dec.URL)
	if err != nil {
		return errorutil.Wrap(err, "failed to parse request url")
	}
	if u.Scheme != "https" || !awsapi.IsSTSHost(u.Hostname()) {
		return fmt.Errorf("request url %q is not an sts endpoint", dec.URL)
	}

	form, err := url.ParseQuery(string(dec.Body))
	if err != nil {
		return errorutil.Wrap(err, "failed to parse request body")
	}
	if form.Get("Action") != awsapi.GetCallerIdentityAction {
		return fmt.Errorf("unexpected action %q", form.Get("Action"))
	}

	if v.RequiredServerID == "" {
		return nil
	}

	var got string
	for _, name := range dec.Headers.Names() {
		if strings.EqualFold(name, ServerIDHeader) {
			got = dec.Headers.Get(name)
		}
	}
	if got != v.RequiredServerID {
		return fmt.Errorf("expected %s %q, got %q", ServerIDHeader, v.RequiredServerID, got)
	}

	var authorization string
	for _, name := range dec.Headers.Names() {
		if strings.EqualFold(name, "Authorization") {
			authorization = dec.Headers.Get(name)
		}
	}
	if !slices.Contains(signedHeaderNames(authorization), strings.ToLower(ServerIDHeader)) {
		return fmt.Errorf("%s is not covered by the signature", ServerIDHeader)
	}

	return nil
}
