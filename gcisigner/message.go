package gcisigner

import (
	"strings"
	"time"

	"github.com/thomasdesr/vaultiam/envelope"
	"github.com/thomasdesr/vaultiam/gcisigner/sigv4"
	"github.com/thomasdesr/vaultiam/header"
	"github.com/thomasdesr/vaultiam/internal/errorutil"
)

type SignedRequest struct {
	Request *Request

	// Headers holds only what signing added: X-Amz-Date,
	// X-Amz-Security-Token when the credentials carry one, and Authorization.
	Headers header.Map

	SigningTime time.Time
}

// AllHeaders is the header set a verifier needs to replay the request: the
// request's own headers followed by the signing headers.
func (s *SignedRequest) AllHeaders() header.Map {
	return header.Merge(s.Request.Headers, s.Headers)
}

// SignedHeaderNames returns the lower-cased header names covered by the
// signature, as listed in the Authorization header.
func (s *SignedRequest) SignedHeaderNames() []string {
	return signedHeaderNames(s.Headers.Get(sigv4.AuthorizationHeader))
}

// Envelope packages the signed request for Vault's login endpoint.
func (s *SignedRequest) Envelope(role, serverID string) (envelope.Envelope, error) {
	headersJSON, err := s.AllHeaders().MarshalJSON()
	if err != nil {
		return envelope.Envelope{}, errorutil.Wrap(err, "encoding headers")
	}

	return envelope.Encode(s.Request.URL, headersJSON, s.Request.Body, role, serverID), nil
}

func signedHeaderNames(authorization string) []string {
	const key = "SignedHeaders="

	for _, part := range strings.Split(authorization, ",") {
		part = strings.TrimSpace(part)
		if i := strings.Index(part, key); i >= 0 {
			return strings.Split(part[i+len(key):], ";")
		}
	}
	return nil
}
