package gcisigner

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/thomasdesr/vaultiam/gcisigner/awsapi"
	"github.com/thomasdesr/vaultiam/header"
	"github.com/thomasdesr/vaultiam/internal/errorutil"
)

// ServerIDHeader names the header Vault compares against its configured
// iam_server_id_header_value. It is signed like any other header, which is
// what stops a captured login request being replayed against another Vault.
const ServerIDHeader = "X-Vault-AWS-IAM-Server-ID"

// Request is the unsigned GetCallerIdentity call.
type Request struct {
	Method  string
	URL     string
	Headers header.Map
	Body    []byte
}

// NewRequest builds the GetCallerIdentity request. serverID is optional.
//
// Content-Length is derived from the body, so the header and the bytes that
// get signed can never disagree.
func NewRequest(serverID string) *Request {
	body := awsapi.GetCallerIdentityBody()

	h := header.New(
		"Content-Type", awsapi.FormContentType,
		"Host", awsapi.GlobalSTSHost,
		"Content-Length", strconv.Itoa(len(body)),
	)
	if serverID != "" {
		h.Add(ServerIDHeader, serverID)
	}

	return &Request{
		Method:  http.MethodPost,
		URL:     awsapi.GetCallerIdentityURL,
		Headers: h,
		Body:    body,
	}
}

// HTTPRequest turns the request into something an http.Client can send.
// Host and Content-Length are carried by the request fields rather than the
// header map, which is where net/http and the SDK signer both expect them.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	return newHTTPRequest(ctx, r.Method, r.URL, r.Headers, r.Body)
}

func newHTTPRequest(ctx context.Context, method, rawURL string, h header.Map, body []byte) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errorutil.Wrapf(err, "parsing request url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, errorutil.Wrap(err, "creating request")
	}

	req.Header = h.HTTPHeader()
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
	}
	req.Header.Del("Host")
	// net/http derives it from the body.
	req.Header.Del("Content-Length")

	return req, nil
}
