// Package envelope encodes a signed GetCallerIdentity request into the JSON
// body Vault's aws auth method accepts on its login endpoint, and decodes it
// again on the receiving side.
package envelope

import (
	"encoding/base64"
	"net/http"

	"github.com/thomasdesr/vaultiam/header"
	"github.com/thomasdesr/vaultiam/internal/errorutil"
)

type Envelope struct {
	IAMHTTPRequestMethod string `json:"iam_http_request_method"`
	IAMRequestURL        string `json:"iam_request_url"`
	IAMRequestHeaders    string `json:"iam_request_headers"`
	IAMRequestBody       string `json:"iam_request_body"`
	Role                 string `json:"role"`

	// ServerID is only ever sent as a signed request header; Vault does not
	// accept it as a login field.
	ServerID string `json:"-"`
}

// Encode base64s (standard, padded) the url, header JSON and body. role and
// serverID are stored as given.
func Encode(url string, headersJSON []byte, body []byte, role, serverID string) Envelope {
	return Envelope{
		IAMHTTPRequestMethod: http.MethodPost,
		IAMRequestURL:        base64.StdEncoding.EncodeToString([]byte(url)),
		IAMRequestHeaders:    base64.StdEncoding.EncodeToString(headersJSON),
		IAMRequestBody:       base64.StdEncoding.EncodeToString(body),
		Role:                 role,
		ServerID:             serverID,
	}
}

// Decoded is an Envelope with its base64 fields undone.
type Decoded struct {
	Method  string
	URL     string
	Headers header.Map
	Body    []byte
	Role    string
}

func (e Envelope) Decode() (*Decoded, error) {
	rawURL, err := base64.StdEncoding.DecodeString(e.IAMRequestURL)
	if err != nil {
		return nil, errorutil.Wrap(err, "decoding iam_request_url")
	}

	rawHeaders, err := base64.StdEncoding.DecodeString(e.IAMRequestHeaders)
	if err != nil {
		return nil, errorutil.Wrap(err, "decoding iam_request_headers")
	}

	var headers header.Map
	if err := headers.UnmarshalJSON(rawHeaders); err != nil {
		return nil, errorutil.Wrap(err, "parsing iam_request_headers")
	}

	body, err := base64.StdEncoding.DecodeString(e.IAMRequestBody)
	if err != nil {
		return nil, errorutil.Wrap(err, "decoding iam_request_body")
	}

	return &Decoded{
		Method:  e.IAMHTTPRequestMethod,
		URL:     string(rawURL),
		Headers: headers,
		Body:    body,
		Role:    e.Role,
	}, nil
}
