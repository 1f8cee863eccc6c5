// Package sigv4 is a pure implementation of the AWS Signature Version 4
// header-signing algorithm: {request, credentials, scope, time} in, the
// headers to add out. It does no I/O and reads no clock, so identical inputs
// always produce identical signatures.
//
// Canonicalization follows the aws-sdk-go-v2 signer so that both produce
// byte-identical Authorization values for the same request:
//
//   - header names are lower-cased and sorted; Authorization, User-Agent,
//     X-Amzn-Trace-Id and Expect are never signed
//   - values are trimmed, inner runs of spaces collapsed, and repeated names
//     joined with ","
//   - the host header falls back to the URL host when absent
//   - the path is escaped once more on top of URL.EscapedPath, as AWS expects
//     for every service but S3
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go/encoding/httpbinding"

	"github.com/thomasdesr/vaultiam/header"
)

const (
	// Algorithm is the SigV4 signing algorithm identifier.
	Algorithm = "AWS4-HMAC-SHA256"

	// TimeFormat is the X-Amz-Date layout.
	TimeFormat = "20060102T150405Z"

	// ShortTimeFormat is the date layout used in the credential scope.
	ShortTimeFormat = "20060102"

	AuthorizationHeader = "Authorization"
	AmzDateHeader       = "X-Amz-Date"
	SecurityTokenHeader = "X-Amz-Security-Token"

	scopeTerminator = "aws4_request"
)

var ignoredHeaders = map[string]struct{}{
	"authorization":   {},
	"user-agent":      {},
	"x-amzn-trace-id": {},
	"expect":          {},
}

// Request is the input to Sign. Body must be the exact bytes that will be
// transmitted.
type Request struct {
	Method string
	URL    *url.URL
	Header header.Map
	Body   []byte
}

// Scope binds a signature to a region and service.
type Scope struct {
	Region  string
	Service string
}

// Result carries the headers to add to the request plus the intermediate
// strings, which are mostly useful when debugging a rejected signature.
type Result struct {
	// Headers holds X-Amz-Date, X-Amz-Security-Token (only with a session
	// token) and Authorization, in that order.
	Headers header.Map

	CanonicalRequest string
	StringToSign     string
	CredentialScope  string
	SignedHeaders    string
	Signature        string
}

// Sign computes the SigV4 signature of req.
func Sign(req Request, creds aws.Credentials, scope Scope, signingTime time.Time) Result {
	signingTime = signingTime.UTC()
	amzDate := signingTime.Format(TimeFormat)

	var added header.Map
	added.Add(AmzDateHeader, amzDate)
	if creds.SessionToken != "" {
		added.Add(SecurityTokenHeader, creds.SessionToken)
	}

	signedHeaders, canonicalHeaders := buildCanonicalHeaders(req, added)

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQuery(req.URL),
		canonicalHeaders,
		signedHeaders,
		HashPayload(req.Body),
	}, "\n")

	credentialScope := strings.Join([]string{
		signingTime.Format(ShortTimeFormat),
		scope.Region,
		scope.Service,
		scopeTerminator,
	}, "/")

	stringToSign := strings.Join([]string{
		Algorithm,
		amzDate,
		credentialScope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")

	key := DeriveKey(creds.SecretAccessKey, signingTime, scope.Region, scope.Service)
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	added.Add(AuthorizationHeader, AuthorizationValue(creds.AccessKeyID+"/"+credentialScope, signedHeaders, signature))

	return Result{
		Headers:          added,
		CanonicalRequest: canonicalRequest,
		StringToSign:     stringToSign,
		CredentialScope:  credentialScope,
		SignedHeaders:    signedHeaders,
		Signature:        signature,
	}
}

// DeriveKey derives the per-day signing key by HMAC-chaining the secret
// through the date, region and service.
func DeriveKey(secret string, signingTime time.Time, region, service string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), []byte(signingTime.UTC().Format(ShortTimeFormat)))
	k = hmacSHA256(k, []byte(region))
	k = hmacSHA256(k, []byte(service))
	return hmacSHA256(k, []byte(scopeTerminator))
}

// AuthorizationValue formats the Authorization header value.
func AuthorizationValue(credential, signedHeaders, signature string) string {
	return Algorithm + " Credential=" + credential + ", SignedHeaders=" + signedHeaders + ", Signature=" + signature
}

// HashPayload is the lower-case hex SHA-256 of body.
func HashPayload(body []byte) string {
	return hashHex(body)
}

func buildCanonicalHeaders(req Request, added header.Map) (signedHeaders, canonical string) {
	values := make(map[string][]string)
	var names []string

	add := func(name string, vals ...string) {
		lower := strings.ToLower(name)
		if _, ignored := ignoredHeaders[lower]; ignored {
			return
		}
		if _, seen := values[lower]; !seen {
			names = append(names, lower)
		}
		values[lower] = append(values[lower], vals...)
	}

	hasHost := false
	for _, name := range req.Header.Names() {
		if strings.EqualFold(name, "host") {
			hasHost = true
		}
		add(name, req.Header.Values(name)...)
	}
	if !hasHost && req.URL != nil {
		add("host", req.URL.Host)
	}
	for _, name := range added.Names() {
		add(name, added.Values(name)...)
	}

	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		for i, v := range values[name] {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(cleanValue(v))
		}
		b.WriteByte('\n')
	}

	return strings.Join(names, ";"), b.String()
}

// cleanValue trims the value and collapses inner runs of spaces.
func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	if !strings.Contains(v, "  ") {
		return v
	}

	var b strings.Builder
	b.Grow(len(v))
	prevSpace := false
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == ' ' {
			if prevSpace {
				continue
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

func canonicalURI(u *url.URL) string {
	if u == nil {
		return "/"
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return httpbinding.EscapePath(path, false)
}

func canonicalQuery(u *url.URL) string {
	if u == nil || u.RawQuery == "" {
		return ""
	}

	query := u.Query()
	for k := range query {
		sort.Strings(query[k])
	}
	return strings.ReplaceAll(query.Encode(), "+", "%20")
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
