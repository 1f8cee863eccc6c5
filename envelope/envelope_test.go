package envelope_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasdesr/vaultiam/envelope"
	"github.com/thomasdesr/vaultiam/header"
)

const (
	stsURL  = "https://sts.amazonaws.com/"
	gciBody = "Action=GetCallerIdentity&Version=2011-06-15"
)

func TestEncodeFields(t *testing.T) {
	env := envelope.Encode(stsURL, []byte(`{"Host":["sts.amazonaws.com"]}`), []byte(gciBody), "dev-role", "")

	assert.Equal(t, "POST", env.IAMHTTPRequestMethod)
	assert.Equal(t, "aHR0cHM6Ly9zdHMuYW1hem9uYXdzLmNvbS8=", env.IAMRequestURL)
	assert.Equal(t, "QWN0aW9uPUdldENhbGxlcklkZW50aXR5JlZlcnNpb249MjAxMS0wNi0xNQ==", env.IAMRequestBody)
	assert.Equal(t, "dev-role", env.Role)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := header.New(
		"Content-Type", "application/x-www-form-urlencoded; charset=utf-8",
		"Host", "sts.amazonaws.com",
		"X-Multi", "a",
		"X-Multi", "b",
	)
	headersJSON, err := h.MarshalJSON()
	require.NoError(t, err)

	env := envelope.Encode(stsURL, headersJSON, []byte(gciBody), "dev-role", "vault.example.com")

	dec, err := env.Decode()
	require.NoError(t, err)

	assert.Equal(t, "POST", dec.Method)
	assert.Equal(t, stsURL, dec.URL)
	assert.Equal(t, gciBody, string(dec.Body))
	assert.Equal(t, "dev-role", dec.Role)
	assert.Equal(t, h.Names(), dec.Headers.Names())
	assert.Equal(t, []string{"a", "b"}, dec.Headers.Values("X-Multi"))

	raw, err := base64.StdEncoding.DecodeString(env.IAMRequestHeaders)
	require.NoError(t, err)
	assert.JSONEq(t, string(headersJSON), string(raw))
}

func TestEnvelopeWireShape(t *testing.T) {
	env := envelope.Encode(stsURL, []byte(`{}`), []byte(gciBody), "dev-role", "vault.example.com")

	b, err := json.Marshal(env)
	require.NoError(t, err)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(b, &fields))

	assert.Len(t, fields, 5)
	for _, k := range []string{"iam_http_request_method", "iam_request_url", "iam_request_headers", "iam_request_body", "role"} {
		assert.Contains(t, fields, k)
	}
	assert.NotContains(t, string(b), "vault.example.com", "server id only travels as a signed header")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	good := envelope.Encode(stsURL, []byte(`{}`), []byte(gciBody), "r", "")

	for name, mutate := range map[string]func(*envelope.Envelope){
		"url":          func(e *envelope.Envelope) { e.IAMRequestURL = "%%%" },
		"headers b64":  func(e *envelope.Envelope) { e.IAMRequestHeaders = "%%%" },
		"headers json": func(e *envelope.Envelope) { e.IAMRequestHeaders = base64.StdEncoding.EncodeToString([]byte(`[]`)) },
		"body":         func(e *envelope.Envelope) { e.IAMRequestBody = "%%%" },
	} {
		name, mutate := name, mutate
		t.Run(name, func(t *testing.T) {
			env := good
			mutate(&env)

			_, err := env.Decode()
			assert.Error(t, err)
		})
	}
}
