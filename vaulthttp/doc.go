// vaulthttp builds the HTTP client used for a single Vault login. Each
// client is meant for exactly one exchange: keep-alives are off, so the
// connection closes once the response has been read, and nothing is shared
// between logins. TLS settings follow the Vault CLI's (CA file or directory,
// or an explicit skip-verify), and HTTP/2 is negotiated when the server
// offers it.
package vaulthttp
