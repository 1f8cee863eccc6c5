// Package awsapi holds the fixed facts about the STS GetCallerIdentity call:
// where it lives, how it is signed and what it returns.
package awsapi

import "net/url"

const (
	GlobalSTSHost = "sts.amazonaws.com"

	// GetCallerIdentityURL is the request target. Vault's default
	// configuration only accepts the global endpoint.
	GetCallerIdentityURL = "https://" + GlobalSTSHost + "/"

	GetCallerIdentityAction  = "GetCallerIdentity"
	GetCallerIdentityVersion = "2011-06-15"

	FormContentType = "application/x-www-form-urlencoded; charset=utf-8"

	// The global endpoint is always signed for us-east-1.
	SigningRegion  = Region_US_EAST_1
	SigningService = "sts"
)

// GetCallerIdentityBody returns the form-encoded request body,
// "Action=GetCallerIdentity&Version=2011-06-15".
func GetCallerIdentityBody() []byte {
	v := url.Values{}
	v.Set("Action", GetCallerIdentityAction)
	v.Set("Version", GetCallerIdentityVersion)
	return []byte(v.Encode())
}
