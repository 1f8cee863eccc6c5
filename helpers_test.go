package vaultiam_test

import (
	"net/url"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/thomasdesr/vaultiam/gcisigner/sources"
	"github.com/thomasdesr/vaultiam/internal/fakevault"
)

const (
	testAccessKey = "AKIAVAULTIAMTEST"
	testSecretKey = "c2VjcmV0LWtleS10aGF0LW11c3Qtc3RheS1sb2NhbA"
	testSession   = "FwoGZXIvYXdzEBYaDFAKESESSIONTOKEN"

	deployerRoleARN = "arn:aws:iam::123456789012:role/deployer"
)

var deployerIdentity = fakevault.Identity{
	AccessKeyID:     testAccessKey,
	SecretAccessKey: testSecretKey,
	Arn:             "arn:aws:sts::123456789012:assumed-role/deployer/i-0123456789abcdef0",
	UserId:          "AROAEXAMPLEDEPLOYER:i-0123456789abcdef0",
	Account:         "123456789012",
}

func testCredentials() aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(testAccessKey, testSecretKey, testSession)
}

func mustParseURL(tb testing.TB, s string) *url.URL {
	tb.Helper()

	u, err := url.Parse(s)
	if err != nil {
		tb.Fatal(err)
	}
	return u
}

func mustRole(tb testing.TB, s string) sources.Role {
	tb.Helper()

	r, err := sources.Parse[sources.Role](s)
	if err != nil {
		tb.Fatal(err)
	}
	return r
}

// startVault runs a fake Vault with role "deployer" bound to the deployer
// identity.
func startVault(tb testing.TB) *fakevault.Harness {
	tb.Helper()

	h := fakevault.Start(tb, "aws", deployerIdentity)
	h.Vault.BindRole("deployer", mustRole(tb, deployerRoleARN))
	return h
}
