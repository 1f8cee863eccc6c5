//go:build runaws
// +build runaws

package testutils

import (
	"context"
	"flag"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

var awsIntegrationTestConfigTimeout = flag.Duration("aws-integration-test-config-timeout", 5*time.Minute, "timeout for AWS integration tests")

// AWSConfigIfHasCredentials loads the ambient AWS config and fails the test
// when it has no credentials.
func AWSConfigIfHasCredentials(tb testing.TB) aws.Config {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), *awsIntegrationTestConfigTimeout)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("us-east-1"))
	if err != nil {
		tb.Fatalf("loading default config: %v", err)
	}

	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		tb.Fatalf("didn't find any credentials to use: %v", err)
	}

	return cfg
}

// LiveVault returns VAULT_ADDR and VAULT_AWS_ROLE, skipping the test when
// either is unset.
func LiveVault(tb testing.TB) (addr, role string) {
	tb.Helper()

	addr, role = os.Getenv("VAULT_ADDR"), os.Getenv("VAULT_AWS_ROLE")
	if addr == "" || role == "" {
		tb.Skip("set VAULT_ADDR and VAULT_AWS_ROLE to log in to a real vault")
	}
	return addr, role
}
