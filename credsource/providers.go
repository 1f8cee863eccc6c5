package credsource

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/ec2rolecreds"
	"github.com/aws/aws-sdk-go-v2/credentials/endpointcreds"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/thomasdesr/vaultiam/internal/errorutil"
)

const (
	// ECS task role endpoint for AWS_CONTAINER_CREDENTIALS_RELATIVE_URI.
	containerCredentialsHost = "http://169.254.170.2"

	defaultRegion = "us-east-1"
)

// Environment reads AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and
// AWS_SESSION_TOKEN (or the older AWS_ACCESS_KEY and AWS_SECRET_KEY) when
// asked.
func Environment() aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		id := firstEnv("AWS_ACCESS_KEY_ID", "AWS_ACCESS_KEY")
		secret := firstEnv("AWS_SECRET_ACCESS_KEY", "AWS_SECRET_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY not set")
		}

		creds, err := credentials.NewStaticCredentialsProvider(id, secret, os.Getenv("AWS_SESSION_TOKEN")).Retrieve(ctx)
		creds.Source = "Environment"
		return creds, err
	})
}

// WebIdentity exchanges the token in AWS_WEB_IDENTITY_TOKEN_FILE for
// AWS_ROLE_ARN's credentials, as on EKS with IRSA.
func WebIdentity() aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		tokenFile := os.Getenv("AWS_WEB_IDENTITY_TOKEN_FILE")
		roleARN := os.Getenv("AWS_ROLE_ARN")
		if tokenFile == "" || roleARN == "" {
			return aws.Credentials{}, fmt.Errorf("AWS_WEB_IDENTITY_TOKEN_FILE or AWS_ROLE_ARN not set")
		}

		region := firstEnv("AWS_REGION", "AWS_DEFAULT_REGION")
		if region == "" {
			region = defaultRegion
		}

		client := sts.New(sts.Options{Region: region})
		provider := stscreds.NewWebIdentityRoleProvider(client, roleARN, stscreds.IdentityTokenFile(tokenFile), func(o *stscreds.WebIdentityRoleOptions) {
			if name := os.Getenv("AWS_ROLE_SESSION_NAME"); name != "" {
				o.RoleSessionName = name
			}
		})

		creds, err := provider.Retrieve(ctx)
		if err != nil {
			return aws.Credentials{}, errorutil.Wrap(err, "assuming role with web identity")
		}
		return creds, nil
	})
}

// SharedConfig loads credentials for profile (or AWS_PROFILE / "default"
// when empty) from ~/.aws/config and ~/.aws/credentials, including
// role_arn, sso and credential_process profiles.
func SharedConfig(profile string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		profile := profile
		if profile == "" {
			profile = firstEnv("AWS_PROFILE")
		}
		if profile == "" {
			profile = "default"
		}

		// Fail fast without a profile rather than falling through to the
		// SDK's own chain.
		if _, err := config.LoadSharedConfigProfile(ctx, profile, sharedConfigFiles); err != nil {
			return aws.Credentials{}, errorutil.Wrapf(err, "loading profile %q", profile)
		}

		opts := []func(*config.LoadOptions) error{
			config.WithRegion(defaultRegion),
			config.WithSharedConfigProfile(profile),
		}

		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return aws.Credentials{}, errorutil.Wrap(err, "loading shared config")
		}
		if cfg.Credentials == nil {
			return aws.Credentials{}, fmt.Errorf("shared config has no credentials")
		}
		return cfg.Credentials.Retrieve(ctx)
	})
}

// sharedConfigFiles points LoadSharedConfigProfile at AWS_CONFIG_FILE and
// AWS_SHARED_CREDENTIALS_FILE, which LoadDefaultConfig honours on its own.
func sharedConfigFiles(o *config.LoadSharedConfigOptions) {
	if f := os.Getenv("AWS_CONFIG_FILE"); f != "" {
		o.ConfigFiles = []string{f}
	}
	if f := os.Getenv("AWS_SHARED_CREDENTIALS_FILE"); f != "" {
		o.CredentialsFiles = []string{f}
	}
}

// Container reads ECS task role credentials from
// AWS_CONTAINER_CREDENTIALS_RELATIVE_URI or AWS_CONTAINER_CREDENTIALS_FULL_URI.
func Container() aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		endpoint := os.Getenv("AWS_CONTAINER_CREDENTIALS_FULL_URI")
		if rel := os.Getenv("AWS_CONTAINER_CREDENTIALS_RELATIVE_URI"); rel != "" {
			endpoint = containerCredentialsHost + rel
		}
		if endpoint == "" {
			return aws.Credentials{}, fmt.Errorf("AWS_CONTAINER_CREDENTIALS_RELATIVE_URI or AWS_CONTAINER_CREDENTIALS_FULL_URI not set")
		}

		provider := endpointcreds.New(endpoint, func(o *endpointcreds.Options) {
			o.AuthorizationToken = os.Getenv("AWS_CONTAINER_AUTHORIZATION_TOKEN")
		})
		return provider.Retrieve(ctx)
	})
}

// InstanceRole asks the EC2 instance metadata service for the instance
// profile's credentials.
func InstanceRole() aws.CredentialsProvider {
	return ec2rolecreds.New(func(o *ec2rolecreds.Options) {
		o.Client = imds.New(imds.Options{})
	})
}

// Default is the chain used when nothing else is configured: environment,
// web identity, shared config, container, then instance role.
func Default() *Chain {
	return NewChain(
		Named{"environment", Environment()},
		Named{"web-identity", WebIdentity()},
		Named{"shared-config", SharedConfig(os.Getenv("AWS_PROFILE"))},
		Named{"container", Container()},
		Named{"instance-role", InstanceRole()},
	)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
