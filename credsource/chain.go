// Package credsource resolves the AWS credentials a login is signed with.
//
// Providers are consulted in order on every Retrieve and nothing is cached:
// each login asks again, so rotated or expiring credentials are always
// picked up fresh.
package credsource

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// Named pairs a provider with a name for logs and errors.
type Named struct {
	Name     string
	Provider aws.CredentialsProvider
}

// Chain is an ordered fallback: the first provider to return an access key
// and secret that have not expired wins.
type Chain struct {
	providers []Named
	logger    log.FieldLogger
	nowFunc   func() time.Time
}

var _ aws.CredentialsProvider = (*Chain)(nil)

func NewChain(providers ...Named) *Chain {
	return &Chain{providers: providers, logger: log.StandardLogger(), nowFunc: time.Now}
}

// WithLogger replaces the logger provider failures are reported to at debug
// level.
func (c *Chain) WithLogger(logger log.FieldLogger) *Chain {
	c.logger = logger
	return c
}

// WithClock sets the clock expiry is judged against.
func (c *Chain) WithClock(now func() time.Time) *Chain {
	c.nowFunc = now
	return c
}

func (c *Chain) usable(creds aws.Credentials) error {
	if !creds.HasKeys() {
		return fmt.Errorf("returned no access key or secret")
	}
	if now := c.nowFunc(); creds.CanExpire && !now.Before(creds.Expires) {
		return fmt.Errorf("returned credentials that expired at %s", creds.Expires.UTC().Format(time.RFC3339))
	}
	return nil
}

func (c *Chain) Retrieve(ctx context.Context) (aws.Credentials, error) {
	var errs *multierror.Error

	for _, p := range c.providers {
		creds, err := p.Provider.Retrieve(ctx)
		if err == nil {
			err = c.usable(creds)
		}
		if err != nil {
			c.logger.WithFields(log.Fields{"provider": p.Name, "error": err}).Debug("credential provider failed")
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", p.Name, err))

			if ctx.Err() != nil {
				break
			}
			continue
		}

		if creds.Source == "" {
			creds.Source = p.Name
		}
		c.logger.WithField("provider", p.Name).Debug("using credentials")
		return creds, nil
	}

	if errs == nil {
		return aws.Credentials{}, fmt.Errorf("no credential providers configured")
	}
	return aws.Credentials{}, fmt.Errorf("no valid credential sources found: %w", errs.ErrorOrNil())
}
