package testutils

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/thomasdesr/vaultiam/gcisigner/sources"
	"github.com/thomasdesr/vaultiam/internal/errorutil"
)

// GetLocalRole asks the real STS who the ambient credentials belong to and
// returns the IAM role behind them.
func GetLocalRole(ctx context.Context, client *sts.Client) (sources.Role, error) {
	result, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return sources.Role{}, errorutil.Wrap(err, "failed to get caller identity")
	}

	role, err := sources.Principal(*result.Arn)
	if err != nil {
		return sources.Role{}, errorutil.Wrapf(err, "caller %q is not a role", *result.Arn)
	}

	return role, nil
}
