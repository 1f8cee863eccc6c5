package sources

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/juju/errors"

	"github.com/thomasdesr/vaultiam/internal/errorutil"
)

// AssumedRole is an STS session ARN:
// arn:aws:sts::123456789012:assumed-role/role-name/session-name
type AssumedRole struct {
	arn arn.ARN
}

func assumedRoleFromARN(a arn.ARN) (AssumedRole, error) {
	if a.Service != "sts" {
		return AssumedRole{}, errors.WithType(errors.Errorf("service must be 'sts', got %q", a.Service), ErrInvalidAssumedRoleARN)
	}

	parts := strings.Split(a.Resource, "/")
	if len(parts) != 3 || parts[0] != "assumed-role" {
		return AssumedRole{}, errors.WithType(errors.Errorf("resource must look like 'assumed-role/role-name/session-name', got %q", a.Resource), ErrInvalidAssumedRoleARN)
	}

	for _, name := range parts[1:] {
		if !validNamePattern.MatchString(name) {
			return AssumedRole{}, errors.WithType(errors.Errorf("name %q does not match %q", name, validNamePattern), ErrInvalidAssumedRoleARN)
		}
	}

	return AssumedRole{arn: a}, nil
}

func (a AssumedRole) ARN() arn.ARN {
	return a.arn
}

func (a AssumedRole) String() string {
	return a.arn.String()
}

func (a AssumedRole) RoleName() string {
	return strings.Split(a.arn.Resource, "/")[1]
}

func (a AssumedRole) SessionName() string {
	return strings.Split(a.arn.Resource, "/")[2]
}

// SessionIssuer returns the IAM role that minted the session.
func (a AssumedRole) SessionIssuer() (Role, error) {
	parent, err := roleFromARN(arn.ARN{
		Partition: a.arn.Partition,
		Service:   "iam",
		Region:    a.arn.Region,
		AccountID: a.arn.AccountID,
		Resource:  "role/" + a.RoleName(),
	})
	if err != nil {
		return Role{}, errorutil.Wrap(err, "failed to create parent role")
	}
	return parent, nil
}
