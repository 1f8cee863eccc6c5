package sources

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/juju/errors"
)

// Role is an IAM role ARN, e.g. arn:aws:iam::123456789012:role/path/name.
type Role struct {
	arn arn.ARN
}

func roleFromARN(a arn.ARN) (Role, error) {
	if a.Service != "iam" {
		return Role{}, errors.WithType(errors.Errorf("service must be 'iam', got %q", a.Service), ErrInvalidRoleARN)
	}

	kind, path, ok := strings.Cut(a.Resource, "/")
	if !ok || kind != "role" {
		return Role{}, errors.WithType(errors.Errorf("resource must start with 'role/', got %q", a.Resource), ErrInvalidRoleARN)
	}

	for _, segment := range strings.Split(path, "/") {
		if !validNamePattern.MatchString(segment) {
			return Role{}, errors.WithType(errors.Errorf("role name %q does not match %q", path, validNamePattern), ErrInvalidRoleARN)
		}
	}

	return Role{arn: a}, nil
}

// ARN returns the role's ARN. Roles only come out of FromARN, so the value
// has already been validated.
func (r Role) ARN() arn.ARN {
	return r.arn
}

func (r Role) String() string {
	return r.arn.String()
}

// RoleName returns the name of the role without its path.
func (r Role) RoleName() string {
	parts := strings.Split(r.arn.Resource, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-1]
}

// Canonical drops the role path. STS reports assumed roles without it, and
// Vault stores canonical_arn the same way.
func (r Role) Canonical() Role {
	r.arn.Resource = "role/" + r.RoleName()
	return r
}
