// Package sources models the AWS principals that show up in a
// GetCallerIdentity answer and in Vault's aws auth metadata.
package sources

import (
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/juju/errors"

	"github.com/thomasdesr/vaultiam/internal/errorutil"
)

const (
	// ErrInvalidRoleARN indicates the ARN is not an IAM role ARN.
	ErrInvalidRoleARN = errors.ConstError("invalid IAM role ARN")

	// ErrInvalidAssumedRoleARN indicates the ARN is not an STS assumed-role ARN.
	ErrInvalidAssumedRoleARN = errors.ConstError("invalid STS assumed role ARN")
)

// IAM naming rules for role and session names.
var validNamePattern = regexp.MustCompile(`^[\w+=,.@-]+$`)

// FromARN converts an arn.ARN into a Role or an AssumedRole.
func FromARN[T Role | AssumedRole](a arn.ARN) (T, error) {
	var result T

	switch any(result).(type) {
	case Role:
		role, err := roleFromARN(a)
		if err != nil {
			return result, errorutil.Wrapf(err, "failed to parse %q as role ARN", a)
		}
		return any(role).(T), nil
	case AssumedRole:
		assumedRole, err := assumedRoleFromARN(a)
		if err != nil {
			return result, errorutil.Wrapf(err, "failed to parse %q as assumed role ARN", a)
		}
		return any(assumedRole).(T), nil
	default:
		panic(fmt.Sprintf("unsupported type %T", result))
	}
}

// Parse is FromARN for ARN strings.
func Parse[T Role | AssumedRole](s string) (T, error) {
	a, err := arn.Parse(s)
	if err != nil {
		var zero T
		return zero, errorutil.Wrapf(err, "failed to parse ARN %q", s)
	}
	return FromARN[T](a)
}

// Principal resolves a caller ARN to the IAM role behind it. Role ARNs are
// returned as is; assumed-role ARNs resolve to the role that issued the
// session.
func Principal(s string) (Role, error) {
	a, err := arn.Parse(s)
	if err != nil {
		return Role{}, errorutil.Wrapf(err, "failed to parse ARN %q", s)
	}

	if a.Service == "iam" {
		return FromARN[Role](a)
	}

	assumed, err := FromARN[AssumedRole](a)
	if err != nil {
		return Role{}, err
	}
	return assumed.SessionIssuer()
}
