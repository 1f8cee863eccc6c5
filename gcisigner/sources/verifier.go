package sources

import (
	"slices"

	"github.com/thomasdesr/vaultiam/gcisigner/awsapi"
	"github.com/thomasdesr/vaultiam/internal/errorutil"
)

// Verifier decides whether a verified caller may log in. You can rely on its
// argument never being nil.
type Verifier interface {
	Verify(*awsapi.GetCallerIdentityResult) (bool, error)
}

type VerifyFunc func(*awsapi.GetCallerIdentityResult) (bool, error)

var _ Verifier = VerifyFunc(nil)

func (v VerifyFunc) Verify(gcir *awsapi.GetCallerIdentityResult) (bool, error) {
	return v(gcir)
}

// MatchesAny accepts callers whose ARN resolves to one of allowedRoles, in
// the way Vault matches bound_iam_principal_arn.
func MatchesAny(allowedRoles ...Role) Verifier {
	allowed := make([]Role, 0, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed = append(allowed, r.Canonical())
	}

	return VerifyFunc(func(gcir *awsapi.GetCallerIdentityResult) (bool, error) {
		role, err := Principal(gcir.Arn)
		if err != nil {
			return false, errorutil.Wrap(err, "failed to resolve caller")
		}

		return slices.Contains(allowed, role.Canonical()), nil
	})
}
