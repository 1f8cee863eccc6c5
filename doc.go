// Package vaultiam logs in to HashiCorp Vault's aws auth method using the
// iam login type.
//
// Rather than sending AWS credentials anywhere, the client signs an
// sts:GetCallerIdentity request with them and hands Vault the signed request.
// Vault replays it to STS, learns who signed it, and issues a token if that
// principal is bound to the requested role.
//
//	info, err := vaultiam.Authenticate(ctx, vaultiam.Parameters{
//		VaultAddress: addr,
//		Role:         "deployer",
//	})
//
// Each call resolves credentials afresh, opens one connection to Vault and
// closes it before returning. Nothing is cached or retried.
package vaultiam
