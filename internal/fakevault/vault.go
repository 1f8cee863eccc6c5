package fakevault

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/vault/api"
	log "github.com/sirupsen/logrus"

	"github.com/thomasdesr/vaultiam/envelope"
	"github.com/thomasdesr/vaultiam/gcisigner"
	"github.com/thomasdesr/vaultiam/gcisigner/sources"
)

// Vault serves /v1/auth/{mount}/login like Vault's aws auth method in iam
// mode: it replays the envelope to STS and checks the caller against the
// role's bound principals.
type Vault struct {
	mount    string
	verifier *gcisigner.Verifier

	mu    sync.Mutex
	roles map[string]boundRole

	logins atomic.Int64
}

type boundRole struct {
	principals sources.Verifier
	policies   []string
}

// New returns a fake Vault mounted at mount that reaches STS through
// stsTransport.
func New(mount string, stsTransport http.RoundTripper) *Vault {
	return &Vault{
		mount:    strings.Trim(mount, "/"),
		verifier: gcisigner.NewVerifier(stsTransport),
		roles:    make(map[string]boundRole),
	}
}

// RequireServerID makes logins without a matching signed
// X-Vault-AWS-IAM-Server-ID header fail.
func (v *Vault) RequireServerID(id string) {
	v.verifier.RequiredServerID = id
}

// BindRole creates role name, allowing callers whose ARN resolves to one of
// principals.
func (v *Vault) BindRole(name string, principals ...sources.Role) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.roles[name] = boundRole{
		principals: sources.MatchesAny(principals...),
		policies:   []string{"default", name},
	}
}

// Logins counts login requests, successful or not.
func (v *Vault) Logins() int {
	return int(v.logins.Load())
}

func (v *Vault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/auth/"+v.mount+"/login" {
		writeVaultError(w, http.StatusNotFound, "no handler for route %q", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		writeVaultError(w, http.StatusMethodNotAllowed, "unsupported operation")
		return
	}
	v.logins.Add(1)

	var env envelope.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeVaultError(w, http.StatusBadRequest, "failed to parse JSON input: %v", err)
		return
	}

	v.mu.Lock()
	role, ok := v.roles[env.Role]
	v.mu.Unlock()
	if !ok {
		writeVaultError(w, http.StatusBadRequest, "entry for role %q not found", env.Role)
		return
	}

	verified, err := v.verifier.Verify(r.Context(), env)
	if err != nil {
		writeVaultError(w, http.StatusBadRequest, "error making upstream request: %v", err)
		return
	}

	caller := verified.CallerIdentity
	if ok, err := role.principals.Verify(&caller); err != nil || !ok {
		log.WithFields(log.Fields{"component": "fake-vault", "caller": caller.Arn, "role": env.Role}).Debug("principal not bound")
		writeVaultError(w, http.StatusForbidden, "permission denied")
		return
	}

	canonical, err := sources.Principal(caller.Arn)
	if err != nil {
		writeVaultError(w, http.StatusBadRequest, "unable to resolve caller %q: %v", caller.Arn, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(&api.Secret{
		RequestID: randomID(),
		Warnings:  nil,
		Auth: &api.SecretAuth{
			ClientToken:   "hvs." + randomID(),
			Accessor:      randomID(),
			Policies:      role.policies,
			TokenPolicies: role.policies,
			Metadata: map[string]string{
				"account_id":     caller.Account,
				"auth_type":      "iam",
				"canonical_arn":  canonical.Canonical().String(),
				"client_arn":     caller.Arn,
				"client_user_id": caller.UserId,
				"role":           env.Role,
			},
			EntityID:      randomID(),
			LeaseDuration: 2764800,
			Renewable:     true,
		},
	})
}

func writeVaultError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string][]string{
		"errors": {fmt.Sprintf(format, args...)},
	})
}

func randomID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
