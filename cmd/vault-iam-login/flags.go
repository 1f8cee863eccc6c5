package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/thomasdesr/vaultiam"
	"github.com/thomasdesr/vaultiam/internal/errorutil"
	"github.com/thomasdesr/vaultiam/vaulthttp"
)

// getEnvWithDefault returns the value of the environment variable if set, otherwise returns the default value
func getEnvWithDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvBool is getEnvWithDefault for boolean variables. Unparseable values
// count as false.
func getEnvBool(key string) bool {
	v, err := strconv.ParseBool(getEnvWithDefault(key, "false"))
	return err == nil && v
}

// options holds the flags shared by every subcommand.
type options struct {
	address  string
	mount    string
	role     string
	serverID string

	caCert        string
	caPath        string
	tlsSkipVerify bool

	sdkSigner bool
	logLevel  string
}

func (o *options) register(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.StringVar(&o.address, "address", getEnvWithDefault("VAULT_ADDR", "https://127.0.0.1:8200"), "Vault address [VAULT_ADDR]")
	flags.StringVar(&o.mount, "mount", getEnvWithDefault("VAULT_AWS_MOUNT", vaultiam.DefaultMountPath), "Mount path of the aws auth method [VAULT_AWS_MOUNT]")
	flags.StringVar(&o.role, "role", getEnvWithDefault("VAULT_AWS_ROLE", ""), "Vault role to log in as [VAULT_AWS_ROLE]")
	flags.StringVar(&o.serverID, "server-id", getEnvWithDefault("VAULT_AWS_IAM_SERVER_ID", ""), "Value for the signed X-Vault-AWS-IAM-Server-ID header [VAULT_AWS_IAM_SERVER_ID]")

	flags.StringVar(&o.caCert, "ca-cert", getEnvWithDefault("VAULT_CACERT", ""), "PEM file of CA certificates to trust for Vault [VAULT_CACERT]")
	flags.StringVar(&o.caPath, "ca-path", getEnvWithDefault("VAULT_CAPATH", ""), "Directory of PEM CA certificates to trust for Vault [VAULT_CAPATH]")
	flags.BoolVar(&o.tlsSkipVerify, "tls-skip-verify", getEnvBool("VAULT_SKIP_VERIFY"), "Do not verify Vault's certificate [VAULT_SKIP_VERIFY]")

	flags.BoolVar(&o.sdkSigner, "sdk-signer", false, "Sign with the aws-sdk-go-v2 signer")
	flags.StringVar(&o.logLevel, "log-level", getEnvWithDefault("VAULT_IAM_LOG_LEVEL", "warn"), "Log level (debug, info, warn, error) [VAULT_IAM_LOG_LEVEL]")
}

func (o *options) parameters() (vaultiam.Parameters, error) {
	if o.role == "" {
		return vaultiam.Parameters{}, fmt.Errorf("--role or VAULT_AWS_ROLE is required")
	}

	addr, err := vaultiam.ParseAddress(o.address)
	if err != nil {
		return vaultiam.Parameters{}, errorutil.Wrapf(err, "invalid --address %q", o.address)
	}

	return vaultiam.Parameters{
		VaultAddress: addr,
		MountPath:    o.mount,
		Role:         o.role,
		IAMServerID:  o.serverID,
	}.Validate()
}

func (o *options) clientOptions() []vaultiam.Option {
	opts := []vaultiam.Option{
		vaultiam.WithLogger(logger),
		vaultiam.WithTLSConfig(vaulthttp.Config{
			CACertFile:         o.caCert,
			CACertPath:         o.caPath,
			InsecureSkipVerify: o.tlsSkipVerify,
		}),
	}
	if o.sdkSigner {
		opts = append(opts, vaultiam.WithSDKSigner())
	}
	return opts
}
