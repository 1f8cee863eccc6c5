// Command vault-iam-login logs in to Vault's aws auth method with the ambient
// AWS credentials and prints the resulting token.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/thomasdesr/vaultiam"
	"github.com/thomasdesr/vaultiam/gcisigner"
	"github.com/thomasdesr/vaultiam/gcisigner/sources"
	"github.com/thomasdesr/vaultiam/internal/errorutil"
)

var logger = log.New()

// stsTransport carries whoami's replayed request. nil means the default
// transport.
var stsTransport http.RoundTripper

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "vault-iam-login",
		Short:         "Log in to Vault with AWS IAM credentials",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(opts.logLevel)
			if err != nil {
				return errorutil.Wrapf(err, "invalid --log-level %q", opts.logLevel)
			}
			logger.SetOutput(stderr)
			logger.SetLevel(level)
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	opts.register(root)

	root.AddCommand(
		newLoginCommand(opts),
		newPayloadCommand(opts),
		newWhoamiCommand(opts),
	)

	return root
}

func newLoginCommand(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print the Vault token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.parameters()
			if err != nil {
				return err
			}

			c, err := vaultiam.NewClient(opts.clientOptions()...)
			if err != nil {
				return err
			}

			info, err := c.Authenticate(cmd.Context(), p)
			if err != nil {
				return err
			}

			switch format {
			case "token":
				fmt.Fprintln(cmd.OutOrStdout(), info.ClientToken)
				return nil
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			default:
				return fmt.Errorf("unknown --format %q", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "token", "Output format: token or json")

	return cmd
}

func newPayloadCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "payload",
		Short: "Print the signed login request body without sending it",
		Long: "Print the JSON body that login would POST to Vault. It carries a " +
			"signed, replayable STS request, so treat it like a short-lived credential.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.parameters()
			if err != nil {
				return err
			}

			c, err := vaultiam.NewClient(opts.clientOptions()...)
			if err != nil {
				return err
			}

			env, err := c.BuildPayload(cmd.Context(), p)
			if err != nil {
				return err
			}

			return json.NewEncoder(cmd.OutOrStdout()).Encode(env)
		},
	}
}

func newWhoamiCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Replay the signed request to STS and print the caller Vault would see",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := vaultiam.NewClient(opts.clientOptions()...)
			if err != nil {
				return err
			}

			// Vault isn't contacted, so any well-formed address will do.
			p := vaultiam.Parameters{
				VaultAddress: &url.URL{Scheme: "https", Host: "vault.invalid"},
				Role:         "whoami",
				IAMServerID:  opts.serverID,
			}
			env, err := c.BuildPayload(cmd.Context(), p)
			if err != nil {
				return err
			}

			v := gcisigner.NewVerifier(stsTransport)
			v.RequiredServerID = opts.serverID

			verified, err := v.Verify(cmd.Context(), *env)
			if err != nil {
				return errorutil.Wrap(err, "sts rejected the signed request")
			}

			out := map[string]string{
				"arn":     verified.CallerIdentity.Arn,
				"account": verified.CallerIdentity.Account,
				"user_id": verified.CallerIdentity.UserId,
			}
			if role, err := sources.Principal(verified.CallerIdentity.Arn); err == nil {
				out["canonical_arn"] = role.Canonical().String()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
