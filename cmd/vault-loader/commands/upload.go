package commands

import (
	"context"

	"github.com/spf13/cobra"

	dserrors "github.com/systmms/vault-loader/internal/errors"
	"github.com/systmms/vault-loader/internal/metrics"
	"github.com/systmms/vault-loader/internal/pipeline"
	"github.com/systmms/vault-loader/internal/pubkeys"
)

// NewUploadCommand creates the upload command.
func NewUploadCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Store local key secrets in Vault",
		Long: `Read every vault_privkeys_json_glob file, each a JSON object mapping a public
key to its secret fields, and write each secret to
<vault_path>/<pubkey>/vkey.

Secrets are checked with the same rules download applies, so a secret that
could not be downloaded is never uploaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd.Context(), rt)
		},
	}
}

func runUpload(ctx context.Context, rt *Runtime) error {
	cfg := rt.Config
	if err := cfg.ValidateUpload(); err != nil {
		return err
	}

	entries, err := pubkeys.NewLoader(rt.Logger).LoadPrivkeys(cfg.VaultPrivkeysJSONGlob)
	if err != nil {
		return dserrors.WithExitCode(dserrors.ExitIdentifiers, err)
	}
	if len(entries) == 0 {
		rt.Logger.Warn("No key secrets matched %s", cfg.VaultPrivkeysJSONGlob)
	}

	client, err := newVaultClient(cfg)
	if err != nil {
		return err
	}

	requests, err := requestLimiter(cfg)
	if err != nil {
		return err
	}

	rec := metrics.New()
	run := &pipeline.Upload{
		Client:   client,
		Requests: requests,
		KVPath:   cfg.VaultPath,
		Retry:    retryPolicy(cfg),
		Rate:     rateLimit(cfg),
		Logger:   rt.Logger,
		Metrics:  rec,
	}

	summary := run.Run(ctx, entries)
	rec.SetLimiterPeak("requests", requests.Peak())
	return finish(rt, rec, summary)
}
