package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	dserrors "github.com/systmms/vault-loader/internal/errors"
	"github.com/systmms/vault-loader/internal/fetch"
	"github.com/systmms/vault-loader/internal/limiter"
	"github.com/systmms/vault-loader/internal/metrics"
	"github.com/systmms/vault-loader/internal/pipeline"
	"github.com/systmms/vault-loader/internal/pubkeys"
	"github.com/systmms/vault-loader/internal/writer"
)

// NewDownloadCommand creates the download command. It is also what the root
// command runs when no subcommand is given.
func NewDownloadCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Fetch keys from Vault and write web3signer key files",
		Long: `Fetch the secret of every public key listed in the vault_pubkeys_json_glob
files and write the matching web3signer key configuration into
web3signer_key_store_path.

Raw keys produce keystore-<pubkey>.yaml. Encrypted keys additionally produce
keystore-<pubkey>.json and keystore-<pubkey>.password. Existing files are
overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd.Context(), rt)
		},
	}
}

func runDownload(ctx context.Context, rt *Runtime) error {
	cfg := rt.Config
	if err := cfg.ValidateDownload(); err != nil {
		return err
	}

	keys, err := pubkeys.NewLoader(rt.Logger).LoadPubkeys(cfg.VaultPubkeysJSONGlob)
	if err != nil {
		return dserrors.WithExitCode(dserrors.ExitIdentifiers, err)
	}
	if len(keys) == 0 {
		rt.Logger.Warn("No public keys matched %s", cfg.VaultPubkeysJSONGlob)
	}

	files, err := limiter.New(cfg.MaxOpenFileDescriptors)
	if err != nil {
		return dserrors.ConfigError{
			Field:   "max_open_file_descriptors",
			Value:   cfg.MaxOpenFileDescriptors,
			Message: err.Error(),
		}
	}

	rec := metrics.New()
	w := writer.New(cfg.Web3signerKeyStorePath, files,
		writer.WithLogger(rt.Logger),
		writer.WithMetrics(rec),
	)
	// Fail before any Vault traffic if there is nowhere to write.
	if err := w.CheckDir(); err != nil {
		return err
	}

	client, err := newVaultClient(cfg)
	if err != nil {
		return err
	}

	requests, err := requestLimiter(cfg)
	if err != nil {
		return err
	}

	run := &pipeline.Download{
		Fetcher: fetch.New(client, requests,
			fetch.WithLogger(rt.Logger),
			fetch.WithMetrics(rec),
			fetch.WithRetryPolicy(retryPolicy(cfg)),
			fetch.WithRateLimit(rateLimit(cfg)),
			fetch.WithKVPath(cfg.VaultPath),
		),
		Writer:  w,
		Logger:  rt.Logger,
		Metrics: rec,
	}

	summary, err := run.Run(ctx, keys)
	if err != nil {
		return err
	}

	rec.SetLimiterPeak("requests", requests.Peak())
	rec.SetLimiterPeak("files", files.Peak())
	return finish(rt, rec, summary)
}

// finish reports a completed run and applies the fail_on_error policy.
func finish(rt *Runtime, rec *metrics.Recorder, summary *pipeline.Summary) error {
	cfg := rt.Config

	if err := rec.WriteTextfile(cfg.MetricsTextfile); err != nil {
		rt.Logger.Warn("Failed to write metrics to %s: %v", cfg.MetricsTextfile, err)
	}

	printSummary(rt.Out, summary, rt.NoColor)

	if summary.Failed() > 0 && cfg.FailOnError {
		return dserrors.WithExitCode(dserrors.ExitPartialFailure,
			fmt.Errorf("%d of %d key(s) failed", summary.Failed(), summary.Requested))
	}
	return nil
}

func printSummary(w io.Writer, summary *pipeline.Summary, noColor bool) {
	c := color.New(color.FgGreen, color.Bold)
	mark := "✓"
	if summary.Failed() > 0 {
		c = color.New(color.FgYellow, color.Bold)
		mark = "⚠"
	}
	if noColor {
		c.DisableColor()
	}

	_, _ = fmt.Fprintf(w, "%s %s\n", c.Sprint(mark), summary)
}
