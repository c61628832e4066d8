package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/vault-loader/internal/config"
	dserrors "github.com/systmms/vault-loader/internal/errors"
	"github.com/systmms/vault-loader/internal/secure"
)

// CheckResult is one line of the doctor report.
type CheckResult struct {
	Name    string
	OK      bool
	Skipped bool
	Message string
}

func NewDoctorCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, local files and Vault connectivity",
		Long: `Verify that vault-loader is ready to run.

This command checks:
- Configuration validity
- The Vault token file
- TLS certificate files
- The web3signer key store directory
- The public key files
- Vault reachability and seal status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt.Logger.Info("Checking vault-loader configuration...")

			results := runChecks(cmd.Context(), rt.Config)
			displayCheckResults(rt.Out, results)

			passed, total := 0, 0
			for _, r := range results {
				if r.Skipped {
					continue
				}
				total++
				if r.OK {
					passed++
				}
			}

			_, _ = fmt.Fprintf(rt.Out, "\nSummary: %d/%d checks passed\n", passed, total)
			if passed < total {
				return dserrors.UserError{
					Message:    "some checks failed",
					Suggestion: "Fix the failing checks above and run 'vault-loader doctor' again",
				}
			}

			rt.Logger.Info("All checks passed")
			return nil
		},
	}
}

func runChecks(ctx context.Context, cfg *config.Config) []CheckResult {
	results := []CheckResult{checkConfig(cfg), checkToken(cfg)}
	results = append(results, checkTLSFiles(cfg)...)
	results = append(results,
		checkKeyStore(cfg),
		checkPubkeys(cfg),
		checkVault(ctx, cfg),
	)
	return results
}

func checkConfig(cfg *config.Config) CheckResult {
	if err := cfg.Validate(); err != nil {
		return CheckResult{Name: "config", Message: err.Error()}
	}
	return CheckResult{Name: "config", OK: true, Message: "valid"}
}

func checkToken(cfg *config.Config) CheckResult {
	r := CheckResult{Name: "token file"}
	if cfg.VaultTokenPath == "" {
		r.Message = "vault_token_path is not set"
		return r
	}

	token, err := secure.ReadToken(cfg.VaultTokenPath)
	if err != nil {
		r.Message = err.Error()
		return r
	}
	token.Destroy()

	r.OK = true
	r.Message = cfg.VaultTokenPath
	return r
}

func checkTLSFiles(cfg *config.Config) []CheckResult {
	files := []struct {
		name string
		path string
	}{
		{"ca certificate", cfg.VaultCACert},
		{"client certificate", cfg.VaultClientCert},
		{"client key", cfg.VaultClientKey},
	}

	results := make([]CheckResult, 0, len(files))
	for _, f := range files {
		r := CheckResult{Name: f.name}
		switch {
		case f.path == "":
			r.Skipped = true
			r.Message = "not configured"
		default:
			if _, err := os.Stat(f.path); err != nil {
				r.Message = err.Error()
			} else {
				r.OK = true
				r.Message = f.path
			}
		}
		results = append(results, r)
	}
	return results
}

func checkKeyStore(cfg *config.Config) CheckResult {
	r := CheckResult{Name: "key store"}
	if cfg.Web3signerKeyStorePath == "" {
		r.Skipped = true
		r.Message = "web3signer_key_store_path is not set"
		return r
	}

	info, err := os.Stat(cfg.Web3signerKeyStorePath)
	switch {
	case err != nil:
		r.Message = err.Error()
	case !info.IsDir():
		r.Message = cfg.Web3signerKeyStorePath + " is not a directory"
	default:
		r.OK = true
		r.Message = cfg.Web3signerKeyStorePath
	}
	return r
}

func checkPubkeys(cfg *config.Config) CheckResult {
	r := CheckResult{Name: "pubkey files"}
	if cfg.VaultPubkeysJSONGlob == "" {
		r.Skipped = true
		r.Message = "vault_pubkeys_json_glob is not set"
		return r
	}

	matches, err := filepath.Glob(cfg.VaultPubkeysJSONGlob)
	switch {
	case err != nil:
		r.Message = err.Error()
	case len(matches) == 0:
		r.Message = "no files match " + cfg.VaultPubkeysJSONGlob
	default:
		r.OK = true
		r.Message = fmt.Sprintf("%d file(s)", len(matches))
	}
	return r
}

func checkVault(ctx context.Context, cfg *config.Config) CheckResult {
	r := CheckResult{Name: "vault"}
	if cfg.VaultAddr == "" || cfg.VaultTokenPath == "" {
		r.Skipped = true
		r.Message = "vault_addr or vault_token_path is not set"
		return r
	}

	client, err := newVaultClient(cfg)
	if err != nil {
		r.Message = dserrors.SimplifyError(err).Error()
		return r
	}

	health, err := client.Health(ctx)
	switch {
	case err != nil:
		r.Message = dserrors.StoreError("health check", err).Error()
	case !health.Initialized:
		r.Message = "vault is not initialized"
	case health.Sealed:
		r.Message = "vault is sealed"
	default:
		r.OK = true
		r.Message = fmt.Sprintf("%s (version %s)", cfg.VaultAddr, health.Version)
	}
	return r
}

// displayCheckResults shows check results in a formatted table
func displayCheckResults(out io.Writer, results []CheckResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "CHECK\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "-----\t------\t-------\n")

	for _, r := range results {
		status := "✗ failed"
		switch {
		case r.Skipped:
			status = "- skipped"
		case r.OK:
			status = "✓ ok"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, status, r.Message)
	}

	_ = w.Flush()
}
