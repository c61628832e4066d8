package commands

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/systmms/vault-loader/internal/config"
	dserrors "github.com/systmms/vault-loader/internal/errors"
	"github.com/systmms/vault-loader/internal/fetch"
	"github.com/systmms/vault-loader/internal/limiter"
	"github.com/systmms/vault-loader/internal/secure"
	"github.com/systmms/vault-loader/internal/vault"
)

// newVaultClient reads the token and builds the Vault client. The token only
// leaves its enclave for the duration of this call.
func newVaultClient(cfg *config.Config) (*vault.APIClient, error) {
	token, err := secure.ReadToken(cfg.VaultTokenPath)
	if err != nil {
		return nil, dserrors.WithExitCode(dserrors.ExitToken, dserrors.UserError{
			Message:    "Cannot read Vault token",
			Details:    err.Error(),
			Suggestion: "Check that vault_token_path points to a readable, non-empty file",
			Err:        err,
		})
	}
	defer token.Destroy()

	locked, err := token.Open()
	if err != nil {
		return nil, dserrors.WithExitCode(dserrors.ExitToken, fmt.Errorf("open token enclave: %w", err))
	}
	defer locked.Destroy()

	client, err := vault.NewClient(vault.Options{
		Address:    cfg.VaultAddr,
		Token:      string(locked.Bytes()),
		CACert:     cfg.VaultCACert,
		ClientCert: cfg.VaultClientCert,
		ClientKey:  cfg.VaultClientKey,
		Timeout:    cfg.VaultTimeout,
	})
	if err != nil {
		return nil, dserrors.WithExitCode(dserrors.ExitClient, dserrors.UserError{
			Message:    "Cannot create Vault client",
			Details:    err.Error(),
			Suggestion: "Check vault_addr and the TLS files",
			Err:        err,
		})
	}

	return client, nil
}

func retryPolicy(cfg *config.Config) fetch.RetryPolicy {
	return fetch.RetryPolicy{
		MaxAttempts:     cfg.VaultMaxAttempts,
		InitialInterval: cfg.VaultRetryInitialInterval,
		MaxInterval:     cfg.VaultRetryMaxInterval,
	}
}

// rateLimit returns nil when no request rate is configured.
func rateLimit(cfg *config.Config) *rate.Limiter {
	if cfg.VaultRequestsPerSecond <= 0 {
		return nil
	}
	burst := int(cfg.VaultRequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.VaultRequestsPerSecond), burst)
}

func requestLimiter(cfg *config.Config) (*limiter.Limiter, error) {
	l, err := limiter.New(cfg.VaultMaxConcurrentRequests)
	if err != nil {
		return nil, dserrors.ConfigError{
			Field:   "vault_max_concurrent_requests",
			Value:   cfg.VaultMaxConcurrentRequests,
			Message: err.Error(),
		}
	}
	return l, nil
}
