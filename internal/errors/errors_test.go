package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/systmms/vault-loader/internal/errors"
)

// TestUserErrorFormatting verifies UserError displays properly
func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.UserError{
		Message:    "Operation failed",
		Details:    "Connection timeout",
		Suggestion: "Check network connectivity",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "Operation failed")
	assert.Contains(t, errMsg, "Connection timeout")
	assert.Contains(t, errMsg, "Check network connectivity")
}

func TestUserErrorFallsBackToWrapped(t *testing.T) {
	t.Parallel()

	inner := fmt.Errorf("root cause")
	err := errors.UserError{Err: inner}

	assert.Equal(t, "root cause", err.Error())
	assert.ErrorIs(t, err, inner)
}

// TestConfigErrorFormatting verifies ConfigError displays with context
func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{
		Field:      "vault_addr",
		Value:      "invalid-url",
		Message:    "Invalid URL format",
		Suggestion: "Use format: https://hostname:port",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "vault_addr")
	assert.Contains(t, errMsg, "invalid-url")
	assert.Contains(t, errMsg, "Invalid URL format")
	assert.Contains(t, errMsg, "https://hostname:port")
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "plain error", err: fmt.Errorf("boom"), want: errors.ExitUsage},
		{name: "config error", err: errors.ConfigError{Message: "bad"}, want: errors.ExitConfig},
		{name: "wrapped config error", err: fmt.Errorf("load: %w", errors.ConfigError{Message: "bad"}), want: errors.ExitConfig},
		{name: "explicit code", err: errors.WithExitCode(errors.ExitToken, fmt.Errorf("no token")), want: errors.ExitToken},
		{name: "explicit code wins over config", err: errors.WithExitCode(errors.ExitIdentifiers, errors.ConfigError{Message: "bad"}), want: errors.ExitIdentifiers},
		{name: "wrapped exit error", err: fmt.Errorf("run: %w", errors.WithExitCode(errors.ExitClient, fmt.Errorf("tls"))), want: errors.ExitClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, errors.ExitCode(tt.err))
		})
	}
}

func TestWithExitCodeNil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, errors.WithExitCode(errors.ExitConfig, nil))
}

func TestStoreErrorSuggestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{name: "not found", err: errors.ErrSecretNotFound, contains: "vault_path"},
		{name: "connection refused", err: fmt.Errorf("dial tcp: connection refused"), contains: "vault_addr"},
		{name: "permission denied", err: fmt.Errorf("Code: 403. Errors: permission denied"), contains: "policies"},
		{name: "tls", err: fmt.Errorf("x509: certificate signed by unknown authority"), contains: "vault_cacert"},
		{name: "fallback", err: fmt.Errorf("something odd"), contains: "doctor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := errors.StoreError("read", tt.err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.True(t, stderrors.Is(err, tt.err))
		})
	}
}

func TestSimplifyError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.SimplifyError(nil))

	userErr := errors.UserError{Message: "already friendly"}
	assert.Equal(t, userErr, errors.SimplifyError(userErr))

	yamlErr := fmt.Errorf("load: %w", fmt.Errorf("yaml: line 3: mapping values are not allowed"))
	var cfgErr errors.ConfigError
	assert.ErrorAs(t, errors.SimplifyError(yamlErr), &cfgErr)

	permErr := fmt.Errorf("open /etc/x: permission denied")
	assert.Contains(t, errors.SimplifyError(permErr).Error(), "Permission denied")
}
