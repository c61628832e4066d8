package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Process exit codes. Per-identifier fetch and write failures never map to a
// dedicated code; they only surface through ExitPartialFailure when the run is
// configured to fail on them.
const (
	ExitUsage          = 1
	ExitConfig         = 2
	ExitIdentifiers    = 3
	ExitToken          = 4
	ExitClient         = 5
	ExitPartialFailure = 6
)

// ErrInvalidSecret is returned when a secret payload cannot be decoded into
// any supported key format.
var ErrInvalidSecret = errors.New("invalid secret")

// ErrSecretNotFound is returned when the store has no secret at a path.
var ErrSecretNotFound = errors.New("secret not found")

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  " + e.Suggestion
	}

	return msg
}

// ExitError attaches a process exit code to an error.
type ExitError struct {
	Code int
	Err  error
}

func (e ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e ExitError) Unwrap() error {
	return e.Err
}

// WithExitCode wraps err so that ExitCode reports code for it.
func WithExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return ExitError{Code: code, Err: err}
}

// ExitCode returns the process exit code for err. Configuration errors that
// were not explicitly wrapped map to ExitConfig; anything else maps to
// ExitUsage.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var cfgErr ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}

	return ExitUsage
}

// StoreError enhances secret store errors with context
func StoreError(operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("vault error during %s", operation),
		Details:    err.Error(),
		Suggestion: storeSuggestion(err),
		Err:        err,
	}
}

// storeSuggestion returns helpful suggestions based on Vault errors
func storeSuggestion(err error) string {
	if errors.Is(err, ErrSecretNotFound) {
		return "Check that the secret exists under the configured vault_path"
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "no such host"):
		return "Check that the Vault server is running and vault_addr is reachable"
	case strings.Contains(errStr, "permission denied"), strings.Contains(errStr, "403"):
		return "Check your Vault token policies for this path"
	case strings.Contains(errStr, "invalid token"), strings.Contains(errStr, "missing client token"):
		return "Your Vault token may be expired or invalid. Refresh the file at vault_token_path"
	case strings.Contains(errStr, "certificate"), strings.Contains(errStr, "tls"):
		return "Check vault_cacert, vault_client_cert and vault_client_key"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "The request timed out. Check your network connection or raise vault_timeout"
	default:
		return "Run 'vault-loader doctor' to check configuration and connectivity"
	}
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	var userErr UserError
	if errors.As(err, &userErr) {
		return err
	}
	var cfgErr ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Details:    errStr,
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	return err
}
