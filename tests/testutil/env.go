package testutil

import (
	"os"
	"testing"
)

// SetupTestEnv sets environment variables for the duration of a test. Tests
// calling it cannot run in parallel.
//
// Example usage:
//
//	SetupTestEnv(t, map[string]string{
//	    "VAULT_ADDR":         "http://localhost:8200",
//	    "VAULT_MAX_ATTEMPTS": "3",
//	})
func SetupTestEnv(t *testing.T, vars map[string]string) {
	t.Helper()

	for key, value := range vars {
		t.Setenv(key, value)
	}
}

// UnsetEnv removes variables for the duration of a test so that values from
// the surrounding environment cannot leak into it. The originals are restored
// when the test completes.
func UnsetEnv(t *testing.T, keys ...string) {
	t.Helper()

	for _, key := range keys {
		// t.Setenv registers the restore.
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("Failed to unset environment variable %s: %v", key, err)
		}
	}
}
