package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/vault-loader/internal/logging"
)

func newBufferLogger(debug bool) (*logging.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logging.NewWithOptions(logging.Options{Debug: debug, NoColor: true, Output: &buf}), &buf
}

func TestSecretRedaction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "secret is redacted", input: "my-secret-password"},
		{name: "empty secret is still redacted", input: ""},
		{name: "complex secret is redacted", input: "password123!@#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, "[REDACTED]", logging.Secret(tt.input).String())
			assert.Equal(t, "[REDACTED]", logging.Secret(tt.input).GoString())
		})
	}
}

func TestLoggerLevelSymbols(t *testing.T) {
	t.Parallel()

	logger, buf := newBufferLogger(true)

	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
	logger.Debug("debug message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "✓ info message", lines[0])
	assert.Equal(t, "⚠ warn message", lines[1])
	assert.Equal(t, "✗ error message", lines[2])
	assert.Equal(t, "[DEBUG] debug message", lines[3])
}

func TestLoggerDebugSuppressed(t *testing.T) {
	t.Parallel()

	logger, buf := newBufferLogger(false)
	logger.Debug("hidden %d", 1)

	assert.Empty(t, buf.String())
}

func TestLoggerWithField(t *testing.T) {
	t.Parallel()

	logger, buf := newBufferLogger(false)
	logger.WithField("pubkey", "0xabc").WithField("attempt", 2).Warn("retrying")

	assert.Equal(t, "⚠ retrying attempt=2 pubkey=0xabc\n", buf.String())
}

func TestLoggerJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.NewWithOptions(logging.Options{JSON: true, Output: &buf})
	logger.WithField("pubkey", "pk1").Info("written %d files", 3)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "written 3 files", line["msg"])
	assert.Equal(t, "pk1", line["pubkey"])
	assert.Equal(t, "info", line["level"])
}

func TestSecretRedactionInLogs(t *testing.T) {
	t.Parallel()

	logger, buf := newBufferLogger(true)

	secret1 := "password-123"
	secret2 := "api-key-456"

	logger.Info("Credentials: password=%s, api_key=%s", logging.Secret(secret1), logging.Secret(secret2))
	logger.Debug("Processing secret: %s", logging.Secret(secret1))
	logger.Error("Authentication failed for secret: %#v", logging.Secret(secret2))

	output := buf.String()
	assert.Equal(t, 4, strings.Count(output, "[REDACTED]"))
	assert.NotContains(t, output, secret1)
	assert.NotContains(t, output, secret2)
}

func TestRedact(t *testing.T) {
	t.Parallel()

	got := logging.Redact("token=s.abcdef password=pw", []string{"s.abcdef", "pw", ""})
	assert.Equal(t, "token=[REDACTED] password=pw", got)
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		logging.Discard().WithField("k", "v").Error("dropped")
	})
}
