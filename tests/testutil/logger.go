// Package testutil holds helpers shared by vault-loader tests.
package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systmms/vault-loader/internal/logging"
)

// LogBuffer captures what a logging.Logger writes. It is safe for the
// concurrent writes the fetcher and writer goroutines produce.
//
// Example usage:
//
//	logger, logs := testutil.NewTestLogger(t)
//	fetcher := fetch.New(client, requests, fetch.WithLogger(logger))
//	...
//	logs.AssertContains(t, "giving up")
//	logs.AssertNotContains(t, "s3cret")
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewTestLogger returns a debug-level logger without colour that writes into
// the returned buffer.
func NewTestLogger(t *testing.T) (*logging.Logger, *LogBuffer) {
	t.Helper()

	logs := &LogBuffer{}
	logger := logging.NewWithOptions(logging.Options{
		Debug:   true,
		NoColor: true,
		Output:  logs,
	})
	return logger, logs
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything logged so far.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Lines returns the logged lines without the trailing newline.
func (b *LogBuffer) Lines() []string {
	out := strings.TrimRight(b.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// AssertContains fails the test if no line contains substr.
func (b *LogBuffer) AssertContains(t *testing.T, substr string) {
	t.Helper()
	assert.Contains(t, b.String(), substr, "log output should contain %q", substr)
}

// AssertNotContains fails the test if any line contains substr. Use it to
// check that secret values never reach the logs.
func (b *LogBuffer) AssertNotContains(t *testing.T, substr string) {
	t.Helper()
	assert.NotContains(t, b.String(), substr, "log output should not contain %q", substr)
}
