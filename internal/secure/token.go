package secure

import (
	"bytes"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
)

// ReadToken reads a bearer token from path into a SecureBuffer. Leading and
// trailing whitespace (typically the newline editors append) is dropped.
func ReadToken(path string) (*SecureBuffer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file %s: %w", path, err)
	}
	defer memguard.WipeBytes(raw)

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("token file %s: %w", path, ErrEmpty)
	}

	// NewEnclave wipes its input, so hand it a copy of the trimmed window
	// and let the deferred wipe clear the original.
	value := make([]byte, len(trimmed))
	copy(value, trimmed)

	return NewSecureBuffer(value)
}
