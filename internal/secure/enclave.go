package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrEmpty is returned when asked to protect an empty value.
var ErrEmpty = errors.New("secure: empty value")

// ErrDestroyed is returned by Open after Destroy.
var ErrDestroyed = errors.New("secure: buffer destroyed")

// SecureBuffer provides memory-safe storage for sensitive data.
// It wraps memguard.Enclave to encrypt secrets at rest in memory
// and protect them from swapping via mlock.
type SecureBuffer struct {
	enclave   *memguard.Enclave
	mu        sync.RWMutex
	destroyed bool
}

// NewSecureBuffer creates a protected buffer from secret bytes.
// memguard wipes data once it has been copied into the enclave, so the
// caller's slice is zeroed on return.
func NewSecureBuffer(data []byte) (*SecureBuffer, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	return &SecureBuffer{enclave: memguard.NewEnclave(data)}, nil
}

// Open decrypts the protected data into a locked buffer.
// The caller MUST call Destroy() on the returned LockedBuffer when done.
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return nil, ErrDestroyed
	}

	return s.enclave.Open()
}

// Destroy makes the buffer unusable. It is idempotent.
// The encrypted enclave is left for the garbage collector; main calls
// memguard.Purge on exit for a full wipe.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}

	s.enclave = nil
	s.destroyed = true
}
