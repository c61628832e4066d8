package fakes

import (
	"context"
	"fmt"
	"sync"
	"time"

	dserrors "github.com/systmms/vault-loader/internal/errors"
	"github.com/systmms/vault-loader/internal/vault"
)

// FakeVault is an in-memory vault.Client.
//
// Secrets are stored by logical path and returned wrapped the way a KV v2
// mount returns them. Reads can be made to fail a fixed number of times
// before succeeding, which is how retry behaviour is exercised.
//
// Example usage:
//
//	fake := fakes.NewFakeVault().
//	    WithSecret(vault.KeyPath("secret/data/ws", "pk1"), map[string]interface{}{"raw_unencrypted_key": "0x01"}).
//	    WithFailures(vault.KeyPath("secret/data/ws", "pk2"), 2, errors.New("connection reset"))
type FakeVault struct {
	mu sync.Mutex

	secrets  map[string]map[string]interface{}
	failures map[string]int
	failErr  map[string]error
	delay    time.Duration

	health    *vault.HealthStatus
	healthErr error

	reads    map[string]int
	writes   map[string]int
	inFlight int
	peak     int
}

var _ vault.Client = (*FakeVault)(nil)

// NewFakeVault creates an empty, healthy FakeVault.
func NewFakeVault() *FakeVault {
	return &FakeVault{
		secrets:  make(map[string]map[string]interface{}),
		failures: make(map[string]int),
		failErr:  make(map[string]error),
		reads:    make(map[string]int),
		writes:   make(map[string]int),
		health:   &vault.HealthStatus{Initialized: true, Version: "1.16.0"},
	}
}

// WithSecret stores data at path.
func (f *FakeVault) WithSecret(path string, data map[string]interface{}) *FakeVault {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.secrets[path] = data
	return f
}

// WithFailures makes the next n reads or writes of path fail with err.
// A negative n fails forever.
func (f *FakeVault) WithFailures(path string, n int, err error) *FakeVault {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures[path] = n
	f.failErr[path] = err
	return f
}

// WithDelay adds latency to every read and write.
func (f *FakeVault) WithDelay(d time.Duration) *FakeVault {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.delay = d
	return f
}

// WithHealth sets what Health returns.
func (f *FakeVault) WithHealth(status *vault.HealthStatus, err error) *FakeVault {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.health = status
	f.healthErr = err
	return f
}

// Read returns the secret stored at path.
func (f *FakeVault) Read(ctx context.Context, path string) (*vault.Secret, error) {
	if err := f.enter(ctx, path, f.reads); err != nil {
		return nil, err
	}
	defer f.leave()

	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.secrets[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, dserrors.ErrSecretNotFound)
	}

	copied := make(map[string]interface{}, len(data))
	for k, v := range data {
		copied[k] = v
	}
	return &vault.Secret{Data: map[string]interface{}{"data": copied}}, nil
}

// Write stores data at path.
func (f *FakeVault) Write(ctx context.Context, path string, data map[string]interface{}) error {
	if err := f.enter(ctx, path, f.writes); err != nil {
		return err
	}
	defer f.leave()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.secrets[path] = data
	return nil
}

// Health returns the configured status.
func (f *FakeVault) Health(ctx context.Context) (*vault.HealthStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.health, f.healthErr
}

// ReadCount returns how many reads of path were attempted.
func (f *FakeVault) ReadCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.reads[path]
}

// WriteCount returns how many writes of path were attempted.
func (f *FakeVault) WriteCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.writes[path]
}

// Secret returns what is stored at path.
func (f *FakeVault) Secret(path string) (map[string]interface{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.secrets[path]
	return data, ok
}

// Peak returns the most requests that were in flight at once.
func (f *FakeVault) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.peak
}

// InFlight returns the requests currently being served.
func (f *FakeVault) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.inFlight
}

// enter counts the call, waits out the delay and consumes a configured
// failure. On success the caller must call leave.
func (f *FakeVault) enter(ctx context.Context, path string, counter map[string]int) error {
	f.mu.Lock()
	counter[path]++
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			f.leave()
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if n := f.failures[path]; n != 0 {
		if n > 0 {
			f.failures[path] = n - 1
		}
		f.inFlight--
		return f.failErr[path]
	}
	return nil
}

func (f *FakeVault) leave() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inFlight--
}
