// Package fetch reads key secrets from Vault with bounded concurrency.
package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/systmms/vault-loader/internal/keystore"
	"github.com/systmms/vault-loader/internal/limiter"
	"github.com/systmms/vault-loader/internal/logging"
	"github.com/systmms/vault-loader/internal/metrics"
	"github.com/systmms/vault-loader/internal/vault"
)

// Outcome is the result of fetching one key.
type Outcome struct {
	Pubkey   string
	Key      keystore.Key
	Attempts int
	Err      error
}

// OK reports whether the key was fetched and decoded.
func (o Outcome) OK() bool { return o.Err == nil }

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logging.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithMetrics records attempts and outcomes on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(f *Fetcher) { f.metrics = r }
}

// WithRateLimit caps the request rate across all keys.
func WithRateLimit(l *rate.Limiter) Option {
	return func(f *Fetcher) { f.rate = l }
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(f *Fetcher) { f.retry = p }
}

// WithKVPath sets the Vault path keys live under.
func WithKVPath(path string) Option {
	return func(f *Fetcher) { f.kvPath = path }
}

// Fetcher runs one goroutine per key. Every Vault request holds one permit
// of the request limiter for its duration only.
type Fetcher struct {
	client   vault.Client
	requests *limiter.Limiter
	logger   *logging.Logger
	metrics  *metrics.Recorder
	rate     *rate.Limiter
	retry    RetryPolicy
	kvPath   string
}

// New creates a Fetcher reading through client under the requests limiter.
func New(client vault.Client, requests *limiter.Limiter, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   client,
		requests: requests,
		retry:    DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logging.Discard()
	}
	return f
}

// FetchAll fetches every key concurrently and waits for all of them. The
// outcomes are in the same order as pubkeys.
func (f *Fetcher) FetchAll(ctx context.Context, pubkeys []string) []Outcome {
	outcomes := make([]Outcome, len(pubkeys))

	var wg sync.WaitGroup
	for i, pubkey := range pubkeys {
		wg.Add(1)
		go func(i int, pubkey string) {
			defer wg.Done()
			outcomes[i] = f.Fetch(ctx, pubkey)
		}(i, pubkey)
	}
	wg.Wait()

	return outcomes
}

// Fetch reads and decodes one key, retrying failed attempts according to
// the retry policy. Transport errors, missing secrets and undecodable
// secrets are all retried.
func (f *Fetcher) Fetch(ctx context.Context, pubkey string) Outcome {
	log := f.logger.WithField("pubkey", pubkey)
	out := Outcome{Pubkey: pubkey}

	op := func() error {
		out.Attempts++
		key, err := f.attempt(ctx, pubkey)
		if err != nil {
			return err
		}
		out.Key = key
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.Warn("Attempt %d failed, retrying in %s: %v", out.Attempts, next.Round(time.Millisecond), err)
	}

	if err := backoff.RetryNotify(op, f.retry.BackOff(ctx), notify); err != nil {
		out.Key = nil
		out.Err = fmt.Errorf("fetch %s: giving up after %d attempt(s): %w", pubkey, out.Attempts, err)
		f.metrics.RecordKey(metrics.StageFetch, out.Err)
		log.Error("Failed to fetch key: %v", err)
		return out
	}

	f.metrics.RecordKey(metrics.StageFetch, nil)
	f.metrics.RecordFormat(sourceField(out.Key))
	log.Debug("Fetched key from %s after %d attempt(s) realm=%q", sourceField(out.Key), out.Attempts, realm(out.Key))
	return out
}

func (f *Fetcher) attempt(ctx context.Context, pubkey string) (keystore.Key, error) {
	if f.rate != nil {
		if err := f.rate.Wait(ctx); err != nil {
			return nil, err
		}
	}

	held, err := f.requests.Acquire(ctx, 1)
	if err != nil {
		return nil, err
	}
	secret, err := f.client.Read(ctx, vault.KeyPath(f.kvPath, pubkey))
	f.requests.Release(held)

	f.metrics.RecordAttempt(metrics.StageFetch, err)
	if err != nil {
		return nil, err
	}

	return keystore.Decode(pubkey, secret.KVData())
}

func sourceField(k keystore.Key) string {
	switch key := k.(type) {
	case keystore.RawKey:
		return keystore.FieldRawUnencryptedKey
	case keystore.EncryptedKey:
		return key.Source
	}
	return ""
}

func realm(k keystore.Key) string {
	switch key := k.(type) {
	case keystore.RawKey:
		return key.Realm
	case keystore.EncryptedKey:
		return key.Realm
	}
	return ""
}
