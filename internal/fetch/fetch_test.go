package fetch_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	dserrors "github.com/systmms/vault-loader/internal/errors"
	"github.com/systmms/vault-loader/internal/fetch"
	"github.com/systmms/vault-loader/internal/keystore"
	"github.com/systmms/vault-loader/internal/limiter"
	"github.com/systmms/vault-loader/internal/metrics"
	"github.com/systmms/vault-loader/internal/vault"
	"github.com/systmms/vault-loader/tests/fakes"
	"github.com/systmms/vault-loader/tests/testutil"
)

const kvPath = "secret/data/web3signer"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastRetry(attempts int) fetch.RetryPolicy {
	return fetch.RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func newLimiter(t *testing.T, n int) *limiter.Limiter {
	t.Helper()
	l, err := limiter.New(n)
	require.NoError(t, err)
	return l
}

func keystoreField() string {
	return base64.StdEncoding.EncodeToString([]byte(`{"version":4}`))
}

func TestFetchRawKey(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeVault().
		WithSecret(vault.KeyPath(kvPath, "pk1"), map[string]interface{}{"raw_unencrypted_key": "0xaa"})
	f := fetch.New(fake, newLimiter(t, 1), fetch.WithKVPath(kvPath), fetch.WithRetryPolicy(fastRetry(3)))

	out := f.Fetch(context.Background(), "pk1")
	require.NoError(t, out.Err)
	assert.True(t, out.OK())
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, keystore.RawKey{Pubkey: "pk1", PrivateKey: "0xaa"}, out.Key)
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	path := vault.KeyPath(kvPath, "pk1")
	fake := fakes.NewFakeVault().
		WithSecret(path, map[string]interface{}{"raw_unencrypted_key": "0xaa"}).
		WithFailures(path, 2, fmt.Errorf("connection reset by peer"))
	requests := newLimiter(t, 1)
	rec := metrics.New()

	f := fetch.New(fake, requests,
		fetch.WithKVPath(kvPath),
		fetch.WithRetryPolicy(fastRetry(5)),
		fetch.WithMetrics(rec),
	)

	out := f.Fetch(context.Background(), "pk1")
	require.NoError(t, out.Err)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, fake.ReadCount(path))
	assert.IsType(t, keystore.RawKey{}, out.Key)

	// The permit is given back between attempts.
	assert.Equal(t, int64(1), requests.Peak())
	assert.Equal(t, int64(0), requests.InFlight())
}

// The server drops the first connection, answers the second request with a
// body that is not JSON and only then returns the secret.
func TestFetchRecoversFromDroppedConnectionAndBadBody(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch hits.Inc() {
		case 1:
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
		case 2:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{not json`))
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"data":{"raw_unencrypted_key":"0xaa"},"metadata":{"version":1}}}`))
		}
	}))
	defer srv.Close()

	client, err := vault.NewClient(vault.Options{Address: srv.URL, Token: "s.test", Timeout: 5 * time.Second})
	require.NoError(t, err)

	requests := newLimiter(t, 1)
	f := fetch.New(client, requests, fetch.WithKVPath(kvPath), fetch.WithRetryPolicy(fastRetry(5)))

	out := f.Fetch(context.Background(), "pk1")
	srv.CloseClientConnections()

	require.NoError(t, out.Err)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, keystore.RawKey{Pubkey: "pk1", PrivateKey: "0xaa"}, out.Key)
	assert.Equal(t, int64(1), requests.Peak())
	assert.Equal(t, int64(0), requests.InFlight())
}

func TestFetchLogsRetriesWithoutSecrets(t *testing.T) {
	t.Parallel()

	path := vault.KeyPath(kvPath, "pk2")
	fake := fakes.NewFakeVault().
		WithSecret(path, map[string]interface{}{"password": "s3cret-pw", "scrypt_key": keystoreField(), "realm": "holesky"}).
		WithFailures(path, 1, fmt.Errorf("connection reset by peer"))
	logger, logs := testutil.NewTestLogger(t)

	f := fetch.New(fake, newLimiter(t, 1),
		fetch.WithKVPath(kvPath),
		fetch.WithRetryPolicy(fastRetry(3)),
		fetch.WithLogger(logger),
	)

	out := f.Fetch(context.Background(), "pk2")
	require.NoError(t, out.Err)

	logs.AssertContains(t, "Attempt 1 failed")
	logs.AssertContains(t, "pubkey=pk2")
	logs.AssertContains(t, "holesky")
	logs.AssertNotContains(t, "s3cret-pw")
}

func TestFetchGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	path := vault.KeyPath(kvPath, "pk4")
	fake := fakes.NewFakeVault().WithSecret(path, map[string]interface{}{"password": "pw"})
	f := fetch.New(fake, newLimiter(t, 2), fetch.WithKVPath(kvPath), fetch.WithRetryPolicy(fastRetry(3)))

	out := f.Fetch(context.Background(), "pk4")
	require.Error(t, out.Err)
	assert.False(t, out.OK())
	assert.Nil(t, out.Key)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, fake.ReadCount(path))
	assert.ErrorIs(t, out.Err, dserrors.ErrInvalidSecret)
	assert.Contains(t, out.Err.Error(), "pk4")
}

func TestFetchMissingSecret(t *testing.T) {
	t.Parallel()

	f := fetch.New(fakes.NewFakeVault(), newLimiter(t, 1), fetch.WithKVPath(kvPath), fetch.WithRetryPolicy(fastRetry(2)))

	out := f.Fetch(context.Background(), "nope")
	assert.ErrorIs(t, out.Err, dserrors.ErrSecretNotFound)
	assert.Equal(t, 2, out.Attempts)
}

func TestFetchUnlimitedAttemptsStopOnCancel(t *testing.T) {
	t.Parallel()

	path := vault.KeyPath(kvPath, "pk1")
	fake := fakes.NewFakeVault().WithFailures(path, -1, fmt.Errorf("503 service unavailable"))
	f := fetch.New(fake, newLimiter(t, 1), fetch.WithKVPath(kvPath), fetch.WithRetryPolicy(fastRetry(0)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := f.Fetch(ctx, "pk1")
	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Greater(t, out.Attempts, 1)
}

func TestFetchAllKeepsInputOrderAndBound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping concurrency test in short mode")
	}
	t.Parallel()

	const (
		keys  = 40
		bound = 4
	)

	fake := fakes.NewFakeVault().WithDelay(2 * time.Millisecond)
	ids := make([]string, 0, keys)
	for i := 0; i < keys; i++ {
		id := fmt.Sprintf("pk%d", i)
		ids = append(ids, id)
		if i%2 == 0 {
			fake.WithSecret(vault.KeyPath(kvPath, id), map[string]interface{}{"raw_unencrypted_key": "0xaa"})
		} else {
			fake.WithSecret(vault.KeyPath(kvPath, id), map[string]interface{}{"password": "pw", "vkey": keystoreField()})
		}
	}

	requests := newLimiter(t, bound)
	f := fetch.New(fake, requests,
		fetch.WithKVPath(kvPath),
		fetch.WithRetryPolicy(fastRetry(1)),
		fetch.WithRateLimit(rate.NewLimiter(rate.Inf, 1)),
	)

	outcomes := f.FetchAll(context.Background(), ids)
	require.Len(t, outcomes, keys)
	for i, out := range outcomes {
		assert.Equal(t, ids[i], out.Pubkey)
		assert.NoError(t, out.Err)
		assert.Equal(t, ids[i], out.Key.Identifier())
	}

	assert.LessOrEqual(t, fake.Peak(), bound)
	assert.LessOrEqual(t, requests.Peak(), int64(bound))
	assert.Equal(t, int64(0), requests.InFlight())
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeVault().
		WithSecret(vault.KeyPath(kvPath, "good"), map[string]interface{}{"raw_unencrypted_key": "0xaa"}).
		WithSecret(vault.KeyPath(kvPath, "bad"), map[string]interface{}{"password": "pw"})
	f := fetch.New(fake, newLimiter(t, 2), fetch.WithKVPath(kvPath), fetch.WithRetryPolicy(fastRetry(2)))

	outcomes := f.FetchAll(context.Background(), []string{"bad", "good"})
	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err)
}

func TestFetchAllEmpty(t *testing.T) {
	t.Parallel()

	f := fetch.New(fakes.NewFakeVault(), newLimiter(t, 1))
	assert.Empty(t, f.FetchAll(context.Background(), nil))
}

func TestDefaultRetryPolicy(t *testing.T) {
	t.Parallel()

	p := fetch.DefaultRetryPolicy()
	assert.Equal(t, 10, p.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, p.InitialInterval)
	assert.Equal(t, 5*time.Second, p.MaxInterval)
}
