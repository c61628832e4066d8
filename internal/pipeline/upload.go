package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/systmms/vault-loader/internal/fetch"
	"github.com/systmms/vault-loader/internal/keystore"
	"github.com/systmms/vault-loader/internal/limiter"
	"github.com/systmms/vault-loader/internal/logging"
	"github.com/systmms/vault-loader/internal/metrics"
	"github.com/systmms/vault-loader/internal/pubkeys"
	"github.com/systmms/vault-loader/internal/vault"
)

// Upload stores local key secrets in Vault. Each entry is checked with the
// same rules the download side decodes with before anything is sent.
type Upload struct {
	Client   vault.Client
	Requests *limiter.Limiter
	KVPath   string
	Retry    fetch.RetryPolicy
	Rate     *rate.Limiter
	Logger   *logging.Logger
	Metrics  *metrics.Recorder
}

// Run uploads every entry concurrently.
func (u *Upload) Run(ctx context.Context, entries []pubkeys.Entry) *Summary {
	logger := u.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	start := time.Now()
	summary := &Summary{Requested: len(entries)}
	errs := make([]error, len(entries))

	logger.Info("Uploading %d key(s) to Vault", len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry pubkeys.Entry) {
			defer wg.Done()
			errs[i] = u.upload(ctx, logger.WithField("pubkey", entry.Pubkey), entry)
		}(i, entry)
	}
	wg.Wait()

	stats := StageStats{Name: metrics.StageUpload}
	for _, err := range errs {
		if err == nil {
			stats.Succeeded++
			continue
		}
		stats.Failed++
		summary.fail(err)
	}
	stats.Elapsed = time.Since(start)
	summary.Stages = append(summary.Stages, stats)
	summary.Elapsed = stats.Elapsed
	u.Metrics.ObserveStage(metrics.StageUpload, stats.Elapsed)

	return summary
}

func (u *Upload) upload(ctx context.Context, log *logging.Logger, entry pubkeys.Entry) error {
	if _, err := keystore.Decode(entry.Pubkey, entry.Fields); err != nil {
		u.Metrics.RecordKey(metrics.StageUpload, err)
		log.Error("Refusing to upload: %v", err)
		return err
	}

	path := vault.KeyPath(u.KVPath, entry.Pubkey)
	attempts := 0
	op := func() error {
		attempts++
		if u.Rate != nil {
			if err := u.Rate.Wait(ctx); err != nil {
				return err
			}
		}
		err := u.Requests.Do(ctx, 1, func() error {
			return u.Client.Write(ctx, path, entry.Fields)
		})
		u.Metrics.RecordAttempt(metrics.StageUpload, err)
		return err
	}
	// Store errors can echo the request body back.
	secrets := secretValues(entry.Fields)
	notify := func(err error, next time.Duration) {
		log.Warn("Attempt %d failed, retrying in %s: %s", attempts, next.Round(time.Millisecond), logging.Redact(err.Error(), secrets))
	}

	err := backoff.RetryNotify(op, u.Retry.BackOff(ctx), notify)
	u.Metrics.RecordKey(metrics.StageUpload, err)
	if err != nil {
		log.Error("Failed to upload key: %s", logging.Redact(err.Error(), secrets))
		return fmt.Errorf("upload %s: giving up after %d attempt(s): %w", entry.Pubkey, attempts, err)
	}

	log.Debug("Uploaded key to %s", path)
	return nil
}

func secretValues(fields map[string]interface{}) []string {
	values := make([]string, 0, len(fields))
	for name, v := range fields {
		if name == keystore.FieldRealm {
			continue
		}
		if s, ok := v.(string); ok {
			values = append(values, s)
		}
	}
	return values
}
