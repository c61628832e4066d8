// Package pipeline runs the download and upload flows end to end.
package pipeline

import (
	"context"
	"time"

	"github.com/systmms/vault-loader/internal/fetch"
	"github.com/systmms/vault-loader/internal/keystore"
	"github.com/systmms/vault-loader/internal/logging"
	"github.com/systmms/vault-loader/internal/metrics"
	"github.com/systmms/vault-loader/internal/writer"
)

// Download fetches keys from Vault and writes them as web3signer files.
type Download struct {
	Fetcher *fetch.Fetcher
	Writer  *writer.Writer
	Logger  *logging.Logger
	Metrics *metrics.Recorder
}

// Run fetches every pubkey, then writes every key that was fetched. Per-key
// failures are collected in the Summary; the returned error is only set
// when the write stage could not start.
func (d *Download) Run(ctx context.Context, pubkeys []string) (*Summary, error) {
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	start := time.Now()
	summary := &Summary{Requested: len(pubkeys)}

	logger.Info("Fetching %d key(s) from Vault", len(pubkeys))
	fetchStart := time.Now()
	fetched := d.Fetcher.FetchAll(ctx, pubkeys)

	fetchStats := StageStats{Name: metrics.StageFetch}
	keys := make([]keystore.Key, 0, len(fetched))
	for _, out := range fetched {
		if out.OK() {
			fetchStats.Succeeded++
			keys = append(keys, out.Key)
			continue
		}
		fetchStats.Failed++
		summary.fail(out.Err)
	}
	fetchStats.Elapsed = time.Since(fetchStart)
	summary.Stages = append(summary.Stages, fetchStats)
	d.Metrics.ObserveStage(metrics.StageFetch, fetchStats.Elapsed)

	logger.Info("Writing %d key(s)", len(keys))
	writeStart := time.Now()
	written, err := d.Writer.WriteAll(ctx, keys)
	if err != nil {
		summary.Elapsed = time.Since(start)
		return summary, err
	}

	writeStats := StageStats{Name: metrics.StageWrite}
	for _, out := range written {
		if out.OK() {
			writeStats.Succeeded++
			continue
		}
		writeStats.Failed++
		summary.fail(out.Err)
	}
	writeStats.Elapsed = time.Since(writeStart)
	summary.Stages = append(summary.Stages, writeStats)
	d.Metrics.ObserveStage(metrics.StageWrite, writeStats.Elapsed)

	summary.Elapsed = time.Since(start)
	return summary, nil
}
