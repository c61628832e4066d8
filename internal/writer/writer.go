// Package writer materialises decoded keys as web3signer key files.
package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	dserrors "github.com/systmms/vault-loader/internal/errors"
	"github.com/systmms/vault-loader/internal/keystore"
	"github.com/systmms/vault-loader/internal/limiter"
	"github.com/systmms/vault-loader/internal/logging"
	"github.com/systmms/vault-loader/internal/metrics"
)

// Outcome is the result of writing one key's files.
type Outcome struct {
	Pubkey string
	// Written lists the files created before any failure, in write order.
	Written []string
	Err     error
}

// OK reports whether every file was written.
func (o Outcome) OK() bool { return o.Err == nil }

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logging.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

// WithMetrics records outcomes on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(w *Writer) { w.metrics = r }
}

// Writer writes each key's files under dir. A key holds one permit of the
// file limiter per file it writes.
type Writer struct {
	dir     string
	files   *limiter.Limiter
	logger  *logging.Logger
	metrics *metrics.Recorder
}

// New creates a Writer for dir.
func New(dir string, files *limiter.Limiter, opts ...Option) *Writer {
	w := &Writer{dir: dir, files: files}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logging.Discard()
	}
	return w
}

// WriteAll writes every key concurrently and waits for all of them. The
// output directory must already exist; if it does not, nothing is written
// and an error is returned. Otherwise the outcomes are in the same order as
// keys.
func (w *Writer) WriteAll(ctx context.Context, keys []keystore.Key) ([]Outcome, error) {
	if err := w.CheckDir(); err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(keys))

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key keystore.Key) {
			defer wg.Done()
			outcomes[i] = w.Write(ctx, key)
		}(i, key)
	}
	wg.Wait()

	return outcomes, nil
}

// Write resolves key and writes its files in order. Files already written
// stay in place when a later one fails.
func (w *Writer) Write(ctx context.Context, key keystore.Key) Outcome {
	var out Outcome
	if key != nil {
		out.Pubkey = key.Identifier()
	}
	log := w.logger.WithField("pubkey", out.Pubkey)

	out.Written, out.Err = w.write(ctx, key)
	w.metrics.RecordKey(metrics.StageWrite, out.Err)
	if out.Err != nil {
		log.Error("Failed to write key files: %v", out.Err)
		return out
	}

	log.Debug("Wrote %d file(s)", len(out.Written))
	return out
}

func (w *Writer) write(ctx context.Context, key keystore.Key) ([]string, error) {
	artifact, err := keystore.Resolve(key)
	if err != nil {
		return nil, err
	}

	held, err := w.files.Acquire(ctx, int64(len(artifact.Files)))
	if err != nil {
		return nil, err
	}
	defer w.files.Release(held)

	written := make([]string, 0, len(artifact.Files))
	for _, f := range artifact.Files {
		path := filepath.Join(w.dir, f.Name)
		if err := writeFile(path, f.Content, f.Mode); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// CheckDir reports whether the output directory exists and is a directory.
// It never creates it.
func (w *Writer) CheckDir() error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return dserrors.UserError{
			Message:    fmt.Sprintf("Output directory %s is not accessible", w.dir),
			Details:    err.Error(),
			Suggestion: "Create the directory or fix web3signer_key_store_path",
			Err:        err,
		}
	}
	if !info.IsDir() {
		return dserrors.UserError{
			Message:    fmt.Sprintf("Output path %s is not a directory", w.dir),
			Suggestion: "Point web3signer_key_store_path at a directory",
		}
	}
	return nil
}

// writeFile truncates or creates path and makes sure its mode is mode even
// when the file already existed with looser permissions.
func writeFile(path string, content []byte, mode os.FileMode) error {
	if err := os.WriteFile(path, content, mode); err != nil {
		return err
	}
	return os.Chmod(path, mode)
}
