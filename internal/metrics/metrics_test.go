package metrics_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/vault-loader/internal/metrics"
)

func TestRecorderCounts(t *testing.T) {
	t.Parallel()

	r := metrics.New()
	r.RecordAttempt(metrics.StageFetch, fmt.Errorf("timeout"))
	r.RecordAttempt(metrics.StageFetch, fmt.Errorf("timeout"))
	r.RecordAttempt(metrics.StageFetch, nil)
	r.RecordKey(metrics.StageFetch, nil)
	r.RecordKey(metrics.StageWrite, fmt.Errorf("disk full"))
	r.SetLimiterPeak("requests", 7)

	series, err := testutil.GatherAndCount(r.Registry(), "vault_loader_attempts_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)

	series, err = testutil.GatherAndCount(r.Registry(), "vault_loader_keys_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)

	expected := `
# HELP vault_loader_attempts_total Vault requests made, by stage and result
# TYPE vault_loader_attempts_total counter
vault_loader_attempts_total{stage="fetch",status="failure"} 2
vault_loader_attempts_total{stage="fetch",status="success"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "vault_loader_attempts_total"))
}

func TestNilRecorderIsNoop(t *testing.T) {
	t.Parallel()

	var r *metrics.Recorder
	assert.NotPanics(t, func() {
		r.RecordAttempt(metrics.StageFetch, nil)
		r.RecordKey(metrics.StageWrite, nil)
		r.RecordFormat("vkey")
		r.ObserveStage(metrics.StageFetch, time.Second)
		r.SetLimiterPeak("files", 1)
	})
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile("/nonexistent/metrics.prom"))
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	r := metrics.New()
	r.RecordKey(metrics.StageWrite, nil)
	r.RecordFormat("pbkdf2_key")
	r.ObserveStage(metrics.StageWrite, 1500*time.Millisecond)

	path := filepath.Join(t.TempDir(), "vault_loader.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `vault_loader_keys_total{stage="write",status="success"} 1`)
	assert.Contains(t, text, `vault_loader_key_formats_total{field="pbkdf2_key"} 1`)
	assert.Contains(t, text, `vault_loader_stage_duration_seconds{stage="write"} 1.5`)
	assert.Contains(t, text, "vault_loader_last_run_timestamp_seconds")
}
