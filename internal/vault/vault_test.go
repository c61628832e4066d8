package vault_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	dserrors "github.com/systmms/vault-loader/internal/errors"
	"github.com/systmms/vault-loader/internal/vault"
)

const testToken = "s.test-token"

func newTestClient(t *testing.T, handler http.HandlerFunc) *vault.APIClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := vault.NewClient(vault.Options{Address: server.URL, Token: testToken})
	require.NoError(t, err)
	return client
}

func TestReadSendsTokenAndReturnsKVData(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/secret/data/web3signer/0xabc/vkey", r.URL.Path)
		assert.Equal(t, testToken, r.Header.Get("X-Vault-Token"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"data":     map[string]interface{}{"raw_unencrypted_key": "0x01"},
				"metadata": map[string]interface{}{"version": 3},
			},
		})
	})

	secret, err := client.Read(context.Background(), vault.KeyPath("secret/data/web3signer", "0xabc"))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"raw_unencrypted_key": "0x01"}, secret.KVData())
}

func TestReadNotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"errors":[]}`)
	})

	_, err := client.Read(context.Background(), "secret/data/missing/vkey")
	assert.ErrorIs(t, err, dserrors.ErrSecretNotFound)
}

func TestReadServerErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Inc()
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"errors":["internal error"]}`)
	})

	_, err := client.Read(context.Background(), "secret/data/x/vkey")
	require.Error(t, err)
	assert.NotErrorIs(t, err, dserrors.ErrSecretNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWriteWrapsDataForKV2(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, []string{http.MethodPut, http.MethodPost}, r.Method)
		assert.Equal(t, "/v1/secret/data/web3signer/0xabc/vkey", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"password": "pw"}, body["data"])

		w.WriteHeader(http.StatusNoContent)
	})

	err := client.Write(context.Background(), "secret/data/web3signer/0xabc/vkey", map[string]interface{}{"password": "pw"})
	assert.NoError(t, err)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sys/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"initialized":true,"sealed":false,"standby":false,"version":"1.16.0"}`)
	})

	status, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Initialized)
	assert.False(t, status.Sealed)
	assert.Equal(t, "1.16.0", status.Version)
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts vault.Options
	}{
		{name: "missing address", opts: vault.Options{}},
		{name: "cert without key", opts: vault.Options{Address: "https://vault:8200", ClientCert: "/tmp/cert.pem"}},
		{name: "key without cert", opts: vault.Options{Address: "https://vault:8200", ClientKey: "/tmp/key.pem"}},
		{name: "unreadable CA", opts: vault.Options{Address: "https://vault:8200", CACert: "/nonexistent/ca.pem"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := vault.NewClient(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestKeyPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "secret/data/ws/0xabc/vkey", vault.KeyPath("secret/data/ws", "0xabc"))
	assert.Equal(t, "secret/data/ws/0xabc/vkey", vault.KeyPath("/secret/data/ws/", "0xabc"))
}

func TestKVDataWithoutInnerMap(t *testing.T) {
	t.Parallel()

	var nilSecret *vault.Secret
	assert.Nil(t, nilSecret.KVData())
	assert.Nil(t, (&vault.Secret{Data: map[string]interface{}{"password": "pw"}}).KVData())
}
