package custody

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ruteri/safe-signing-gate/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault serves the KV v2 read/write endpoints the store uses.
func fakeVault(t *testing.T) (*httptest.Server, map[string]map[string]any) {
	t.Helper()
	secrets := make(map[string]map[string]any)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut, http.MethodPost:
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			data, _ := payload["data"].(map[string]any)
			secrets[r.URL.Path] = data
			w.Write([]byte(`{}`))
		case http.MethodGet:
			data, ok := secrets[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"errors":[]}`))
				return
			}
			resp := map[string]any{"data": map[string]any{"data": data}}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(server.Close)
	return server, secrets
}

func TestVaultKeyConfigStore_PersistAndLoad(t *testing.T) {
	server, secrets := fakeVault(t)

	store, err := NewVaultKeyConfigStore(server.URL, "test-token", "secret", "custody-keys", newTestLogger())
	require.NoError(t, err)

	ctx := context.Background()
	cfg := interfaces.KeyConfig{
		Name:      "release",
		PublicKey: "0x04abcd",
		SigName:   "release-sig",
		KeyID:     "key-7",
	}

	require.NoError(t, store.PersistKeyConfig(ctx, cfg))

	// Written under the KV v2 data path for the mount.
	stored, ok := secrets["/v1/secret/data/custody-keys/release"]
	require.True(t, ok)
	assert.Equal(t, "0x04abcd", stored["public_key"])

	loaded, err := store.LoadKeyConfig(ctx, "release")
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestVaultKeyConfigStore_PersistRequiresName(t *testing.T) {
	server, _ := fakeVault(t)

	store, err := NewVaultKeyConfigStore(server.URL, "test-token", "secret", "custody-keys", newTestLogger())
	require.NoError(t, err)

	err = store.PersistKeyConfig(context.Background(), interfaces.KeyConfig{PublicKey: "0x04"})
	assert.Error(t, err)
}

func TestVaultKeyConfigStore_LoadMissing(t *testing.T) {
	server, _ := fakeVault(t)

	store, err := NewVaultKeyConfigStore(server.URL, "test-token", "secret", "custody-keys", newTestLogger())
	require.NoError(t, err)

	_, err = store.LoadKeyConfig(context.Background(), "unknown")
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}
