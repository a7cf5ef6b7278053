package custody

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/ruteri/safe-signing-gate/interfaces"
)

// VaultKeyConfigStore persists custody-key configuration in HashiCorp Vault
// using the KV v2 API. Key configuration names which public key the network
// signs with and under what signature name; it never contains key material.
type VaultKeyConfigStore struct {
	client    *vault.Client
	mountPath string
	dataPath  string
	log       *slog.Logger
}

// NewVaultKeyConfigStore creates a Vault-backed key configuration store.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - token: Vault token for authentication
//   - mountPath: Vault KV v2 mount path (e.g. "secret")
//   - dataPath: path within the mount (e.g. "custody-keys")
//   - log: structured logger for operational insights
func NewVaultKeyConfigStore(address, token, mountPath, dataPath string, log *slog.Logger) (*VaultKeyConfigStore, error) {
	config := vault.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := vault.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	mountPath = strings.TrimSuffix(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultKeyConfigStore{
		client:    client,
		mountPath: mountPath,
		dataPath:  dataPath,
		log:       log,
	}, nil
}

func (s *VaultKeyConfigStore) secretPath(name string) string {
	return fmt.Sprintf("%s/data/%s/%s", s.mountPath, s.dataPath, name)
}

// PersistKeyConfig writes the key configuration under its name.
func (s *VaultKeyConfigStore) PersistKeyConfig(ctx context.Context, cfg interfaces.KeyConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("key config name is required")
	}

	payload := map[string]any{
		"data": map[string]any{
			"public_key": cfg.PublicKey,
			"sig_name":   cfg.SigName,
			"key_id":     cfg.KeyID,
		},
	}

	if _, err := s.client.Logical().WriteWithContext(ctx, s.secretPath(cfg.Name), payload); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	s.log.Info("Persisted custody key configuration",
		slog.String("name", cfg.Name),
		slog.String("keyId", cfg.KeyID))
	return nil
}

// LoadKeyConfig retrieves a key configuration by name.
func (s *VaultKeyConfigStore) LoadKeyConfig(ctx context.Context, name string) (interfaces.KeyConfig, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.secretPath(name))
	if err != nil {
		return interfaces.KeyConfig{}, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return interfaces.KeyConfig{}, interfaces.ErrContentNotFound
	}

	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return interfaces.KeyConfig{}, fmt.Errorf("unexpected Vault response format for %s", name)
	}

	cfg := interfaces.KeyConfig{Name: name}
	if v, ok := data["public_key"].(string); ok {
		cfg.PublicKey = v
	}
	if v, ok := data["sig_name"].(string); ok {
		cfg.SigName = v
	}
	if v, ok := data["key_id"].(string); ok {
		cfg.KeyID = v
	}

	if cfg.PublicKey == "" || cfg.SigName == "" {
		return interfaces.KeyConfig{}, fmt.Errorf("incomplete key configuration for %s", name)
	}

	return cfg, nil
}
