package secrets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/vault/api"
)

// Config sets up the Vault client. Zero values fall back to the standard
// VAULT_* environment variables via the api package defaults.
type Config struct {
	Address       string
	Token         string
	Mount         string // KV v2 mount path, default "secret"
	ClientTimeout time.Duration
	MaxRetries    int
}

// VaultStore keeps tenant connection secrets in a Vault KV v2 mount. A
// soft-deleted secret version stays recoverable until destroyed, which is
// what DeletedState/RecoverDeleted operate on.
type VaultStore struct {
	kv *api.KVv2
}

// NewVaultStore creates a store from explicit config plus the standard Vault
// environment variables.
func NewVaultStore(cfg Config) (*VaultStore, error) {
	apiCfg := api.DefaultConfig()
	if apiCfg.Error != nil {
		return nil, apiCfg.Error
	}
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	if cfg.ClientTimeout > 0 {
		apiCfg.Timeout = cfg.ClientTimeout
	}
	if cfg.MaxRetries > 0 {
		apiCfg.MaxRetries = cfg.MaxRetries
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}

	return &VaultStore{kv: client.KVv2(mount)}, nil
}

// Set writes the secret value under name, creating a new version.
func (s *VaultStore) Set(ctx context.Context, name, value string) error {
	if _, err := s.kv.Put(ctx, name, map[string]interface{}{"value": value}); err != nil {
		return fmt.Errorf("put secret %s: %w", name, err)
	}
	return nil
}

// DeletedState reports whether the current version of the secret is
// soft-deleted. A secret that never existed is simply not deleted; any other
// lookup failure is a real store failure and is returned as such.
func (s *VaultStore) DeletedState(ctx context.Context, name string) (bool, error) {
	meta, err := s.kv.GetMetadata(ctx, name)
	if err != nil {
		if errors.Is(err, api.ErrSecretNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get secret metadata %s: %w", name, err)
	}

	version, ok := meta.Versions[strconv.Itoa(meta.CurrentVersion)]
	if !ok {
		return false, nil
	}
	return !version.DeletionTime.IsZero() && !version.Destroyed, nil
}

// RecoverDeleted undeletes the current version of the secret so subsequent
// writes target a live secret instead of a purge-pending name.
func (s *VaultStore) RecoverDeleted(ctx context.Context, name string) error {
	meta, err := s.kv.GetMetadata(ctx, name)
	if err != nil {
		return fmt.Errorf("get secret metadata %s: %w", name, err)
	}
	if err := s.kv.Undelete(ctx, name, []int{meta.CurrentVersion}); err != nil {
		return fmt.Errorf("undelete secret %s: %w", name, err)
	}
	return nil
}
