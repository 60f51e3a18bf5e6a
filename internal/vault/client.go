package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"desktop-license-server/config"

	"github.com/hashicorp/vault/api"
)

// ErrKeyNotFound is returned when no signing key is stored at the configured path
var ErrKeyNotFound = errors.New("signing key not found")

// Client wraps the HashiCorp Vault client for signing-key custody
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cache  []byte // PEM of the signing key
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if cfg.KeyField == "" {
		cfg.KeyField = "private_key"
	}

	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// StoreSigningKey writes the PEM-encoded signing key to Vault
func (c *Client) StoreSigningKey(ctx context.Context, pemBytes []byte) error {
	if !c.config.Enabled {
		// Store in local cache only (for development/testing)
		c.mu.Lock()
		c.cache = append([]byte(nil), pemBytes...)
		c.mu.Unlock()
		return nil
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			c.config.KeyField: string(pemBytes),
		},
	}

	_, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(), secretData)
	if err != nil {
		return fmt.Errorf("failed to store signing key in vault: %w", err)
	}

	c.mu.Lock()
	c.cache = append([]byte(nil), pemBytes...)
	c.mu.Unlock()

	return nil
}

// ReadSigningKey returns the PEM-encoded signing key
func (c *Client) ReadSigningKey(ctx context.Context) ([]byte, error) {
	// Check cache first
	c.mu.RLock()
	if c.cache != nil {
		key := append([]byte(nil), c.cache...)
		c.mu.RUnlock()
		return key, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("%w and vault is disabled", ErrKeyNotFound)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, ErrKeyNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	pemStr := getString(data, c.config.KeyField)
	if pemStr == "" {
		return nil, fmt.Errorf("%w: field %q is empty", ErrKeyNotFound, c.config.KeyField)
	}
	key := []byte(pemStr)

	c.mu.Lock()
	c.cache = append([]byte(nil), key...)
	c.mu.Unlock()

	return key, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// secretPath returns the KV v2 data path of the signing key
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
