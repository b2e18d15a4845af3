// Package secrets resolves the credentials the live driver needs at
// startup — the broker gateway's API key/secret and the persistence
// adapter's bearer token — from HashiCorp Vault. Grounded on the
// teacher's internal/keymanager/vault_client.go (authentication modes,
// KV v1/v2 read handling) and pkg/vault/client.go (the simpler
// token-auth connect-and-health-check shape), generalized from
// exchange-account key storage to the kernel's own two credential
// shapes.
package secrets

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"
	"github.com/sirupsen/logrus"

	"github.com/midassystems/midastrader-sub000/internal/kernelerr"
)

// Config mirrors the teacher's VaultConfig: token auth is tried first,
// falling back to AppRole when RoleID/SecretID are set instead.
type Config struct {
	Address  string
	Token    string
	RoleID   string
	SecretID string
	// MountPath is the KV v2 mount holding kernel credentials, e.g. "secret".
	MountPath string
}

// Resolver wraps an authenticated Vault client.
type Resolver struct {
	client    *vault.Client
	mountPath string
	logger    *logrus.Entry
}

// New connects to Vault, authenticates per cfg, and verifies the server
// is unsealed before returning.
func New(cfg Config, logger *logrus.Entry) (*Resolver, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("component", "secrets")

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, &kernelerr.ExternalFailure{Operation: "vault client init", Cause: err}
	}

	r := &Resolver{client: client, mountPath: cfg.MountPath, logger: logger}
	if err := r.authenticate(cfg); err != nil {
		return nil, err
	}

	health, err := client.Sys().Health()
	if err != nil {
		return nil, &kernelerr.ExternalFailure{Operation: "vault health check", Cause: err}
	}
	if health.Sealed {
		return nil, &kernelerr.ExternalFailure{Operation: "vault health check", Cause: fmt.Errorf("vault is sealed")}
	}

	logger.WithField("address", cfg.Address).Info("connected to vault")
	return r, nil
}

// authenticate implements the teacher's two auth modes: token first,
// AppRole as the fallback.
func (r *Resolver) authenticate(cfg Config) error {
	if cfg.Token != "" {
		r.client.SetToken(cfg.Token)
		return nil
	}
	if cfg.RoleID != "" && cfg.SecretID != "" {
		resp, err := r.client.Logical().Write("auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return &kernelerr.ExternalFailure{Operation: "vault approle login", Cause: err}
		}
		if resp == nil || resp.Auth == nil {
			return &kernelerr.ExternalFailure{Operation: "vault approle login", Cause: fmt.Errorf("no auth info returned")}
		}
		r.client.SetToken(resp.Auth.ClientToken)
		return nil
	}
	return &kernelerr.ExternalFailure{Operation: "vault authenticate", Cause: fmt.Errorf("no authentication method configured")}
}

// BrokerCredentials is the gateway credential shape §6.2's live broker
// adapter needs to authenticate with the exchange/venue.
type BrokerCredentials struct {
	APIKey    string
	APISecret string
	// Passphrase is only populated for venues that require one.
	Passphrase string
}

// GetBrokerCredentials reads the live broker gateway's credentials for
// venue from secret/data/kernel/broker/<venue>, handling both KV v1 and
// v2 mount shapes like the teacher's GetKey.
func (r *Resolver) GetBrokerCredentials(ctx context.Context, venue string) (BrokerCredentials, error) {
	path := fmt.Sprintf("%s/data/kernel/broker/%s", r.mountPath, venue)
	data, err := r.read(ctx, path)
	if err != nil {
		return BrokerCredentials{}, err
	}
	return BrokerCredentials{
		APIKey:     stringField(data, "api_key"),
		APISecret:  stringField(data, "api_secret"),
		Passphrase: stringField(data, "passphrase"),
	}, nil
}

// GetPersistenceToken reads the §6.1 persistence adapter's
// `Token {api_key}` bearer credential from
// secret/data/kernel/persistence.
func (r *Resolver) GetPersistenceToken(ctx context.Context) (string, error) {
	path := fmt.Sprintf("%s/data/kernel/persistence", r.mountPath)
	data, err := r.read(ctx, path)
	if err != nil {
		return "", err
	}
	token := stringField(data, "api_key")
	if token == "" {
		return "", &kernelerr.ExternalFailure{Operation: "vault read " + path, Cause: fmt.Errorf("api_key field missing or empty")}
	}
	return token, nil
}

// read fetches a secret and normalizes KV v1/v2 payload shapes.
func (r *Resolver) read(ctx context.Context, path string) (map[string]interface{}, error) {
	secret, err := r.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, &kernelerr.ExternalFailure{Operation: "vault read " + path, Cause: err}
	}
	if secret == nil || secret.Data == nil {
		return nil, &kernelerr.ExternalFailure{Operation: "vault read " + path, Cause: fmt.Errorf("secret not found")}
	}
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		return nested, nil
	}
	return secret.Data, nil
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
