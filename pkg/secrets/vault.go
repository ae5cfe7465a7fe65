package secrets

import (
	"context"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// VaultConfig is the "vault" section of a providers file. Path names one secret, for
// example "secret/data/myapp" on a KV v2 engine.
type VaultConfig struct {
	Address    string        `yaml:"address"`
	Token      string        `yaml:"token"`
	Path       string        `yaml:"path"`
	Namespace  string        `yaml:"namespace"`
	Timeout    time.Duration `yaml:"timeout"`
	CACert     string        `yaml:"ca_cert"`
	SkipVerify bool          `yaml:"skip_verify"`
}

func (v VaultConfig) Validate() error {
	switch {
	case v.Address == "":
		return errors.New("Vault address is required")
	case v.Token == "":
		return errors.New("Vault token is required")
	case v.Path == "":
		return errors.New("Vault path is required")
	}
	return nil
}

// CreateClient returns an authenticated client for the configured server.
func (v VaultConfig) CreateClient() (*api.Client, error) {
	if err := v.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid Vault configuration")
	}

	cfg := api.DefaultConfig()
	cfg.Address = v.Address
	if v.Timeout > 0 {
		cfg.Timeout = v.Timeout
	}
	if v.CACert != "" || v.SkipVerify {
		if err := cfg.ConfigureTLS(&api.TLSConfig{CACert: v.CACert, Insecure: v.SkipVerify}); err != nil {
			return nil, errors.Wrap(err, "failed to configure Vault TLS")
		}
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Vault client")
	}
	client.SetToken(v.Token)
	if v.Namespace != "" {
		client.SetNamespace(v.Namespace)
	}
	return client, nil
}

// VaultSecretLoader serves "@vault.KEY" targets from the fields of one Vault secret.
// Both KV v1 and KV v2 engines are supported.
type VaultSecretLoader struct {
	logical *api.Logical
	path    string
}

func NewVaultSecretLoader(client *api.Client, path string) *VaultSecretLoader {
	return &VaultSecretLoader{logical: client.Logical(), path: path}
}

func (v *VaultSecretLoader) Resolve(key string) (string, error) {
	fields, err := v.read(context.Background())
	if err != nil {
		return "", err
	}

	raw, ok := fields[key]
	if !ok {
		return "", errors.Wrapf(ErrSecretNotFound, "secret %q not found in Vault at path %q", key, v.path)
	}
	value, ok := raw.(string)
	if !ok {
		return "", errors.Errorf("secret %q in Vault at path %q is not a string", key, v.path)
	}

	log.Info().Str("secret_name", key).Str("vault_path", v.path).Msg("Retrieved secret from Vault")
	return value, nil
}

// read returns the fields of the secret at v.path. KV v2 nests them under "data".
func (v *VaultSecretLoader) read(ctx context.Context) (map[string]any, error) {
	secret, err := v.logical.ReadWithContext(ctx, v.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read secret from Vault path %q", v.path)
	}
	if secret == nil || secret.Data == nil {
		return nil, errors.Wrapf(ErrSecretNotFound, "no secret found at Vault path %q", v.path)
	}

	nested, ok := secret.Data["data"]
	if !ok || nested == nil {
		return secret.Data, nil
	}
	fields, ok := nested.(map[string]any)
	if !ok {
		return nil, errors.New("unexpected data format in KV v2 secret")
	}
	return fields, nil
}

func (v *VaultSecretLoader) Name() string {
	return "Vault"
}
