package main

import (
	"os"

	"github.com/animalet/configobj/internal/expansion"
	"github.com/animalet/configobj/pkg/resolver"
	"github.com/animalet/configobj/pkg/secrets"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ProvidersConfig is the layout of the -providers file. Every section is optional and
// registers the provider of the same prefix ("file_resolver" registers "file").
// String settings may hold ${NAME} or ${@env.NAME} placeholders.
//
//	vault:
//	  address: http://localhost:8200
//	  token: ${@env.VAULT_TOKEN}
//	  path: secret/data/app
//	redis:
//	  address: localhost:6379
//	  key_prefix: "app:"
type ProvidersConfig struct {
	Vault        *secrets.VaultConfig      `yaml:"vault,omitempty"`
	AWS          *secrets.AWSConfig        `yaml:"aws,omitempty"`
	FileResolver *secrets.FileSecretConfig `yaml:"file_resolver,omitempty"`
	Redis        *secrets.RedisConfig      `yaml:"redis,omitempty"`
	Memcached    *secrets.MemcachedConfig  `yaml:"memcached,omitempty"`
}

// readProviders reads the providers file and expands its placeholders against the
// registry as it is before any provider is added.
func readProviders(path string, registry *secrets.Registry) (*ProvidersConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read providers file %q", path)
	}

	var cfg ProvidersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse providers file %q", path)
	}

	lookup := resolver.New(registry, nil)
	err = expansion.ExpandVariables(&cfg, func(target string) (string, error) {
		value, err := lookup.Lookup(target)
		if err != nil {
			return "", err
		}
		return value.Render(), nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to expand providers file %q", path)
	}
	return &cfg, nil
}

// loadProviders registers every provider configured in the file at path. The returned
// cleanup releases the clients that hold connections. An empty path registers nothing.
func loadProviders(path string, registry *secrets.Registry) (func(), error) {
	var closers []func()
	cleanup := func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}
	if path == "" {
		return cleanup, nil
	}

	cfg, err := readProviders(path, registry)
	if err != nil {
		return cleanup, err
	}

	if cfg.Vault != nil {
		client, err := cfg.Vault.CreateClient()
		if err != nil {
			return cleanup, errors.Wrap(err, "failed to create Vault client")
		}
		registry.Register("vault", secrets.NewVaultSecretLoader(client, cfg.Vault.Path))
	}

	if cfg.AWS != nil {
		client, err := cfg.AWS.CreateClient()
		if err != nil {
			return cleanup, errors.Wrap(err, "failed to create AWS Secrets Manager client")
		}
		registry.Register("aws", secrets.NewAWSSecretLoader(client, cfg.AWS.SecretName).WithTimeout(cfg.AWS.Timeout))
	}

	if cfg.FileResolver != nil {
		provider, err := cfg.FileResolver.CreateClient()
		if err != nil {
			return cleanup, errors.Wrap(err, "failed to create file secret provider")
		}
		registry.Register("file", provider)
	}

	if cfg.Redis != nil {
		pool, err := cfg.Redis.CreateClient()
		if err != nil {
			return cleanup, errors.Wrap(err, "failed to create Redis client")
		}
		closers = append(closers, func() {
			if err := pool.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close Redis pool")
			}
		})
		registry.Register("redis", secrets.NewRedisSecretLoader(pool, cfg.Redis.KeyPrefix))
	}

	if cfg.Memcached != nil {
		client, err := cfg.Memcached.CreateClient()
		if err != nil {
			return cleanup, errors.Wrap(err, "failed to create Memcached client")
		}
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close Memcached client")
			}
		})
		registry.Register("memcached", secrets.NewMemcachedSecretLoader(client, cfg.Memcached.KeyPrefix))
	}

	log.Debug().Strs("prefixes", registry.Prefixes()).Msg("Secret providers registered")
	return cleanup, nil
}
