package secrets

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MemcachedConfig holds configuration for the Memcached provider
type MemcachedConfig struct {
	// Servers is a list of Memcached server addresses (host:port)
	Servers []string `yaml:"servers"`

	// Timeout for connecting to Memcached servers (default 100ms)
	Timeout time.Duration `yaml:"timeout"`

	// MaxIdleConns is the maximum number of idle connections per server (default 2)
	MaxIdleConns int `yaml:"max_idle_conns"`

	KeyPrefix string `yaml:"key_prefix,omitempty"`
}

// Validate checks if the MemcachedConfig has all required fields set
func (m MemcachedConfig) Validate() error {
	if len(m.Servers) == 0 {
		return errors.New("at least one Memcached server address is required")
	}

	for i, server := range m.Servers {
		if server == "" {
			return errors.Errorf("server address at index %d is empty", i)
		}
	}

	if m.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}

	if m.MaxIdleConns < 0 {
		return errors.New("max_idle_conns cannot be negative")
	}

	return nil
}

// CreateClient creates a Memcached client from this config and checks that the
// servers answer.
func (m MemcachedConfig) CreateClient() (*memcache.Client, error) {
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid Memcached configuration")
	}

	client := memcache.New(m.Servers...)

	client.Timeout = 100 * time.Millisecond
	if m.Timeout > 0 {
		client.Timeout = m.Timeout
	}

	client.MaxIdleConns = 2
	if m.MaxIdleConns > 0 {
		client.MaxIdleConns = m.MaxIdleConns
	}

	if err := client.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Memcached")
	}

	return client, nil
}

// ItemGetter is the subset of the Memcached client used by MemcachedSecretLoader.
type ItemGetter interface {
	Get(key string) (*memcache.Item, error)
}

// MemcachedSecretLoader reads secrets stored as Memcached items.
//
// Example usage in config:
//
//	token: ${@memcached.SERVICE_TOKEN}
type MemcachedSecretLoader struct {
	client    ItemGetter
	keyPrefix string
}

// NewMemcachedSecretLoader creates a new Memcached-based provider
func NewMemcachedSecretLoader(client ItemGetter, keyPrefix string) *MemcachedSecretLoader {
	return &MemcachedSecretLoader{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Resolve reads a secret item
func (m *MemcachedSecretLoader) Resolve(key string) (string, error) {
	fullKey := m.keyPrefix + key
	item, err := m.client.Get(fullKey)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return "", errors.Wrapf(ErrSecretNotFound, "no Memcached item %q", fullKey)
		}
		return "", errors.Wrapf(err, "failed to read Memcached item %q", fullKey)
	}

	log.Debug().Str("key", fullKey).Msg("Retrieved secret from Memcached")
	return string(item.Value), nil
}

// Name returns the resolver name
func (m *MemcachedSecretLoader) Name() string {
	return "Memcached"
}
