package secrets

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RedisConfig holds configuration for the Redis provider's connection pool
type RedisConfig struct {
	Address     string        `yaml:"address"`
	Username    string        `yaml:"username,omitempty"`
	Password    string        `yaml:"password,omitempty"`
	Database    int           `yaml:"database,omitempty"`
	KeyPrefix   string        `yaml:"key_prefix,omitempty"`
	MaxIdle     int           `yaml:"max_idle"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	TLS         *TLSConfig    `yaml:"tls,omitempty"`
}

// TLSConfig holds TLS configuration for Redis connections
type TLSConfig struct {
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	CAFile             string `yaml:"ca_file"`
}

func (r RedisConfig) Validate() error {
	if r.Address == "" {
		return errors.New("redis address must be set and non-empty")
	}
	if r.MaxIdle < 0 {
		return errors.New("redis max_idle must be non-negative")
	}
	if r.IdleTimeout < 0 {
		return errors.New("redis idle_timeout must be non-negative")
	}
	if r.Database < 0 {
		return errors.New("redis database must be non-negative")
	}
	if r.TLS != nil {
		if (r.TLS.CertFile != "") != (r.TLS.KeyFile != "") {
			return errors.New("both cert_file and key_file must be set together in TLS configuration")
		}
	}
	return nil
}

// CreateClient creates a Redis connection pool from this config.
// No connection is opened until the first lookup.
func (r RedisConfig) CreateClient() (*redis.Pool, error) {
	if err := r.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid Redis configuration")
	}
	cfg := r
	return &redis.Pool{
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
		MaxIdle:     cfg.MaxIdle,
		IdleTimeout: cfg.IdleTimeout,
		Dial: func() (redis.Conn, error) {
			return dialRedis(&cfg)
		},
	}, nil
}

func dialRedis(config *RedisConfig) (redis.Conn, error) {
	var opts []redis.DialOption

	if config.Username != "" {
		opts = append(opts, redis.DialUsername(config.Username))
	}
	if config.Password != "" {
		opts = append(opts, redis.DialPassword(config.Password))
	}
	opts = append(opts, redis.DialDatabase(config.Database))

	if config.TLS != nil {
		// #nosec G402 -- InsecureSkipVerify is an explicit operator choice
		tlsConfig := &tls.Config{
			InsecureSkipVerify: config.TLS.InsecureSkipVerify,
		}

		if config.TLS.CAFile != "" {
			caCert, err := os.ReadFile(config.TLS.CAFile)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to read CA certificate %q", config.TLS.CAFile)
			}
			caCertPool := x509.NewCertPool()
			if !caCertPool.AppendCertsFromPEM(caCert) {
				return nil, errors.Errorf("failed to parse CA certificate %q", config.TLS.CAFile)
			}
			tlsConfig.RootCAs = caCertPool
		}

		if config.TLS.CertFile != "" && config.TLS.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.CertFile, config.TLS.KeyFile)
			if err != nil {
				return nil, errors.Wrap(err, "failed to load client certificate")
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}

		opts = append(opts, redis.DialTLSConfig(tlsConfig), redis.DialUseTLS(true))
	}

	return redis.Dial("tcp", config.Address, opts...)
}

// ConnGetter hands out Redis connections; *redis.Pool implements it.
type ConnGetter interface {
	Get() redis.Conn
}

// RedisSecretLoader reads secrets stored as plain Redis string keys.
//
// Example usage in config:
//
//	api_key: ${@redis.API_KEY}  # GET <key_prefix>API_KEY
type RedisSecretLoader struct {
	pool      ConnGetter
	keyPrefix string
}

// NewRedisSecretLoader creates a new Redis-based provider
func NewRedisSecretLoader(pool ConnGetter, keyPrefix string) *RedisSecretLoader {
	return &RedisSecretLoader{
		pool:      pool,
		keyPrefix: keyPrefix,
	}
}

// Resolve reads a secret with GET
func (r *RedisSecretLoader) Resolve(key string) (string, error) {
	conn := r.pool.Get()
	defer func() {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to release Redis connection")
		}
	}()

	fullKey := r.keyPrefix + key
	value, err := redis.String(conn.Do("GET", fullKey))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return "", errors.Wrapf(ErrSecretNotFound, "no Redis key %q", fullKey)
		}
		return "", errors.Wrapf(err, "failed to read Redis key %q", fullKey)
	}

	log.Debug().Str("key", fullKey).Msg("Retrieved secret from Redis")
	return value, nil
}

// Name returns the resolver name
func (r *RedisSecretLoader) Name() string {
	return "Redis"
}
