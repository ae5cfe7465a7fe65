// Package secrets provides the value sources that configuration references resolve
// against. The environment is always available under the "env" prefix; other providers
// (files, Vault, AWS Secrets Manager, Redis, Memcached) are registered per Registry.
package secrets

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrSecretNotFound is returned by providers when the requested key does not exist.
	// References failing with it are reported as absent rather than as errors.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrUnknownProvider is returned when no provider is registered for a prefix.
	ErrUnknownProvider = errors.New("no secret provider registered")
)

// EnvPrefix is the prefix under which the Environment is registered.
const EnvPrefix = "env"

// PropertyResolver defines the interface that all secret providers must implement.
// A provider is responsible for retrieving a secret value based on a key.
type PropertyResolver interface {
	// Resolve retrieves the secret value for the given key.
	// A key that does not exist must be reported with an error wrapping ErrSecretNotFound.
	Resolve(key string) (string, error)

	// Name returns a human-readable name for this provider (for logging/debugging)
	Name() string
}

// Registry associates prefixes with their providers.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]PropertyResolver
	env       *Environment
}

// NewRegistry creates a registry with env registered under EnvPrefix.
// A nil env selects the process environment.
func NewRegistry(env *Environment) *Registry {
	if env == nil {
		env = NewProcessEnvironment()
	}
	return &Registry{
		providers: map[string]PropertyResolver{EnvPrefix: env},
		env:       env,
	}
}

// Environment returns the environment this registry was created with.
func (r *Registry) Environment() *Environment {
	return r.env
}

// Register registers a secret provider for a specific prefix.
// If a provider is already registered for the prefix, it will be replaced and
// a warning will be logged.
//
// Example:
//
//	registry.Register("vault", secrets.NewVaultSecretLoader(client, "secret/data/app"))
func (r *Registry) Register(prefix string, provider PropertyResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[prefix]; exists {
		log.Warn().Msgf("Overriding existing secret provider for prefix %q", prefix)
	}
	r.providers[prefix] = provider
}

// Unregister removes a provider for a specific prefix.
func (r *Registry) Unregister(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, prefix)
}

// Get returns the provider registered for a prefix, or nil.
func (r *Registry) Get(prefix string) PropertyResolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[prefix]
}

// Prefixes returns the registered prefixes in sorted order.
func (r *Registry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefixes := make([]string, 0, len(r.providers))
	for prefix := range r.providers {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}

// Resolve retrieves key from the provider registered under prefix.
//
// Returns:
//   - string: The resolved secret value
//   - error: ErrUnknownProvider if nothing is registered for prefix, or the
//     provider's error (wrapping ErrSecretNotFound when the key does not exist)
func (r *Registry) Resolve(prefix, key string) (string, error) {
	provider := r.Get(prefix)
	if provider == nil {
		return "", errors.Wrapf(ErrUnknownProvider, "prefix %q", prefix)
	}

	value, err := provider.Resolve(key)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve secret %q using %s provider", key, provider.Name())
	}
	return value, nil
}
