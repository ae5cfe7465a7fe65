package secrets

import (
	"io/fs"
	"os"
	"sync"

	"github.com/animalet/configobj/pkg/loader"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Environment resolves properties from environment variables.
// It is the provider behind "@env.NAME" targets and bare legacy names.
//
// A process Environment reads and writes the real process environment: dot-env files
// merged into it stay merged for the lifetime of the process, and every Environment
// in the process observes them. An isolated Environment keeps its variables in a
// private map, which is what tests should use.
type Environment struct {
	process bool
	mu      sync.RWMutex
	vars    map[string]string
}

// NewProcessEnvironment returns an Environment backed by the process environment.
func NewProcessEnvironment() *Environment {
	return &Environment{process: true}
}

// NewEnvironment returns an isolated Environment holding a copy of vars.
func NewEnvironment(vars map[string]string) *Environment {
	copied := make(map[string]string, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	return &Environment{vars: copied}
}

// Process reports whether the Environment is backed by the process environment.
func (e *Environment) Process() bool {
	return e.process
}

// Lookup returns the value of the variable and whether it is set.
// A variable set to the empty string is reported as set.
func (e *Environment) Lookup(name string) (string, bool) {
	if e.process {
		return os.LookupEnv(name)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	value, ok := e.vars[name]
	return value, ok
}

// LoadDotEnv merges KEY=VALUE pairs from the given dot-env files. Variables that are
// already set are never overwritten, so real secrets exported before start-up win over
// the file. Files are merged in order; the first file to set a variable wins.
//
// Returns loader.ErrNotFound if a file does not exist, or a *loader.ParseError if it
// cannot be parsed.
func (e *Environment) LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		values, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return errors.Wrapf(loader.ErrNotFound, "dot-env file %q", path)
			}
			return &loader.ParseError{Path: path, Format: "dotenv", Err: err}
		}

		merged := e.merge(values)
		log.Debug().Str("file", path).Int("merged", merged).Int("total", len(values)).Msg("Loaded dot-env file")
	}
	return nil
}

func (e *Environment) merge(values map[string]string) int {
	merged := 0
	if e.process {
		for k, v := range values {
			if _, exists := os.LookupEnv(k); exists {
				continue
			}
			if err := os.Setenv(k, v); err != nil {
				log.Warn().Err(err).Str("env_var", k).Msg("Unable to set environment variable from dot-env file")
				continue
			}
			merged++
		}
		return merged
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range values {
		if _, exists := e.vars[k]; exists {
			continue
		}
		e.vars[k] = v
		merged++
	}
	return merged
}

// Resolve retrieves an environment variable value.
// An unset variable fails with ErrSecretNotFound.
func (e *Environment) Resolve(key string) (string, error) {
	value, ok := e.Lookup(key)
	if !ok {
		return "", errors.Wrapf(ErrSecretNotFound, "environment variable %q is not set", key)
	}

	log.Debug().
		Str("env_var", key).
		Msg("Retrieved value from environment variable")
	return value, nil
}

// Name returns the resolver name
func (e *Environment) Name() string {
	return "Environment"
}
