// Package config loads a configuration document and resolves the references it embeds.
//
//	cfg, err := config.New("config.json", config.WithEnvFile(".env"))
//	if err != nil {
//	    return err
//	}
//	for _, msg := range cfg.Errors() {
//	    log.Warn().Msg(msg)
//	}
//	db, err := config.Get[DatabaseConfig](cfg, "database")
//
// The original tree and the resolved tree are both kept, and neither changes after New
// returns.
package config

import (
	"io/fs"
	"os"

	"github.com/animalet/configobj/internal/snapshot"
	"github.com/animalet/configobj/pkg/loader"
	"github.com/animalet/configobj/pkg/node"
	"github.com/animalet/configobj/pkg/resolver"
	"github.com/animalet/configobj/pkg/secrets"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFile is merged into the environment when it exists and no dot-env file is
// named explicitly.
const DefaultEnvFile = ".env"

// Settings records how a Config was loaded.
type Settings struct {
	EnvFiles      []string
	AdvisoryCheck bool
}

type options struct {
	Settings
	explicitEnv bool
	env         *secrets.Environment
	registry    *secrets.Registry
	loader      *loader.Loader
}

// Option configures New.
type Option func(*options)

// WithEnvFile names the dot-env files to merge before resolution. Missing files are an
// error. Without it, DefaultEnvFile is merged if present.
func WithEnvFile(paths ...string) Option {
	return func(o *options) {
		o.EnvFiles = append([]string(nil), paths...)
		o.explicitEnv = true
	}
}

// WithEnvironment sets the Environment Source. It defaults to the process environment.
// It is ignored when WithRegistry is given, whose own Environment is used instead.
func WithEnvironment(env *secrets.Environment) Option {
	return func(o *options) {
		o.env = env
	}
}

// WithRegistry sets the secret providers that "@<provider>.KEY" targets resolve against.
func WithRegistry(registry *secrets.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithLoader sets the document loader, for example to accept extra formats.
func WithLoader(ldr *loader.Loader) Option {
	return func(o *options) {
		o.loader = ldr
	}
}

// WithAdvisoryCheck turns the file permission advisory on or off. It is on by default.
func WithAdvisoryCheck(enabled bool) Option {
	return func(o *options) {
		o.AdvisoryCheck = enabled
	}
}

// Config is a loaded and resolved configuration document.
type Config struct {
	document  string
	settings  Settings
	original  *node.Node
	completed *node.Node
	errors    []string
}

// New merges the dot-env files, loads the document at path and resolves its references.
//
// Missing, malformed and unsupported documents fail with the loader's errors. A required
// reference that cannot be resolved fails with a *resolver.Error that also carries the
// messages recorded so far. Other resolution failures are reported by Errors.
func New(path string, opts ...Option) (*Config, error) {
	o := &options{Settings: Settings{AdvisoryCheck: true}}
	for _, opt := range opts {
		opt(o)
	}

	registry := o.registry
	if registry == nil {
		registry = secrets.NewRegistry(o.env)
	}
	ldr := o.loader
	if ldr == nil {
		ldr = loader.New()
	}

	if err := loadEnvFiles(registry.Environment(), o); err != nil {
		return nil, err
	}

	if o.AdvisoryCheck {
		checkPermissions(append([]string{path}, o.EnvFiles...)...)
	}

	original, err := ldr.Load(path)
	if err != nil {
		return nil, err
	}

	completed, errs, err := resolver.New(registry, ldr, resolver.WithDocument(path)).Resolve(original)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %q", path)
	}
	for _, msg := range errs {
		log.Debug().Str("document", path).Msg(msg)
	}

	return &Config{
		document:  path,
		settings:  *snapshot.MustCopy(&o.Settings),
		original:  original,
		completed: completed,
		errors:    snapshot.Slice(errs),
	}, nil
}

func loadEnvFiles(env *secrets.Environment, o *options) error {
	if o.explicitEnv {
		return env.LoadDotEnv(o.EnvFiles...)
	}
	merged, err := MergeEnvFiles(env)
	if err != nil {
		return err
	}
	o.EnvFiles = merged
	return nil
}

// MergeEnvFiles merges the named dot-env files into env and returns them. Without
// paths, DefaultEnvFile is merged if it exists. Callers that need the environment before
// New, such as for provider settings, merge with it and pass the result to WithEnvFile.
func MergeEnvFiles(env *secrets.Environment, paths ...string) ([]string, error) {
	if len(paths) == 0 {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, errors.Wrapf(err, "error accessing %q", DefaultEnvFile)
		}
		paths = []string{DefaultEnvFile}
	}
	if err := env.LoadDotEnv(paths...); err != nil {
		return nil, err
	}
	return paths, nil
}

// Document returns the path the configuration was loaded from, as given to New.
func (c *Config) Document() string {
	return c.document
}

// Settings returns the settings the configuration was loaded with.
func (c *Config) Settings() Settings {
	return *snapshot.MustCopy(&c.settings)
}

// Original returns the tree as parsed, before resolution.
func (c *Config) Original() *node.Node {
	return c.original
}

// Completed returns the resolved tree.
func (c *Config) Completed() *node.Node {
	return c.completed
}

// Items is Completed.
func (c *Config) Items() *node.Node {
	return c.completed
}

// Errors returns the messages of the references that could not be resolved.
func (c *Config) Errors() []string {
	return snapshot.Slice(c.errors)
}

// Lookup selects a "/"-separated path in the resolved tree.
func (c *Config) Lookup(path string) (*node.Node, error) {
	return c.completed.LookupPath(path)
}

// Decode decodes the resolved tree into out using its yaml struct tags.
func (c *Config) Decode(out any) error {
	return decode(c.completed, out)
}

// Validatable is implemented by settings structs that check themselves after decoding.
type Validatable interface {
	Validate() error
}

// Get decodes the subtree at path into a new T. If T implements Validatable, the
// decoded value is validated. A path that selects nothing returns (nil, nil).
//
//	vault, err := config.Get[secrets.VaultConfig](cfg, "providers/vault")
func Get[T any](c *Config, path string) (*T, error) {
	subtree, err := c.Lookup(path)
	if err != nil {
		if errors.Is(err, node.ErrPathNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var out T
	if err := decode(subtree, &out); err != nil {
		return nil, errors.Wrapf(err, "error decoding %q", path)
	}
	if v, ok := any(&out).(Validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, errors.Wrapf(err, "configuration %q is invalid", path)
		}
	}
	return &out, nil
}

func decode(tree *node.Node, out any) error {
	data, err := yaml.Marshal(tree)
	if err != nil {
		return errors.Wrap(err, "error marshalling to YAML")
	}
	return yaml.Unmarshal(data, out)
}

// dump is the diagnostic representation of a Config. Field order is part of the output.
type dump struct {
	Errors    []string   `json:"errors"`
	Object    string     `json:"object"`
	Original  *node.Node `json:"original"`
	Completed *node.Node `json:"completed"`
}

func (c *Config) dump() dump {
	return dump{
		Errors:    snapshot.Slice(c.errors),
		Object:    c.document,
		Original:  c.original,
		Completed: c.completed,
	}
}

// String returns the diagnostic dump as compact JSON.
func (c *Config) String() string {
	data, err := node.EncodeJSON(c.dump(), "")
	if err != nil {
		return err.Error()
	}
	return string(data)
}

// JSON returns the diagnostic dump as JSON indented by two spaces: the errors, the
// document path, the original tree and the resolved tree, in that order.
func (c *Config) JSON() (string, error) {
	data, err := node.EncodeJSON(c.dump(), "  ")
	if err != nil {
		return "", errors.Wrap(err, "error marshalling configuration")
	}
	return string(data), nil
}
