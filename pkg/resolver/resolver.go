// Package resolver replaces the references embedded in a configuration tree with the
// values they point to.
//
// A reference is either a whole node:
//
//	password:
//	  $ref: "@env.DB_PASSWORD"
//	  required: true
//
// or a placeholder inside a string:
//
//	dsn: "postgres://app:${@vault.DB_PASSWORD}@${#db/host}/app"
//
// Targets are resolved through a secrets.Registry, the original tree of the document, or
// the resolved tree of another document (see ParseTarget).
package resolver

import (
	"fmt"
	"path/filepath"

	"github.com/animalet/configobj/pkg/loader"
	"github.com/animalet/configobj/pkg/node"
	"github.com/animalet/configobj/pkg/secrets"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// RefKey marks a Mapping as a reference node.
	RefKey = "$ref"
	// RequiredKey makes a reference node fatal when its target cannot be resolved.
	RequiredKey = "required"
)

var (
	// ErrRequiredReferenceUnresolved aborts resolution when a required reference fails.
	ErrRequiredReferenceUnresolved = errors.New("required reference unresolved")
	// ErrCircularReference is returned when a document refers back into a document
	// that is still being resolved.
	ErrCircularReference = errors.New("circular reference")
)

// Error is returned by Resolve when resolution is aborted. It carries the messages
// recorded up to and including the failure.
type Error struct {
	Errors []string
	Err    error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Resolver resolves the references of configuration trees. A Resolver keeps no state
// between calls and may be used from several goroutines.
type Resolver struct {
	registry *secrets.Registry
	loader   *loader.Loader
	document string
	// chain lists the absolute paths of the documents being resolved, outermost first.
	chain []string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDocument names the file the resolved tree was loaded from. Relative external
// targets are then located next to it, and references back into it are detected as
// circular.
func WithDocument(path string) Option {
	return func(r *Resolver) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		r.document = path
		r.chain = []string{path}
	}
}

// New creates a Resolver. A nil registry resolves against the process environment only,
// and a nil loader accepts the default formats.
func New(registry *secrets.Registry, ldr *loader.Loader, opts ...Option) *Resolver {
	if registry == nil {
		registry = secrets.NewRegistry(nil)
	}
	if ldr == nil {
		ldr = loader.New()
	}
	r := &Resolver{registry: registry, loader: ldr}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Document returns the absolute path set with WithDocument, or "".
func (r *Resolver) Document() string {
	return r.document
}

// Resolve returns a copy of root with every reference replaced, and the messages of the
// references that failed without being fatal. root is never modified, and subtrees
// without references are shared with it.
//
// A required reference that cannot be resolved aborts the walk with an *Error wrapping
// ErrRequiredReferenceUnresolved.
func (r *Resolver) Resolve(root *node.Node) (*node.Node, []string, error) {
	p := &pass{resolver: r, original: root}
	resolved, err := p.walk(root)
	if err != nil {
		return nil, p.errs, &Error{Errors: append([]string(nil), p.errs...), Err: err}
	}
	return resolved, p.errs, nil
}

// Lookup resolves a single target string outside of any tree. Document targets
// ("#path") select nothing.
func (r *Resolver) Lookup(target string) (*node.Node, error) {
	p := &pass{resolver: r, original: node.NewNull()}
	return p.lookup(target)
}

// pass holds the state of a single Resolve call.
type pass struct {
	resolver *Resolver
	original *node.Node
	errs     []string
	// merged holds the external documents whose messages are already in errs.
	merged map[string]struct{}
}

func (p *pass) walk(n *node.Node) (*node.Node, error) {
	switch n.Kind() {
	case node.Mapping:
		if ref, ok := n.Get(RefKey); ok {
			return p.reference(n, ref)
		}
		return p.mapping(n)
	case node.Sequence:
		return p.sequence(n)
	case node.String:
		return p.interpolate(n), nil
	default:
		return n, nil
	}
}

func (p *pass) mapping(n *node.Node) (*node.Node, error) {
	changed := false
	pairs := make(map[string]*node.Node, n.Len())
	for _, key := range n.Keys() {
		value, _ := n.Get(key)
		resolved, err := p.walk(value)
		if err != nil {
			return nil, err
		}
		changed = changed || resolved != value
		pairs[key] = resolved
	}
	if !changed {
		return n, nil
	}
	return node.NewMapping(pairs), nil
}

func (p *pass) sequence(n *node.Node) (*node.Node, error) {
	changed := false
	items := n.Items()
	for i, item := range items {
		resolved, err := p.walk(item)
		if err != nil {
			return nil, err
		}
		changed = changed || resolved != item
		items[i] = resolved
	}
	if !changed {
		return n, nil
	}
	return node.NewSequence(items...), nil
}

// reference resolves a reference node. Only a boolean true makes it required.
func (p *pass) reference(n, ref *node.Node) (*node.Node, error) {
	required := false
	if flag, ok := n.Get(RequiredKey); ok {
		required, _ = flag.AsBool()
	}

	raw, ok := ref.AsString()
	if !ok {
		err := errors.Wrapf(ErrInvalidTarget, "%s must be a string, not %s", RefKey, ref.Kind())
		return p.unresolved(Target{Raw: ref.Render()}, required, err)
	}

	target, err := ParseTarget(raw)
	if err != nil {
		return p.unresolved(Target{Raw: raw}, required, err)
	}
	value, err := p.resolve(target)
	if err != nil {
		return p.unresolved(target, required, err)
	}
	return value, nil
}

// unresolved handles a failed reference node: fatal when required, Null otherwise.
func (p *pass) unresolved(target Target, required bool, err error) (*node.Node, error) {
	if required {
		message := requiredMessage(target, err)
		p.errs = append(p.errs, message)
		return nil, errors.Wrap(ErrRequiredReferenceUnresolved, message)
	}
	p.failed(target.Raw, err)
	return node.NewNull(), nil
}

func requiredMessage(target Target, err error) string {
	if target.environment() && errors.Is(err, secrets.ErrSecretNotFound) {
		return fmt.Sprintf("Environment variable %s is required but missing in the .env file", target.Key)
	}
	return fmt.Sprintf("Reference %s is required but could not be resolved: %v", target.Raw, err)
}

// failed records the error of an optional lookup, unless the target was merely absent
// or the error was already recorded by a nested document.
func (p *pass) failed(target string, err error) {
	var nested *Error
	switch {
	case errors.Is(err, secrets.ErrSecretNotFound), errors.Is(err, node.ErrPathNotFound):
		log.Debug().Str("target", target).Err(err).Msg("Optional reference left unresolved")
	case errors.As(err, &nested):
		log.Debug().Str("target", target).Err(err).Msg("Referenced document failed to resolve")
	default:
		p.errs = append(p.errs, fmt.Sprintf("Reference %s could not be resolved: %v", target, err))
	}
}

// lookup parses and resolves a target string.
func (p *pass) lookup(raw string) (*node.Node, error) {
	target, err := ParseTarget(raw)
	if err != nil {
		return nil, err
	}
	return p.resolve(target)
}

func (p *pass) resolve(target Target) (*node.Node, error) {
	var (
		value *node.Node
		err   error
	)
	switch target.Kind {
	case ProviderTarget, LegacyTarget:
		var secret string
		secret, err = p.resolver.registry.Resolve(target.Provider, target.Key)
		if err == nil {
			value = node.NewString(secret)
		}
	case DocumentTarget:
		value, err = p.original.Lookup(target.Path...)
		if err != nil {
			err = errors.Wrapf(err, "in %s", p.describe())
		}
	case ExternalTarget:
		value, err = p.external(target)
	default:
		err = errors.Wrapf(ErrInvalidTarget, "%q", target.Raw)
	}
	if err != nil {
		return nil, err
	}

	log.Debug().Str("target", target.Raw).Str("kind", target.Kind.String()).Msg("Resolved reference")
	return value, nil
}

func (p *pass) describe() string {
	if p.resolver.document == "" {
		return "current document"
	}
	return fmt.Sprintf("document %q", p.resolver.document)
}
