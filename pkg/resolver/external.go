package resolver

import (
	"path/filepath"

	"github.com/animalet/configobj/pkg/node"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// external loads and fully resolves the document named by target, then selects the
// target's path in the resolved tree. Documents are reloaded on every reference.
//
// The messages of the nested document are recorded once per pass, however many
// references lead to it. When the nested document fails, an *Error is returned.
func (p *pass) external(target Target) (*node.Node, error) {
	path := p.resolver.locate(target.File)
	for _, doc := range p.resolver.chain {
		if doc == path {
			return nil, errors.Wrapf(ErrCircularReference, "%q is already being resolved", path)
		}
	}

	tree, err := p.resolver.loader.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "external document %q", target.File)
	}

	chain := make([]string, 0, len(p.resolver.chain)+1)
	chain = append(chain, p.resolver.chain...)
	nested := &Resolver{
		registry: p.resolver.registry,
		loader:   p.resolver.loader,
		document: path,
		chain:    append(chain, path),
	}

	log.Debug().Str("document", path).Int("depth", len(nested.chain)).Msg("Resolving external document")
	resolved, errs, err := nested.Resolve(tree)
	if _, seen := p.merged[path]; !seen {
		p.errs = append(p.errs, errs...)
		if p.merged == nil {
			p.merged = make(map[string]struct{})
		}
		p.merged[path] = struct{}{}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "external document %q", target.File)
	}

	value, err := resolved.Lookup(target.Path...)
	if err != nil {
		return nil, errors.Wrapf(err, "in document %q", path)
	}
	return value, nil
}

// locate makes file absolute. Relative paths are taken from the directory of the
// document being resolved, or from the working directory when it is unknown.
func (r *Resolver) locate(file string) string {
	if !filepath.IsAbs(file) && r.document != "" {
		file = filepath.Join(filepath.Dir(r.document), file)
	}
	if abs, err := filepath.Abs(file); err == nil {
		return abs
	}
	return filepath.Clean(file)
}
