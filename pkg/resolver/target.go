package resolver

import (
	"strings"

	"github.com/animalet/configobj/pkg/node"
	"github.com/animalet/configobj/pkg/secrets"
	"github.com/pkg/errors"
)

// ErrInvalidTarget is returned for target strings that do not fit any target form.
var ErrInvalidTarget = errors.New("invalid reference target")

// TargetKind classifies where a target's value comes from.
type TargetKind int

const (
	// ProviderTarget is "@<provider>.<KEY>", including "@env.<NAME>".
	ProviderTarget TargetKind = iota
	// DocumentTarget is "#<path>" into the document being resolved.
	DocumentTarget
	// ExternalTarget is "<file>#<path>" into another document.
	ExternalTarget
	// LegacyTarget is a bare environment variable name.
	LegacyTarget
)

func (k TargetKind) String() string {
	switch k {
	case ProviderTarget:
		return "provider"
	case DocumentTarget:
		return "document"
	case ExternalTarget:
		return "external"
	case LegacyTarget:
		return "legacy"
	default:
		return "unknown"
	}
}

// Target is a parsed reference target.
type Target struct {
	Kind TargetKind
	Raw  string
	// Provider and Key are set for ProviderTarget; Key alone for LegacyTarget.
	Provider string
	Key      string
	// File is set for ExternalTarget.
	File string
	// Path is set for DocumentTarget and ExternalTarget. An empty Path selects the root.
	Path []string
}

// ParseTarget classifies raw by prefix:
//
//	@env.NAME          environment variable
//	@vault.KEY         any registered provider
//	#a/b/0             path in the same document
//	other.yaml#a/b     path in another document
//	NAME               environment variable (legacy form)
func ParseTarget(raw string) (Target, error) {
	switch {
	case strings.HasPrefix(raw, "@"):
		provider, key, found := strings.Cut(raw[1:], ".")
		if !found || provider == "" {
			return Target{}, errors.Wrapf(ErrInvalidTarget, "%q: expected @<provider>.<key>", raw)
		}
		return Target{Kind: ProviderTarget, Raw: raw, Provider: provider, Key: key}, nil
	case strings.HasPrefix(raw, "#"):
		return Target{Kind: DocumentTarget, Raw: raw, Path: node.SplitPath(raw[1:])}, nil
	case strings.Contains(raw, "#"):
		file, path, _ := strings.Cut(raw, "#")
		return Target{Kind: ExternalTarget, Raw: raw, File: file, Path: node.SplitPath(path)}, nil
	default:
		return Target{Kind: LegacyTarget, Raw: raw, Provider: secrets.EnvPrefix, Key: raw}, nil
	}
}

// environment reports whether the target reads the Environment Source.
func (t Target) environment() bool {
	return t.Kind == LegacyTarget || (t.Kind == ProviderTarget && t.Provider == secrets.EnvPrefix)
}
