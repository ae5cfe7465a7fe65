// Package loader reads configuration documents from disk and parses them into
// configuration trees. The parser is chosen by file extension: ".json" selects JSON and
// ".yaml" or ".yml" select YAML. Other formats are opt-in through WithFormat.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/animalet/configobj/pkg/node"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotFound is returned when a document or dot-env file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrMalformedDocument is returned when a parser rejects the content of a document.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrUnsupportedFormat is returned when no parser is registered for a file extension.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// ParseError reports a document whose content the selected parser rejected.
// It matches ErrMalformedDocument with errors.Is and unwraps to the parser diagnostic.
type ParseError struct {
	Path   string
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed %s document: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("malformed %s document %q: %v", e.Format, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is makes every ParseError match ErrMalformedDocument.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedDocument
}

// Loader maps file extensions to formats and loads documents with them.
// A Loader is safe for concurrent use once built.
type Loader struct {
	formats map[string]Format
}

// Option configures a Loader.
type Option func(*Loader)

// WithFormat registers a format for a file extension, including the leading dot
// (e.g. ".toml"). Registering an extension twice keeps the last format.
func WithFormat(ext string, format Format) Option {
	return func(l *Loader) {
		l.formats[ext] = format
	}
}

// New creates a Loader that understands ".json", ".yaml" and ".yml", plus any formats
// added through options.
func New(opts ...Option) *Loader {
	l := &Loader{
		formats: map[string]Format{
			".json": JSON,
			".yaml": YAML,
			".yml":  YAML,
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Extensions returns the registered file extensions in sorted order.
func (l *Loader) Extensions() []string {
	exts := make([]string, 0, len(l.formats))
	for ext := range l.formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// FormatFor returns the format registered for the extension of path.
// The match is case-sensitive.
func (l *Loader) FormatFor(path string) (Format, error) {
	format, ok := l.formats[filepath.Ext(path)]
	if !ok {
		return Format{}, errors.Wrapf(ErrUnsupportedFormat, "document %q (supported: %v)", path, l.Extensions())
	}
	return format, nil
}

// Load reads the document at path and parses it with the format selected by its
// extension.
//
// Returns:
//   - ErrUnsupportedFormat if the extension is not registered
//   - ErrNotFound if the file does not exist
//   - a *ParseError (matching ErrMalformedDocument) if the content cannot be parsed
func (l *Loader) Load(path string) (*node.Node, error) {
	format, err := l.FormatFor(path)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- loading caller-chosen documents is the purpose of this function
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(ErrNotFound, "document %q", path)
		}
		return nil, errors.Wrapf(err, "error reading document %q", path)
	}

	tree, err := format.Parse(data)
	if err != nil {
		return nil, &ParseError{Path: path, Format: format.Name, Err: err}
	}

	log.Debug().Str("file", path).Str("format", format.Name).Msg("Loaded configuration document")
	return tree, nil
}

// Parse parses in-memory content with the given format.
func Parse(data []byte, format Format) (*node.Node, error) {
	tree, err := format.Parse(data)
	if err != nil {
		return nil, &ParseError{Format: format.Name, Err: err}
	}
	return tree, nil
}

// Load reads a document with the default set of formats.
func Load(path string) (*node.Node, error) {
	return New().Load(path)
}
