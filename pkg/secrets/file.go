package secrets

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// FileSecretConfig is the "file_resolver" section of a providers file.
type FileSecretConfig struct {
	SecretsDir string `yaml:"secrets_dir"`
}

// Validate requires SecretsDir to name an existing directory.
func (f FileSecretConfig) Validate() error {
	if f.SecretsDir == "" {
		return errors.New("secrets_dir is required for file resolver")
	}

	info, err := os.Stat(f.SecretsDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errors.Errorf("secrets_dir %q does not exist", f.SecretsDir)
	case err != nil:
		return errors.Wrapf(err, "error accessing secrets_dir %q", f.SecretsDir)
	case !info.IsDir():
		return errors.Errorf("secrets_dir %q is not a directory", f.SecretsDir)
	}
	return nil
}

// CreateClient validates the section and returns the provider it describes.
func (f FileSecretConfig) CreateClient() (*FileSecretLoader, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return NewFileSecretLoader(f.SecretsDir), nil
}

// FileSecretLoader serves "@file.KEY" targets from the files of a directory, such as
// mounted Docker or Kubernetes secrets:
//
//	password:
//	  $ref: "@file.db_password"   # contents of <secretsDir>/db_password
//
// Surrounding whitespace is trimmed from the file contents.
type FileSecretLoader struct {
	secretsDir string
}

func NewFileSecretLoader(secretsDir string) *FileSecretLoader {
	return &FileSecretLoader{secretsDir: secretsDir}
}

// Resolve returns the trimmed contents of the file named by key. Keys are relative to
// the secrets directory and may not leave it.
func (f *FileSecretLoader) Resolve(key string) (string, error) {
	path, err := f.confine(key)
	if err != nil {
		return "", err
	}

	// #nosec G304 -- confine keeps path inside the secrets directory
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", errors.Wrapf(ErrSecretNotFound, "no secret file %q", key)
	case err != nil:
		return "", errors.Wrapf(err, "failed to read secret file %q", key)
	}

	log.Info().Str("file", path).Msg("Retrieved secret from file")
	return strings.TrimSpace(string(content)), nil
}

// confine maps key to an absolute path under the secrets directory.
func (f *FileSecretLoader) confine(key string) (string, error) {
	switch {
	case f.secretsDir == "":
		return "", errors.New("no secrets directory configured")
	case key == "":
		return "", errors.New("no file specified for file secret")
	case filepath.IsAbs(key):
		return "", errors.New("invalid secret key: absolute paths not allowed")
	}

	clean := filepath.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("invalid secret key: path traversal detected")
	}

	dir, err := filepath.Abs(f.secretsDir)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve secrets directory")
	}
	path := filepath.Join(dir, clean)
	if !strings.HasPrefix(path, dir+string(filepath.Separator)) {
		return "", errors.New("invalid secret key: outside secrets directory")
	}
	return path, nil
}

func (f *FileSecretLoader) Name() string {
	return "File"
}
