package config

import (
	"os"

	"github.com/rs/zerolog/log"
)

// checkPermissions warns about files that anyone but their owner may access. It never
// fails; missing files are reported by the loaders.
func checkPermissions(paths ...string) {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			log.Warn().
				Str("file", path).
				Str("mode", perm.String()).
				Msg("Configuration file is accessible by group or others, consider restricting it to its owner")
		}
	}
}
