// Package logging configures the global zerolog logger for command-line use.
package logging

import (
	"io"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TimeFormat is the timestamp layout of console output.
const TimeFormat = "2006-01-02 15:04:05"

// Setup sends the global logger to out in human-readable form, colored when out is a
// terminal. Debug messages are written only when debug is set.
func Setup(out io.Writer, debug bool) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    !isTerminal(out),
		TimeFormat: TimeFormat,
	})
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(interface{ Fd() uintptr })
	return ok && isatty.IsTerminal(f.Fd())
}
