// Package logging builds the process-wide zerolog.Logger, with a
// console-writer setup keyed off Config instead of being hardcoded to
// stderr-console.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger for level (debug|info|warn|error) and format
// (console|json). Console mode is meant for local development; json is the
// production default most deployments should run with.
func New(level, format string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var out zerolog.Logger
	if format == "json" {
		out = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
	return out.Level(lvl)
}
