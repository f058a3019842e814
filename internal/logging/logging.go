// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to out. format is "console" or "json".
func New(level, format string, out io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	switch strings.ToLower(format) {
	case "", "console":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	case "json":
		logger = zerolog.New(out)
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", format)
	}

	return logger.Level(lvl).With().Timestamp().Logger(), nil
}
