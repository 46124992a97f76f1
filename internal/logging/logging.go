// Package logging builds the zerolog loggers used across netsniff.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const componentFieldName = "component"

// Options controls logger construction.
type Options struct {
	Level   string    // debug, info, warn or error
	JSON    bool      // plain JSON lines instead of the console format
	Out     io.Writer // defaults to os.Stderr
	NoColor bool
}

// ParseLevel maps a config level name to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// New returns a timestamped logger writing to opts.Out.
func New(opts Options) (zerolog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    opts.NoColor,
			TimeFormat: time.RFC3339,
			PartsOrder: []string{
				zerolog.TimestampFieldName,
				zerolog.LevelFieldName,
				componentFieldName,
				zerolog.MessageFieldName,
			},
			FormatPrepare: func(m map[string]any) error {
				if c, ok := m[componentFieldName].(string); ok {
					m[componentFieldName] = fmt.Sprintf("[%s]", c)
				} else {
					m[componentFieldName] = ""
				}
				return nil
			},
			FieldsExclude: []string{componentFieldName},
		}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str(componentFieldName, name).Logger()
}
