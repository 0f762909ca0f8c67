// Package logger configures the process-wide zerolog logger used by every
// other package in this daemon.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

var once sync.Once
var zLogger zerolog.Logger

// DebugMode forces DebugLevel regardless of LOG_LEVEL, and switches the
// writer to the human-readable console format. Set from the --debug flag
// before the first call to GetLogger.
var DebugMode bool

/*
zerolog allows for logging at the following levels (from highest to lowest):
	panic (zerolog.PanicLevel, 5)
	fatal (zerolog.FatalLevel, 4)
	error (zerolog.ErrorLevel, 3)
	warn  (zerolog.WarnLevel, 2)
	info  (zerolog.InfoLevel, 1)
	debug (zerolog.DebugLevel, 0)
	trace (zerolog.TraceLevel, -1)
*/

// GetLogger returns the process-wide logger, initializing it on first call.
func GetLogger() zerolog.Logger {
	once.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

		level := parseLevel(os.Getenv("LOG_LEVEL"))
		if DebugMode {
			level = zerolog.DebugLevel
		}

		var output io.Writer = os.Stdout
		if DebugMode {
			output = zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: time.RFC3339,
			}
		}

		zerolog.SetGlobalLevel(level)
		zLogger = zerolog.New(output).Level(level).With().Timestamp().Logger()

		// internal/* packages log through the zerolog/log package-global
		// logger rather than threading a *zerolog.Logger through every
		// call; point it at the same configured logger so --debug and
		// LOG_LEVEL apply there too.
		log.Logger = zLogger
	})
	return zLogger
}

// parseLevel defaults to InfoLevel for an empty or unrecognized value,
// rather than failing startup over a logging preference.
func parseLevel(raw string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || raw == "" {
		return zerolog.InfoLevel
	}
	return level
}
