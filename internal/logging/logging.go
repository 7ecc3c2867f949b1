package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init points the global logger at path, falling back to stderr when the file
// cannot be opened or no path is configured.
func Init(level zerolog.Level, path string) {
	var (
		out     io.Writer = os.Stderr
		openErr error
	)
	if path != "" {
		os.MkdirAll(filepath.Dir(path), 0755)
		logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			openErr = err
		} else {
			out = zerolog.MultiLevelWriter(logFile, os.Stderr)
		}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	if openErr != nil {
		log.Warn().Err(openErr).Str("path", path).Msg("Could not open log file, logging to stderr")
	}
	if level == zerolog.DebugLevel {
		log.Debug().Msg("Log level set to DEBUG")
	}
}
