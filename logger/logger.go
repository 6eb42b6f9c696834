package logger

import (
	"io"
	"os"

	"github.com/hlcollector/liqmap/config"
	"github.com/rs/zerolog"
)

// New returns a configured zerolog.Logger, writing human-readable console
// output in development mode and JSON lines to stderr otherwise.
// cfg.LogLevel sets the global level; if it does not parse, development mode
// falls back to debug and other modes to info.
func New(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stderr
	if cfg.IsDevelopment() {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
		if cfg.IsDevelopment() {
			lvl = zerolog.DebugLevel
		}
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(out).With().Timestamp().Logger()
}
