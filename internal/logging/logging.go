// Package logging configures the global zerolog logger and bridges pion's
// internal logging into it.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup installs a console logger writing to w at the given level.
// stdout carries video, so callers pass stderr.
func Setup(level string, w io.Writer) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}).
		With().Timestamp().Logger()
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// PionFactory implements logging.LoggerFactory on top of zerolog.
type PionFactory struct {
	Logger zerolog.Logger
}

// NewPionFactory returns a factory bound to the global logger.
func NewPionFactory() *PionFactory {
	return &PionFactory{Logger: log.Logger}
}

// NewLogger implements logging.LoggerFactory.
func (f *PionFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{l: f.Logger.With().Str("module", "pion").Str("scope", scope).Logger()}
}

// pionLogger demotes pion's info output to debug; pion is chatty.
type pionLogger struct {
	l zerolog.Logger
}

func (p *pionLogger) Trace(msg string)                  { p.l.Trace().Msg(msg) }
func (p *pionLogger) Tracef(format string, args ...any) { p.l.Trace().Msgf(format, args...) }
func (p *pionLogger) Debug(msg string)                  { p.l.Trace().Msg(msg) }
func (p *pionLogger) Debugf(format string, args ...any) { p.l.Trace().Msgf(format, args...) }
func (p *pionLogger) Info(msg string)                   { p.l.Debug().Msg(msg) }
func (p *pionLogger) Infof(format string, args ...any)  { p.l.Debug().Msgf(format, args...) }
func (p *pionLogger) Warn(msg string)                   { p.l.Warn().Msg(msg) }
func (p *pionLogger) Warnf(format string, args ...any)  { p.l.Warn().Msgf(format, args...) }
func (p *pionLogger) Error(msg string)                  { p.l.Error().Msg(msg) }
func (p *pionLogger) Errorf(format string, args ...any) { p.l.Error().Msgf(format, args...) }
