// Package phuslulog adapts github.com/phuslu/log to the credentials Logger.
package phuslulog

import (
	"io"
	"os"

	credentials "github.com/goliatone/go-credentials"
	"github.com/phuslu/log"
)

// Logger writes credential logs through a phuslu logger.
type Logger struct {
	logger *log.Logger
	name   string
}

var _ credentials.Logger = (*Logger)(nil)

// New returns a Logger writing to w at level. Console output is used when
// console is true, JSON lines otherwise.
func New(w io.Writer, level string, console bool) *Logger {
	if w == nil {
		w = os.Stderr
	}

	var writer log.Writer = &log.IOWriter{Writer: w}
	if console {
		writer = &log.ConsoleWriter{Writer: w}
	}

	return &Logger{
		logger: &log.Logger{
			Level:      log.ParseLevel(level),
			TimeFormat: "15:04:05",
			Writer:     writer,
		},
	}
}

// Named returns a logger sharing the same writer tagged with name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{logger: l.logger, name: name}
}

func (l *Logger) Debug(format string, args ...any) {
	l.entry(l.logger.Debug()).Msgf(format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.entry(l.logger.Info()).Msgf(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.entry(l.logger.Warn()).Msgf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.entry(l.logger.Error()).Msgf(format, args...)
}

func (l *Logger) entry(e *log.Entry) *log.Entry {
	if l.name != "" {
		return e.Str("logger", l.name)
	}
	return e
}

// Provider hands out named loggers.
type Provider struct {
	root *Logger
}

var _ credentials.LoggerProvider = (*Provider)(nil)

func NewProvider(root *Logger) *Provider {
	return &Provider{root: root}
}

func (p *Provider) GetLogger(name string) credentials.Logger {
	return p.root.Named(name)
}
