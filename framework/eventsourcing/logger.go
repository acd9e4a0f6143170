package eventsourcing

import (
	"log"
	"os"
)

// Logger is the minimal logging contract a BatchDriver accepts. It exists
// so callers can route projector diagnostics into whatever logging
// infrastructure they already run, without this module depending on any
// particular one.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// noopLogger discards everything. Used when no Logger option is given.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

// StdLogger is a ready-made Logger backed by the standard log package,
// prefixing each line with its level.
type StdLogger struct {
	logger *log.Logger
}

// NewStdLogger builds a StdLogger writing to os.Stderr with the standard
// date/time prefix.
func NewStdLogger() *StdLogger {
	return &StdLogger{logger: log.New(os.Stderr, "", log.LstdFlags)}
}

func (l *StdLogger) Debug(format string, args ...interface{}) { l.logger.Printf("DEBUG "+format, args...) }
func (l *StdLogger) Info(format string, args ...interface{})  { l.logger.Printf("INFO "+format, args...) }
func (l *StdLogger) Warn(format string, args ...interface{})  { l.logger.Printf("WARN "+format, args...) }
func (l *StdLogger) Error(format string, args ...interface{}) { l.logger.Printf("ERROR "+format, args...) }
