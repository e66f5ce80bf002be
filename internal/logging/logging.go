// Package logging builds the component loggers used across the
// process. Each component gets a bracketed prefix so interleaved lines
// stay attributable.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a stderr logger with a "[component] " prefix.
func New(component string) *log.Logger {
	return log.New(os.Stderr, "["+component+"] ", log.LstdFlags)
}

// NewFile returns a component logger writing to both stderr and a
// size-rotated file. An empty path falls back to stderr only.
func NewFile(component, path string) *log.Logger {
	if path == "" {
		return New(component)
	}
	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	return log.New(io.MultiWriter(os.Stderr, sink), "["+component+"] ", log.LstdFlags)
}
