// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package logging provides structured logging for the control plane, backed
// by zerolog.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Level represents a log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Field represents a key-value pair attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

// NewField creates a new field.
func NewField(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger provides structured logging to the rest of the control plane.
// Callers never reference zerolog directly so the backend can change without
// touching call sites.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

type zlogger struct {
	z zerolog.Logger
}

// New creates a Logger writing to w at the given level. Pass nil for w to
// default to os.Stderr.
func New(w io.Writer, level Level) Logger {
	if w == nil {
		w = os.Stderr
	}
	z := zerolog.New(w).Level(level.zerolog()).With().Timestamp().Logger()
	return &zlogger{z: z}
}

// NewDefault creates a Logger at LevelInfo (LevelDebug when verbose is true)
// writing to os.Stderr, matching the CLI's --verbose flag.
func NewDefault(verbose bool) Logger {
	level := LevelInfo
	if verbose {
		level = LevelDebug
	}
	return New(os.Stderr, level)
}

func (l *zlogger) event(level Level) *zerolog.Event {
	switch level {
	case LevelDebug:
		return l.z.Debug()
	case LevelWarn:
		return l.z.Warn()
	case LevelError:
		return l.z.Error()
	default:
		return l.z.Info()
	}
}

func (l *zlogger) log(level Level, msg string, fields ...Field) {
	ev := l.event(level)
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}

func (l *zlogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields...) }
func (l *zlogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields...) }
func (l *zlogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields...) }
func (l *zlogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields...) }

func (l *zlogger) WithFields(fields ...Field) Logger {
	ctx := l.z.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &zlogger{z: ctx.Logger()}
}
