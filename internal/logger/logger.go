// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

// Package logger defines the logging facade used throughout the module.
// The library never picks a sink itself; host applications pass whatever
// *slog.Logger they already use and everything here funnels into it.
package logger

import (
	"context"
	"log/slog"
)

type Level string

const (
	Info  Level = "info"
	Err   Level = "error"
	Warn  Level = "warn"
	Debug Level = "debug"
)

// LoggerInterface defines the methods that a logger should implement.
type LoggerInterface interface {
	Log(ctx context.Context, level Level, message string, fields ...any)
}

type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Log(ctx context.Context, level Level, message string, fields ...any) {
	switch level {
	case Err:
		s.logger.ErrorContext(ctx, message, fields...)
	case Warn:
		s.logger.WarnContext(ctx, message, fields...)
	case Debug:
		s.logger.DebugContext(ctx, message, fields...)
	default:
		s.logger.InfoContext(ctx, message, fields...)
	}
}

// New adapts a *slog.Logger to LoggerInterface.
func New(l *slog.Logger) LoggerInterface {
	if l == nil {
		return Nop()
	}
	return slogAdapter{logger: l}
}

type nop struct{}

func (nop) Log(ctx context.Context, level Level, message string, fields ...any) {}

// Nop returns a logger that discards everything.
func Nop() LoggerInterface {
	return nop{}
}
