/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package logger is a small structured-logging wrapper over logrus, built
// around a FuncLog injection pattern: a zero-value-safe accessor passed
// through constructors instead of a global logger, without a hook/entry/
// multi-writer pipeline behind it.
package logger

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Level mirrors the handful of severities every component here logs at.
type Level uint8

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) logrus() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger is the surface every edged component that logs actually calls.
// message is a printf-style format string; data, when non-nil, is attached
// as a structured "data" field; args feed message's verbs.
type Logger interface {
	SetLevel(lvl Level)

	Debug(message string, data interface{}, args ...interface{})
	Info(message string, data interface{}, args ...interface{})
	Warning(message string, data interface{}, args ...interface{})
	Error(message string, data interface{}, args ...interface{})
	Fatal(message string, data interface{}, args ...interface{})
}

// FuncLog is injected through constructors as a nil-safe accessor, not a
// package-level global, so tests can pass nil and every call site degrades
// to a silent no-op.
type FuncLog func() Logger

type logger struct {
	ctx context.Context
	log *logrus.Logger
}

// New returns a Logger backed by a fresh logrus.Logger at InfoLevel.
func New(ctx context.Context) Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return &logger{ctx: ctx, log: l}
}

func (l *logger) SetLevel(lvl Level) {
	l.log.SetLevel(lvl.logrus())
}

func (l *logger) entry(data interface{}) *logrus.Entry {
	if data == nil {
		return logrus.NewEntry(l.log)
	}
	return l.log.WithField("data", data)
}

func (l *logger) Debug(message string, data interface{}, args ...interface{}) {
	l.entry(data).Debugf(message, args...)
}

func (l *logger) Info(message string, data interface{}, args ...interface{}) {
	l.entry(data).Infof(message, args...)
}

func (l *logger) Warning(message string, data interface{}, args ...interface{}) {
	l.entry(data).Warnf(message, args...)
}

func (l *logger) Error(message string, data interface{}, args ...interface{}) {
	l.entry(data).Errorf(message, args...)
}

func (l *logger) Fatal(message string, data interface{}, args ...interface{}) {
	l.entry(data).Errorf(message, args...)
}

// Logf is the nil-safe call that acme, cgi, proxyprocessor and runtime
// route their logging through instead of repeating
// "if log == nil { return }; if l := log(); l != nil" inline (httpserver
// keeps its own inline check). A nil log or a log() returning nil is a
// silent no-op.
func Logf(log FuncLog, lvl Level, data interface{}, format string, args ...interface{}) {
	if log == nil {
		return
	}
	l := log()
	if l == nil {
		return
	}

	switch lvl {
	case DebugLevel:
		l.Debug(format, data, args...)
	case WarnLevel:
		l.Warning(format, data, args...)
	case ErrorLevel:
		l.Error(format, data, args...)
	case FatalLevel:
		l.Fatal(format, data, args...)
	default:
		l.Info(format, data, args...)
	}
}

// LogErrorCtxf logs err at ErrorLevel through log. ctx lets a cancelled
// deadline be noted in the message rather than suppressing the log line,
// since a shutting-down binding's final error is still worth recording.
func LogErrorCtxf(ctx context.Context, log FuncLog, msg string, err error, args ...interface{}) {
	if log == nil || err == nil {
		return
	}
	l := log()
	if l == nil {
		return
	}

	if ctx != nil && ctx.Err() != nil {
		msg = msg + fmt.Sprintf(" (context: %s)", ctx.Err())
	}

	l.Error(msg, err, args...)
}
