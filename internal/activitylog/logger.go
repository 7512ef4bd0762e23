// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package activitylog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/contactsync/internal/logging"
	"github.com/tomtom215/contactsync/internal/metrics"
)

// Listener receives every entry after it is stored.
type Listener func(Entry)

// Logger writes classified entries to a Sink, mirrors them to zerolog and
// notifies listeners. It is safe for concurrent use.
type Logger struct {
	sink  Sink
	debug func() bool
	now   func() time.Time

	mu        sync.RWMutex
	listeners []Listener
}

// NewLogger creates a Logger over sink. debug is consulted on every Debugf
// call so a settings reload takes effect immediately; nil disables debug
// entries.
func NewLogger(sink Sink, debug func() bool) *Logger {
	if debug == nil {
		debug = func() bool { return false }
	}
	return &Logger{sink: sink, debug: debug, now: time.Now}
}

// OnEntry registers a listener.
func (l *Logger) OnEntry(fn Listener) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Log appends message as is. The level comes from its prefix.
func (l *Logger) Log(ctx context.Context, message string) {
	entry := Entry{
		Timestamp: l.now().UTC(),
		Message:   message,
		Level:     Classify(message),
	}

	if err := l.sink.Append(ctx, entry); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("failed to append activity log entry")
	}
	metrics.ActivityLogEntries.WithLabelValues(string(entry.Level)).Inc()

	logging.Ctx(ctx).WithLevel(zerologLevel(entry.Level)).
		Str("component", "activitylog").
		Msg(message)

	l.mu.RLock()
	listeners := l.listeners
	l.mu.RUnlock()
	for _, fn := range listeners {
		fn(entry)
	}
}

// Errorf logs "Error: <msg>".
func (l *Logger) Errorf(ctx context.Context, format string, args ...interface{}) {
	l.Log(ctx, "Error: "+fmt.Sprintf(format, args...))
}

// Warnf logs "Warning: <msg>".
func (l *Logger) Warnf(ctx context.Context, format string, args ...interface{}) {
	l.Log(ctx, "Warning: "+fmt.Sprintf(format, args...))
}

// Successf logs "Success: <msg>".
func (l *Logger) Successf(ctx context.Context, format string, args ...interface{}) {
	l.Log(ctx, "Success: "+fmt.Sprintf(format, args...))
}

// Infof logs "Info: <msg>".
func (l *Logger) Infof(ctx context.Context, format string, args ...interface{}) {
	l.Log(ctx, "Info: "+fmt.Sprintf(format, args...))
}

// Debugf logs "Debug: <msg>" when debug mode is on.
func (l *Logger) Debugf(ctx context.Context, format string, args ...interface{}) {
	if !l.DebugEnabled() {
		return
	}
	l.Log(ctx, "Debug: "+fmt.Sprintf(format, args...))
}

// DebugEnabled reports whether Debugf entries are recorded.
func (l *Logger) DebugEnabled() bool {
	return l.debug()
}

// Recent returns the stored entries, newest first.
func (l *Logger) Recent(ctx context.Context) ([]Entry, error) {
	entries, err := l.sink.Entries(ctx)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Clear removes every stored entry.
func (l *Logger) Clear(ctx context.Context) error {
	return l.sink.Clear(ctx)
}

func zerologLevel(level Level) zerolog.Level {
	switch level {
	case LevelError:
		return zerolog.ErrorLevel
	case LevelWarning:
		return zerolog.WarnLevel
	case LevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}
