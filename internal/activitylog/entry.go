// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

// Package activitylog is the operator-facing sync log.
//
// Every decision the sync engine makes is written as a classified line
// ("Error: ...", "Warning: ...", "Success: ...", "Info: ...", "Debug: ...")
// so an operator can reconstruct what happened from the admin API alone.
// The sink keeps only the most recent MaxEntries lines.
package activitylog

import (
	"context"
	"strings"
	"time"
)

// MaxEntries is the number of most recent entries a sink keeps.
const MaxEntries = 100

// Level is derived from an entry's message prefix.
type Level string

// Levels, in prefix order.
const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
)

var prefixes = []struct {
	prefix string
	level  Level
}{
	{"Error:", LevelError},
	{"Warning:", LevelWarning},
	{"Success:", LevelSuccess},
	{"Info:", LevelInfo},
	{"Debug:", LevelDebug},
}

// Classify returns the level of message. Unprefixed messages are info.
func Classify(message string) Level {
	for _, p := range prefixes {
		if strings.HasPrefix(message, p.prefix) {
			return p.level
		}
	}
	return LevelInfo
}

// Entry is one log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Level     Level     `json:"level"`
}

// Sink stores entries, keeping only the most recent MaxEntries.
type Sink interface {
	// Append stores entry, evicting the oldest entries beyond the cap.
	Append(ctx context.Context, entry Entry) error

	// Entries returns the stored entries, oldest first.
	Entries(ctx context.Context) ([]Entry, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error
}

// keepTail returns the last n entries of s.
func keepTail(s []Entry, n int) []Entry {
	if len(s) <= n {
		return s
	}
	return append([]Entry(nil), s[len(s)-n:]...)
}
