// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package logging wires the process-wide slog handler: a readable
// console handler for interactive lockdownctl invocations, or a
// structured JSON handler when piping into a log aggregator.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"hermannm.dev/devlog"
)

var once sync.Once

// Setup installs the process-wide slog default handler for the given
// level and output format. It is idempotent: only the first call takes
// effect, matching a CLI process that calls it from the running
// subcommand's PreRunE.
func Setup(level string, useJSON bool) {
	once.Do(func() {
		slog.SetDefault(slog.New(newHandler(os.Stderr, level, useJSON)))
	})
}

func newHandler(w io.Writer, level string, useJSON bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if useJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return devlog.NewHandler(w, &devlog.Options{Level: opts.Level})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
