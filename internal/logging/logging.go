// Copyright AGNTCY Contributors (https://github.com/agntcy)
// SPDX-License-Identifier: Apache-2.0

// Package logging hands out component-tagged loggers built on the first
// call to Logger. There is no file/format/level configuration layer here
// (no environment variables, no config struct): the library writes
// text-formatted logs to stderr at info level, same as any other slog
// consumer that hasn't opted into something fancier.
package logging

import (
	"log/slog"
	"os"
	"sync"
)

var once sync.Once

func ensureDefault() {
	once.Do(func() {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
		slog.SetDefault(slog.New(handler))
	})
}

// Logger returns a logger tagged with component, so log lines can be
// attributed to the dispatcher, the registry, or a particular publisher
// instance.
func Logger(component string) *slog.Logger {
	ensureDefault()

	return slog.Default().With("component", component)
}
