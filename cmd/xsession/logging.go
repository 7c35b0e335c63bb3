package main

import "log/slog"

// redirectDefaultLogger swaps the default logger and returns a func
// restoring the previous one.
func redirectDefaultLogger(l *slog.Logger) func() {
	prev := slog.Default()
	slog.SetDefault(l)
	return func() { slog.SetDefault(prev) }
}
