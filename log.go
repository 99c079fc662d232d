/*
@Language: Go 1.23.4
*/

package norm

import (
	"io"
	"log/slog"
)

// NewLogger returns a text-handler slog.Logger writing to w at the
// given level, suitable as a Session's default logger when the
// embedder does not supply one.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// discardLogger is used when a Session is built without an explicit
// logger, so log calls never need a nil check.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
