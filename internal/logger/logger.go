// Package logger builds the structured loggers used throughout stormsurge.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatTint = "tint"
)

// New returns a logger writing to w at level in the given format.
func New(level slog.Level, format string, w io.Writer) (*slog.Logger, error) {
	var h slog.Handler
	switch format {
	case FormatText, "":
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case FormatJSON:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case FormatTint:
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(h), nil
}

// Err returns the attribute errors are logged under.
func Err(err error) slog.Attr {
	return slog.Any("err", err)
}
