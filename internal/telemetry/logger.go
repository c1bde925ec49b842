// Package telemetry installs the process-wide structured logger.
package telemetry

import (
	"context"
	"log/slog"
	"os"
)

// InitLogger sets the slog default for the daemon: JSON records to stdout,
// debug level when verbose, and a duplicate stream to logFile when set. A
// log file that cannot be opened is reported and skipped; the daemon never
// refuses to start over logging.
func InitLogger(verbose bool, logFile string) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			slog.Error("cannot open log file, stdout only", "path", logFile, "error", err)
		} else {
			handler = &teeHandler{out: []slog.Handler{
				handler,
				slog.NewJSONHandler(f, opts),
			}}
		}
	}

	slog.SetDefault(slog.New(handler))
}

// teeHandler duplicates every record to each destination. Enabled when any
// destination is; Handle stops at the first write error.
type teeHandler struct {
	out []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.out {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range t.out {
		if err := h.Handle(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(t.out))
	for i, h := range t.out {
		out[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{out: out}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(t.out))
	for i, h := range t.out {
		out[i] = h.WithGroup(name)
	}
	return &teeHandler{out: out}
}
