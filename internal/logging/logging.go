package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewPaymentLogger builds the payment audit logger. Provider call failures
// and raw callback payloads land here so a disputed transaction can be
// replayed later; the file rotates so the audit trail survives restarts.
func NewPaymentLogger(filePath string) *slog.Logger {
	_ = os.MkdirAll(filepath.Dir(filePath), 0o755)

	rot := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
	}
	mw := io.MultiWriter(os.Stdout, rot)

	h := slog.NewJSONHandler(mw, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h).With("component", "payment")
}

// Discard returns a logger that drops everything. Handy default for tests
// and for constructors that accept a nil logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
