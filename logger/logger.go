// Package logger provides kfs's structured logging, grounded on gcsfuse's
// own approach: severity-leveled log/slog records rather than a
// third-party structured logger, since that is what the pack's own
// logging-heavy repository (gcsfuse) reaches for. File-based logging is
// rotated with gopkg.in/natefinch/lumberjack.v2, a real gcsfuse
// dependency.
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// Init switches logging to path (rotated via lumberjack) instead of
// stderr. Passing an empty path restores stderr logging.
func Init(path string, maxSizeMB, maxBackups, maxAgeDays int) {
	var w io.Writer = os.Stderr
	if path != "" {
		w = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		}
	}
	current.Store(slog.New(slog.NewJSONHandler(w, nil)))
}

func l() *slog.Logger { return current.Load() }

// NewOpID returns a fresh correlation id to attach to one high-level
// operation's log lines (Create, Link, Unlink, ...).
func NewOpID() string { return uuid.NewString() }

// Op logs entry of a high-level operation at debug level.
func Op(opID, op string, args ...any) {
	l().Debug(op, append([]any{"op_id", opID}, args...)...)
}

// OpDone logs completion of a high-level operation, including an error if
// non-nil.
func OpDone(opID, op string, err error) {
	if err != nil {
		l().Debug(op+" failed", "op_id", opID, "err", err)
		return
	}
	l().Debug(op+" ok", "op_id", opID)
}

// Error logs a non-fatal but noteworthy condition.
func Error(msg string, args ...any) { l().Error(msg, args...) }

// Fatal logs a condition immediately before the caller panics, so a
// corruption or resource-exhaustion event per spec.md §7 always leaves a
// structured trace, not just a bare panic message.
func Fatal(msg string) { l().Error("fatal: " + msg) }
