// Package logger provides the relay's leveled logging. No structured
// logging library appears anywhere in the retrieval pack (teacher or
// otherwise), so this wraps the standard log package with the same
// Info/Warn/Error/Debug call-site shape every other package in this module
// uses.
package logger

import (
	"log"
	"os"
	"sync/atomic"
)

var std = log.New(os.Stderr, "", log.LstdFlags)

var debugEnabled atomic.Bool

// SetDebug toggles whether Debug-level messages are emitted, driven by the
// debug-logging config key.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

func Info(format string, args ...any) {
	std.Printf("[INFO] "+format, args...)
}

func Warn(format string, args ...any) {
	std.Printf("[WARN] "+format, args...)
}

func Error(format string, args ...any) {
	std.Printf("[ERROR] "+format, args...)
}

func Debug(format string, args ...any) {
	if debugEnabled.Load() {
		std.Printf("[DEBUG] "+format, args...)
	}
}
