package log

import "sync/atomic"

var defaultLogger atomic.Pointer[Logger]

// SetDefaultLogger sets the process-wide default logger. The CLI installs the
// logger built from flags and config; packages without one of their own use it.
func SetDefaultLogger(logger *Logger) {
	defaultLogger.Store(logger)
}

// DefaultLogger returns the process-wide logger, a warn-level stderr logger
// until SetDefaultLogger is called.
func DefaultLogger() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	defaultLogger.CompareAndSwap(nil, Default())
	return defaultLogger.Load()
}
