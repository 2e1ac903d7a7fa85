package logger

// Logger exposes logging methods for common severity levels. Components receive
// a Logger already tagged with their name.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	// Warnw logs a warning with structured fields.
	Warnw(msg string, fields map[string]any)
	Errorf(format string, args ...any)
}
