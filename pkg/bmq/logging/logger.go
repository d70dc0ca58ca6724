// Package logging defines the narrow logging surface used across the client and
// its zerolog backed implementation.
package logging

// Logger defines a simple logging interface to avoid tying packages to a backend.
type Logger interface {
	Info() LogEvent
	Warn() LogEvent
	Error() LogEvent
	Debug() LogEvent
}

// LogEvent defines a simple log event interface.
type LogEvent interface {
	Msg(string)
	Err(error) LogEvent
	Str(string, string) LogEvent
	Int(string, int) LogEvent
	Uint64(string, uint64) LogEvent
}
