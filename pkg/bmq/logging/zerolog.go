package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// ZerologAdapter adapts a zerolog.Logger to the Logger interface.
type ZerologAdapter struct {
	logger zerolog.Logger
}

func NewZerolog(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// New builds a JSON logger writing to w at the named level.
func New(w io.Writer, level string) (*ZerologAdapter, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := zerolog.New(w).Level(lvl).With().Timestamp().Str("component", "bmq").Logger()

	return NewZerolog(logger), nil
}

// Nop returns a logger that discards everything.
func Nop() *ZerologAdapter {
	return NewZerolog(zerolog.Nop())
}

// ParseLevel maps a level name to a zerolog level. An empty name selects info.
func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return lvl, nil
}

func (l *ZerologAdapter) Info() LogEvent  { return &zerologEvent{event: l.logger.Info()} }
func (l *ZerologAdapter) Warn() LogEvent  { return &zerologEvent{event: l.logger.Warn()} }
func (l *ZerologAdapter) Error() LogEvent { return &zerologEvent{event: l.logger.Error()} }
func (l *ZerologAdapter) Debug() LogEvent { return &zerologEvent{event: l.logger.Debug()} }

// Zerolog exposes the wrapped logger.
func (l *ZerologAdapter) Zerolog() zerolog.Logger { return l.logger }

// zerologEvent wraps *zerolog.Event. A nil event (disabled level) is a no-op.
type zerologEvent struct {
	event *zerolog.Event
}

func (e *zerologEvent) Msg(msg string) { e.event.Msg(msg) }

func (e *zerologEvent) Err(err error) LogEvent {
	e.event = e.event.Err(err)

	return e
}

func (e *zerologEvent) Str(key, value string) LogEvent {
	e.event = e.event.Str(key, value)

	return e
}

func (e *zerologEvent) Int(key string, value int) LogEvent {
	e.event = e.event.Int(key, value)

	return e
}

func (e *zerologEvent) Uint64(key string, value uint64) LogEvent {
	e.event = e.event.Uint64(key, value)

	return e
}
