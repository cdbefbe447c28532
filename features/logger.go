package features

import (
	"context"

	"github.com/ggoodman/mcp-engine-go/mcp"
)

// Logger forwards log messages to the client as notifications/message,
// dropping anything below the level the client set with logging/setLevel.
type Logger struct {
	set  *Set
	name string
}

// Named returns a logger that tags messages with name.
func (l *Logger) Named(name string) *Logger { return &Logger{set: l.set, name: name} }

// Enabled reports whether level would be forwarded.
func (l *Logger) Enabled(level mcp.LoggingLevel) bool {
	return level.Severity() >= l.set.sess.LogLevel().Severity()
}

// Log forwards data at level.
func (l *Logger) Log(ctx context.Context, level mcp.LoggingLevel, data any) error {
	if !l.Enabled(level) {
		return nil
	}
	return l.set.notify(ctx, mcp.LoggingMessageNotificationMethod, mcp.LoggingMessageNotification{
		Level:  level,
		Data:   data,
		Logger: l.name,
	})
}

func (l *Logger) Debug(ctx context.Context, data any) error {
	return l.Log(ctx, mcp.LoggingLevelDebug, data)
}

func (l *Logger) Info(ctx context.Context, data any) error {
	return l.Log(ctx, mcp.LoggingLevelInfo, data)
}

func (l *Logger) Warning(ctx context.Context, data any) error {
	return l.Log(ctx, mcp.LoggingLevelWarning, data)
}

func (l *Logger) Error(ctx context.Context, data any) error {
	return l.Log(ctx, mcp.LoggingLevelError, data)
}
