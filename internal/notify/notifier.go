// Package notify delivers operator-facing notifications about agent
// lifecycle events such as completed experiments and failed updates.
package notify

import (
	"context"
	"time"

	"chamber-agent/internal/observability"

	"github.com/google/uuid"
)

// Level classifies a notification for routing and display.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Notification is a single operator-facing event.
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier publishes notifications. Implementations must be safe for
// concurrent use and must never block the caller on delivery failures.
type Notifier interface {
	Success(ctx context.Context, title, message string)
	Error(ctx context.Context, title, message string)
	Warning(ctx context.Context, title, message string)
	Info(ctx context.Context, title, message string)
}

func newNotification(level Level, title, message string) Notification {
	return Notification{
		ID:        uuid.New().String(),
		Level:     level,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// LogNotifier writes notifications to the structured log. It is the
// default sink when no message broker is configured.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Success(ctx context.Context, title, message string) {
	n.publish(ctx, LevelSuccess, title, message)
}

func (n *LogNotifier) Error(ctx context.Context, title, message string) {
	n.publish(ctx, LevelError, title, message)
}

func (n *LogNotifier) Warning(ctx context.Context, title, message string) {
	n.publish(ctx, LevelWarning, title, message)
}

func (n *LogNotifier) Info(ctx context.Context, title, message string) {
	n.publish(ctx, LevelInfo, title, message)
}

func (n *LogNotifier) publish(ctx context.Context, level Level, title, message string) {
	logger := observability.FromContext(ctx)
	switch level {
	case LevelError:
		logger.Error(title, "notification", message)
	case LevelWarning:
		logger.Warn(title, "notification", message)
	default:
		logger.Info(title, "notification", message, "level", string(level))
	}
}

// Multi fans a notification out to every configured sink.
type Multi struct {
	sinks []Notifier
}

// NewMulti creates a Notifier that delivers to all the given sinks in order.
func NewMulti(sinks ...Notifier) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Success(ctx context.Context, title, message string) {
	for _, s := range m.sinks {
		s.Success(ctx, title, message)
	}
}

func (m *Multi) Error(ctx context.Context, title, message string) {
	for _, s := range m.sinks {
		s.Error(ctx, title, message)
	}
}

func (m *Multi) Warning(ctx context.Context, title, message string) {
	for _, s := range m.sinks {
		s.Warning(ctx, title, message)
	}
}

func (m *Multi) Info(ctx context.Context, title, message string) {
	for _, s := range m.sinks {
		s.Info(ctx, title, message)
	}
}
