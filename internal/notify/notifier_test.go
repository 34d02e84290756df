package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	events []Notification
}

func (r *recordingSink) record(level Level, title, message string) {
	r.events = append(r.events, Notification{Level: level, Title: title, Message: message})
}

func (r *recordingSink) Success(_ context.Context, title, message string) {
	r.record(LevelSuccess, title, message)
}

func (r *recordingSink) Error(_ context.Context, title, message string) {
	r.record(LevelError, title, message)
}

func (r *recordingSink) Warning(_ context.Context, title, message string) {
	r.record(LevelWarning, title, message)
}

func (r *recordingSink) Info(_ context.Context, title, message string) {
	r.record(LevelInfo, title, message)
}

func TestMulti_FansOutToAllSinks(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	multi := NewMulti(first, second)

	ctx := context.Background()
	multi.Success(ctx, "experiment completed", "Basil Trial")
	multi.Error(ctx, "update failed", "Tomato Run")

	for _, sink := range []*recordingSink{first, second} {
		assert.Len(t, sink.events, 2)
		assert.Equal(t, LevelSuccess, sink.events[0].Level)
		assert.Equal(t, "experiment completed", sink.events[0].Title)
		assert.Equal(t, LevelError, sink.events[1].Level)
	}
}

func TestNewNotification(t *testing.T) {
	n := newNotification(LevelWarning, "title", "message")

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, LevelWarning, n.Level)
	assert.Equal(t, "title", n.Title)
	assert.Equal(t, "message", n.Message)
	assert.False(t, n.CreatedAt.IsZero())

	other := newNotification(LevelWarning, "title", "message")
	assert.NotEqual(t, n.ID, other.ID)
}
