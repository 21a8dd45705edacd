// Package notify keeps the user-visible notification log.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/emiwiz/internal/model"
)

// DefaultCap bounds the in-memory log when no cap is configured.
const DefaultCap = 50

// Recorder persists notifications beyond the in-memory log.
type Recorder interface {
	RecordNotification(n model.Notification) error
}

// Log is an append-only, capped list of notifications. The newest entry is last.
type Log struct {
	mu       sync.Mutex
	items    []model.Notification
	limit    int
	recorder Recorder
	now      func() time.Time
	onError  func(error)
}

// Option configures a Log.
type Option func(*Log)

// WithRecorder mirrors every notification into r.
func WithRecorder(r Recorder) Option {
	return func(l *Log) { l.recorder = r }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithErrorHandler receives recorder failures.
func WithErrorHandler(fn func(error)) Option {
	return func(l *Log) { l.onError = fn }
}

// New returns a log keeping at most capacity entries.
func New(capacity int, opts ...Option) *Log {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	l := &Log{limit: capacity, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Add appends an unread notification and returns it.
func (l *Log) Add(level model.Level, text string) model.Notification {
	n := model.Notification{
		ID:    uuid.NewString(),
		Text:  text,
		Level: level,
		At:    l.now(),
	}
	l.mu.Lock()
	l.items = append(l.items, n)
	if over := len(l.items) - l.limit; over > 0 {
		l.items = append([]model.Notification(nil), l.items[over:]...)
	}
	recorder := l.recorder
	onError := l.onError
	l.mu.Unlock()

	if recorder != nil {
		if err := recorder.RecordNotification(n); err != nil && onError != nil {
			onError(fmt.Errorf("failed to record notification: %w", err))
		}
	}
	return n
}

// Infof adds an info notification.
func (l *Log) Infof(format string, args ...any) model.Notification {
	return l.Add(model.LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf adds a warning notification.
func (l *Log) Warnf(format string, args ...any) model.Notification {
	return l.Add(model.LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf adds an error notification.
func (l *Log) Errorf(format string, args ...any) model.Notification {
	return l.Add(model.LevelError, fmt.Sprintf(format, args...))
}

// List returns a copy of the log, oldest first.
func (l *Log) List() []model.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Notification(nil), l.items...)
}

// Unread counts notifications not yet shown.
func (l *Log) Unread() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, n := range l.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkAllRead flags every entry as read.
func (l *Log) MarkAllRead() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		l.items[i].Read = true
	}
}

// Len returns the number of retained notifications.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
