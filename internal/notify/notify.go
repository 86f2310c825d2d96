// Package notify carries user-visible notifications (the browser client's toasts).
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notice struct {
	Level   Level
	Message string
}

type Notifier interface {
	Notify(n Notice)
}

func Info(n Notifier, format string, args ...any) {
	n.Notify(Notice{Level: LevelInfo, Message: fmt.Sprintf(format, args...)})
}

func Success(n Notifier, format string, args ...any) {
	n.Notify(Notice{Level: LevelSuccess, Message: fmt.Sprintf(format, args...)})
}

func Error(n Notifier, format string, args ...any) {
	n.Notify(Notice{Level: LevelError, Message: fmt.Sprintf(format, args...)})
}

// Terminal prints colored notices, one per line.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

func (t *Terminal) Notify(n Notice) {
	var c *color.Color
	prefix := "•"
	switch n.Level {
	case LevelSuccess:
		c, prefix = color.New(color.FgGreen), "✓"
	case LevelError:
		c, prefix = color.New(color.FgRed), "✗"
	default:
		c = color.New(color.FgCyan)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	c.Fprintf(t.w, "%s %s\n", prefix, n.Message)
}

// Recorder keeps every notice; used by tests and headless runs.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Discard drops every notice.
type Discard struct{}

func (Discard) Notify(Notice) {}
