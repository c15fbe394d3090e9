// Package notify defines the shared notification sink both delivery channels
// terminate in, plus the system-level notifier and permission model.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/clinicedge/clinicedge/internal/logging"
)

// Event types understood by the UI sink.
const (
	TypeInfo    = "info"
	TypeSuccess = "success"
	TypeWarning = "warning"
	TypeError   = "error"
)

// Event is one in-page notification.
type Event struct {
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Duration  time.Duration     `json:"duration,omitempty"`
	AutoClose bool              `json:"autoClose,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Sink renders an in-page notification. The UI layer supplies the real one.
type Sink interface {
	Publish(event Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Publish(event Event) { f(event) }

// SystemNotifier raises OS-level notifications.
type SystemNotifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Permission is the tri-state OS notification permission.
type Permission int

const (
	PermissionDefault Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "default"
	}
}

// Router fans notification events in from both delivery channels and out to
// the in-page sink. A missing sink is tolerated: events are dropped, not
// errors. The sink can be attached after the channels have started.
type Router struct {
	log logging.Logger

	mu   sync.RWMutex
	sink Sink
}

func NewRouter(log logging.Logger) *Router {
	if log == nil {
		log = logging.Nop()
	}
	return &Router{log: log}
}

// SetSink attaches (or detaches, with nil) the in-page sink.
func (r *Router) SetSink(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// Publish routes the event to the in-page sink when one is attached.
func (r *Router) Publish(ctx context.Context, event Event) {
	if event.Type == "" {
		event.Type = TypeInfo
	}

	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()

	if sink == nil {
		r.log.Debug(ctx, "no notification sink attached, dropping event", "title", event.Title)
		return
	}
	sink.Publish(event)
}

// LogNotifier is a SystemNotifier for headless environments: it writes the
// notification to the log instead of the OS shell.
type LogNotifier struct {
	log logging.Logger
}

func NewLogNotifier(log logging.Logger) *LogNotifier {
	if log == nil {
		log = logging.Nop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, title, body string) error {
	n.log.Info(ctx, "system notification", "title", title, "body", body)
	return nil
}
