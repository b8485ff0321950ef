package mailtransport

import (
	"time"

	"github.com/telekom/logmail/pkg/mail"
)

// EventKind is the outcome a transport event reports.
type EventKind string

const (
	// EventInfo reports a message accepted by the mail endpoint.
	EventInfo EventKind = "info"
	// EventError reports a failed send.
	EventError EventKind = "error"
)

// Event describes the outcome of one send attempt.
type Event struct {
	ID        string
	Kind      EventKind
	Transport string
	Level     string
	To        string
	Subject   string
	Receipt   mail.Receipt
	Err       error
	Time      time.Time
}

// EventHandler observes transport events. Handlers run on the send goroutine.
type EventHandler func(Event)

// OnEvent registers h for every subsequent event.
func (t *Transport) OnEvent(h EventHandler) {
	if h == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, h)
}

func (t *Transport) emit(ev Event) {
	t.mu.RLock()
	handlers := t.handlers
	t.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}
