// Package watcher listens for USB attach/detach signals from the kernel.
package watcher

import (
	"errors"
	"sync"

	"github.com/Hara602/usbAudit/internal/model"
)

// ErrUnsupported is returned by Start where no event source exists.
var ErrUnsupported = errors.New("usb event watcher not supported on this platform")

// DeviceWatcher streams USB device events until stopped.
type DeviceWatcher interface {
	Start() (<-chan model.USBEvent, error)
	Stop()
}

func New() DeviceWatcher {
	return newWatcher()
}

// Window buffers events between polls so a poller without a subscription
// of its own still sees every insertion since it last asked.
type Window struct {
	mu     sync.Mutex
	events []model.USBEvent
	// cap on buffered events between polls
	max int
}

func NewWindow(max int) *Window {
	if max <= 0 {
		max = 64
	}
	return &Window{max: max}
}

func (w *Window) Push(ev model.USBEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.events) == w.max {
		w.events = w.events[1:]
	}
	w.events = append(w.events, ev)
}

// Drain empties the buffer and returns everything pushed since the
// previous Drain, oldest first.
func (w *Window) Drain() []model.USBEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.events) == 0 {
		return nil
	}
	out := make([]model.USBEvent, len(w.events))
	copy(out, w.events)
	w.events = w.events[:0]
	return out
}
