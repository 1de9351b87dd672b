package watcher

import (
	"testing"
	"time"

	"github.com/Hara602/usbAudit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowDrainReturnsEverythingSinceLastDrain(t *testing.T) {
	t0 := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	w := NewWindow(0)

	w.Push(model.USBEvent{Action: "add", DevicePath: "a", TimeStamp: t0.Add(-3 * time.Second)})
	w.Push(model.USBEvent{Action: "add", DevicePath: "b", TimeStamp: t0})

	got := w.Drain()

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].DevicePath)
	assert.Equal(t, "b", got[1].DevicePath)
	assert.Empty(t, w.Drain())
}

// An insertion right after one poll must still show up at the next, however
// late that poll runs.
func TestWindowKeepsEventsAcrossLatePolls(t *testing.T) {
	t0 := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	w := NewWindow(0)
	assert.Empty(t, w.Drain())

	w.Push(model.USBEvent{Action: "add", DevicePath: "1-2", TimeStamp: t0.Add(time.Millisecond)})
	w.Push(model.USBEvent{Action: "add", DevicePath: "1-3", TimeStamp: t0.Add(500 * time.Millisecond)})

	got := w.Drain()

	require.Len(t, got, 2)
	assert.Equal(t, "1-2", got[0].DevicePath)
}

func TestWindowDrainResultSurvivesNextPush(t *testing.T) {
	w := NewWindow(0)
	w.Push(model.USBEvent{DevicePath: "first"})
	got := w.Drain()

	w.Push(model.USBEvent{DevicePath: "second"})

	assert.Equal(t, "first", got[0].DevicePath)
}

func TestWindowBounded(t *testing.T) {
	now := time.Now()
	w := NewWindow(2)

	w.Push(model.USBEvent{DevicePath: "1", TimeStamp: now})
	w.Push(model.USBEvent{DevicePath: "2", TimeStamp: now})
	w.Push(model.USBEvent{DevicePath: "3", TimeStamp: now})

	got := w.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].DevicePath)
}
