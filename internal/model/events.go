package model

import (
	"strings"
	"time"
)

// USBEvent is one hardware attach/detach signal.
type USBEvent struct {
	Action     string // "add", "remove"
	DevicePath string // e.g. /devices/pci0000:00/0000:00:14.0/usb1/1-2
	VendorID   string
	ProductID  string
	Product    string
	Serial     string
	TimeStamp  time.Time
}

// String renders the event as one log line.
func (e USBEvent) String() string {
	var b strings.Builder
	b.WriteString(e.TimeStamp.Format("2006-01-02 15:04:05"))
	b.WriteString(" USB ")
	b.WriteString(e.Action)
	if e.DevicePath != "" {
		b.WriteString(" " + e.DevicePath)
	}
	if e.VendorID != "" || e.ProductID != "" {
		b.WriteString(" " + e.VendorID + ":" + e.ProductID)
	}
	if e.Product != "" {
		b.WriteString(" (" + e.Product + ")")
	}
	return b.String()
}
