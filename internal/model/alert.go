package model

import (
	"time"

	"github.com/google/uuid"
)

// AlertKind classifies a red flag.
type AlertKind string

const (
	KindOvercurrent            AlertKind = "OVERCURRENT"
	KindNoVendorID             AlertKind = "NO_VENDOR_ID"
	KindNoProductID            AlertKind = "NO_PRODUCT_ID"
	KindCompositeHID           AlertKind = "COMPOSITE_HID"
	KindUnattributedConnection AlertKind = "UNATTRIBUTED_CONNECTION"
	KindSuspiciousShellHistory AlertKind = "SUSPICIOUS_SHELL_HISTORY"
	KindSuspiciousAutostart    AlertKind = "SUSPICIOUS_AUTOSTART"
)

// Alert is a finding emitted when a heuristic matches. Two alerts are the
// same finding when their Message is identical; ID and CreatedAt are not
// part of that identity.
type Alert struct {
	ID        string
	Kind      AlertKind
	Message   string
	CreatedAt time.Time
}

// NewAlert stamps a new alert with a fresh ID.
func NewAlert(kind AlertKind, message string, at time.Time) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		CreatedAt: at,
	}
}
