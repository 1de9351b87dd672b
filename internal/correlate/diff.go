// Package correlate ties a USB insertion to the network activity that
// follows it.
package correlate

import "github.com/Hara602/usbAudit/internal/model"

// Diff returns the records of next that are absent from prev. Connections
// that closed in between are not reported.
func Diff(prev, next model.ConnectionSnapshot) model.ConnectionSnapshot {
	out := make(model.ConnectionSnapshot)
	for r := range next {
		if !prev.Has(r) {
			out[r] = struct{}{}
		}
	}
	return out
}
