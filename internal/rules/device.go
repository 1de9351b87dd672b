// Package rules holds the red-flag heuristics run against probe output.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/Hara602/usbAudit/internal/analysis"
	"github.com/Hara602/usbAudit/internal/model"
)

// overcurrentTokens are the draw values (mA) treated as above a normal
// peripheral budget. Matching is by substring.
var overcurrentTokens = []string{"500", "600", "700", "800", "900", "1000"}

// EvaluateDescriptors runs the descriptor rules over every line of a device
// dump. Alerts come out in line order and, within a line, in rule order:
// overcurrent, unknown vendor, unknown product, composite HID.
func EvaluateDescriptors(dump string, now time.Time) []model.Alert {
	var alerts []model.Alert
	for _, line := range strings.Split(dump, "\n") {
		alerts = append(alerts, evaluateLine(line, now)...)
	}
	return alerts
}

func evaluateLine(line string, now time.Time) []model.Alert {
	var alerts []model.Alert

	if strings.Contains(line, "Current") && containsAny(line, overcurrentTokens) {
		alerts = append(alerts, model.NewAlert(model.KindOvercurrent, fmt.Sprintf(
			"Red Flag: Device drawing more than 500mA! Device: %s. "+
				"A peripheral pulling more power than typical USB devices may be hiding extra hardware. "+
				"Check the device's specifications or stop using it if the draw is unexpected.",
			trailingValue(line)), now))
	}
	if strings.Contains(line, "Vendor") && strings.Contains(line, "Unknown") {
		alerts = append(alerts, model.NewAlert(model.KindNoVendorID, fmt.Sprintf(
			"Red Flag: Device with no vendor ID! Device: %s. "+
				"Devices without a known vendor ID may be counterfeit or malicious. "+
				"Verify the device before trusting it.",
			trailingValue(line)), now))
	}
	if strings.Contains(line, "Product") && strings.Contains(line, "Unknown") {
		alerts = append(alerts, model.NewAlert(model.KindNoProductID, fmt.Sprintf(
			"Red Flag: Device with no product ID! Device: %s. "+
				"Devices without a known product ID may be counterfeit or malicious. "+
				"Verify the device before trusting it.",
			trailingValue(line)), now))
	}
	if strings.Contains(line, "InterfaceClasses") && analysis.IsCompositeHID(classList(trailingValue(line))) {
		alerts = append(alerts, model.NewAlert(model.KindCompositeHID, fmt.Sprintf(
			"Red Flag: Keyboard-class device also exposes storage or network interfaces! Interfaces: %s. "+
				"This is the usual shape of a BadUSB implant. Unplug the device unless the combination is expected.",
			trailingValue(line)), now))
	}
	return alerts
}

// trailingValue is the text after the last '=' of a line, trimmed.
func trailingValue(line string) string {
	if i := strings.LastIndex(line, "="); i >= 0 {
		return strings.TrimSpace(line[i+1:])
	}
	return strings.TrimSpace(line)
}

// classList splits a comma-separated interface class value.
func classList(v string) []string {
	var classes []string
	for _, c := range strings.Split(v, ",") {
		if c = strings.TrimSpace(c); c != "" {
			classes = append(classes, c)
		}
	}
	return classes
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
