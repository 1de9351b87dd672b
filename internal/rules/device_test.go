package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/Hara602/usbAudit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(alerts []model.Alert) []model.AlertKind {
	out := make([]model.AlertKind, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Kind)
	}
	return out
}

func TestOvercurrentRule(t *testing.T) {
	now := time.Now()

	alerts := EvaluateDescriptors("Current = 800", now)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.KindOvercurrent, alerts[0].Kind)
	assert.Contains(t, alerts[0].Message, "Device: 800.")
	assert.Equal(t, now, alerts[0].CreatedAt)

	assert.Empty(t, EvaluateDescriptors("Current = 400", now))
	assert.Empty(t, EvaluateDescriptors("Current", now))
}

func TestVendorRule(t *testing.T) {
	alerts := EvaluateDescriptors("Vendor = Unknown", time.Now())
	require.Len(t, alerts, 1)
	assert.Equal(t, model.KindNoVendorID, alerts[0].Kind)

	assert.Empty(t, EvaluateDescriptors("Vendor = Apple", time.Now()))
}

func TestProductRule(t *testing.T) {
	alerts := EvaluateDescriptors(`    "USB Product Name" = Unknown`, time.Now())
	require.Len(t, alerts, 1)
	assert.Equal(t, model.KindNoProductID, alerts[0].Kind)
	assert.Contains(t, alerts[0].Message, "Device: Unknown.")
}

func TestRulesAreCaseSensitive(t *testing.T) {
	assert.Empty(t, EvaluateDescriptors("vendor = unknown\ncurrent = 900", time.Now()))
}

func TestRuleOrderWithinAndAcrossLines(t *testing.T) {
	dump := "Vendor Product = Unknown\n" +
		"| \"kUSBCurrentAvailable\" = 900\n" +
		"InterfaceClasses = HID,MassStorage\n" +
		"Serial = 0001"

	alerts := EvaluateDescriptors(dump, time.Now())

	assert.Equal(t, []model.AlertKind{
		model.KindNoVendorID,
		model.KindNoProductID,
		model.KindOvercurrent,
		model.KindCompositeHID,
	}, kinds(alerts))
}

func TestCompositeRuleNeedsPartnerInterface(t *testing.T) {
	assert.Empty(t, EvaluateDescriptors("InterfaceClasses = HID", time.Now()))
	assert.Len(t, EvaluateDescriptors("InterfaceClasses = CDC,CDCData,HID", time.Now()), 1)
	assert.Len(t, EvaluateDescriptors("InterfaceClasses = HID,Wireless", time.Now()), 1)
	assert.Empty(t, EvaluateDescriptors("InterfaceClasses = Audio,HID", time.Now()))
}

// The sysfs dump and the rule agree on what a composite HID device is.
func TestCompositeRuleMatchesSysfsClassNames(t *testing.T) {
	for _, partner := range []string{"MassStorage", "CDC", "CDCData", "Wireless"} {
		line := "  InterfaceClasses = " + strings.Join([]string{"HID", partner}, ",")
		assert.Equal(t, []model.AlertKind{model.KindCompositeHID},
			kinds(EvaluateDescriptors(line, time.Now())), partner)
	}
}

func TestEmptyDump(t *testing.T) {
	assert.Empty(t, EvaluateDescriptors("", time.Now()))
}
