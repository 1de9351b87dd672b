package analysis

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// usbClassNames maps bInterfaceClass codes to the names used in descriptor
// dumps.
var usbClassNames = map[string]string{
	"01": "Audio",
	"02": "CDC",
	"03": "HID",
	"06": "Image",
	"07": "Printer",
	"08": "MassStorage",
	"09": "Hub",
	"0a": "CDCData",
	"0e": "Video",
	"e0": "Wireless",
	"ef": "Misc",
	"fe": "AppSpecific",
	"ff": "VendorSpecific",
}

// InterfaceClasses lists the distinct interface classes under a sysfs USB
// device directory. Interface directories look like "1-1:1.0".
func InterfaceClasses(sysPath string) []string {
	entries, err := os.ReadDir(sysPath)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		if !strings.Contains(e.Name(), ":") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(sysPath, e.Name(), "bInterfaceClass"))
		if err != nil {
			continue
		}
		code := strings.ToLower(strings.TrimSpace(string(content)))
		name, ok := usbClassNames[code]
		if !ok {
			name = "0x" + code
		}
		seen[name] = true
	}

	classes := make([]string, 0, len(seen))
	for name := range seen {
		classes = append(classes, name)
	}
	sort.Strings(classes)
	return classes
}

// IsCompositeHID reports a keyboard-class interface sitting next to storage
// or network interfaces, the usual BadUSB shape.
func IsCompositeHID(classes []string) bool {
	hasHID := false
	hasOther := false
	for _, c := range classes {
		switch c {
		case "HID":
			hasHID = true
		case "MassStorage", "CDC", "CDCData", "Wireless":
			hasOther = true
		}
	}
	return hasHID && hasOther
}
