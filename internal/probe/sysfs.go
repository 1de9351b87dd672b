package probe

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Hara602/usbAudit/internal/analysis"
)

// DefaultSysfsUSB is where the kernel lists attached USB devices.
const DefaultSysfsUSB = "/sys/bus/usb/devices"

// dumpSysfs renders every USB device under root as "Key = value" lines, the
// same loose shape ioreg prints, so one rule set covers both.
func dumpSysfs(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		// "1-2:1.0" style entries are interfaces, not devices
		if strings.Contains(e.Name(), ":") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		dev := filepath.Join(root, name)
		vid := readAttr(dev, "idVendor")
		if vid == "" {
			continue
		}
		pid := readAttr(dev, "idProduct")

		fmt.Fprintf(&b, "Device = %s\n", name)
		fmt.Fprintf(&b, "  Vendor = %s\n", describeID(readAttr(dev, "manufacturer"), vid))
		fmt.Fprintf(&b, "  Product = %s\n", describeID(readAttr(dev, "product"), pid))
		if serial := readAttr(dev, "serial"); serial != "" {
			fmt.Fprintf(&b, "  Serial = %s\n", serial)
		}
		if power := readAttr(dev, "bMaxPower"); power != "" {
			fmt.Fprintf(&b, "  Current = %s\n", strings.TrimSuffix(power, "mA"))
		}
		if classes := analysis.InterfaceClasses(dev); len(classes) > 0 {
			fmt.Fprintf(&b, "  InterfaceClasses = %s\n", strings.Join(classes, ","))
		}
	}
	return b.String(), nil
}

// describeID pairs a descriptor string with its numeric ID. A zero or
// missing ID, or a missing name, is reported as Unknown.
func describeID(name, id string) string {
	if id == "" || strings.Trim(id, "0") == "" {
		return "Unknown"
	}
	if name == "" {
		return "Unknown (" + id + ")"
	}
	return name + " (" + id + ")"
}

func readAttr(dir, attr string) string {
	b, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
