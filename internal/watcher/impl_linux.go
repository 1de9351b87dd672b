//go:build linux

package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Hara602/usbAudit/internal/model"
	"github.com/Hara602/usbAudit/internal/sysutil"
	"github.com/pilebones/go-udev/netlink"
	"go.uber.org/zap"
)

type linuxWatcher struct {
	events   chan model.USBEvent
	stop     chan struct{}
	stopOnce sync.Once
}

func newWatcher() DeviceWatcher {
	return &linuxWatcher{
		events: make(chan model.USBEvent, 32),
		stop:   make(chan struct{}),
	}
}

func (w *linuxWatcher) Start() (<-chan model.USBEvent, error) {
	// NETLINK_KOBJECT_UEVENT, udev-processed events
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, err
	}
	queue := make(chan netlink.UEvent)
	errChan := make(chan error)
	quit := conn.Monitor(queue, errChan, nil)

	go func() {
		defer conn.Close()
		defer close(w.events)

		for {
			select {
			case <-w.stop:
				close(quit)
				return

			case err := <-errChan:
				// transient netlink errors; keep listening
				sysutil.Log.Debug("udev monitor error", zap.Error(err))

			case uevent := <-queue:
				if ev, ok := toUSBEvent(uevent, "/sys"); ok {
					select {
					case w.events <- ev:
					default:
						sysutil.Log.Warn("usb event dropped, consumer too slow", zap.String("dev", ev.DevicePath))
					}
				}
			}
		}
	}()
	return w.events, nil
}

func (w *linuxWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// toUSBEvent keeps whole-device usb events and drops interfaces, block
// partitions and everything else.
func toUSBEvent(uevent netlink.UEvent, sysRoot string) (model.USBEvent, bool) {
	if uevent.Env["SUBSYSTEM"] != "usb" || uevent.Env["DEVTYPE"] != "usb_device" {
		return model.USBEvent{}, false
	}
	action := string(uevent.Action)
	if action != "add" && action != "remove" {
		return model.USBEvent{}, false
	}

	ev := model.USBEvent{
		Action:     action,
		DevicePath: uevent.Env["DEVPATH"],
		TimeStamp:  time.Now(),
	}
	if action == "add" {
		// sysfs attributes are in place by the time udev forwards "add"
		dev := filepath.Join(sysRoot, uevent.Env["DEVPATH"])
		ev.VendorID = readFile(filepath.Join(dev, "idVendor"))
		ev.ProductID = readFile(filepath.Join(dev, "idProduct"))
		ev.Product = readFile(filepath.Join(dev, "product"))
		ev.Serial = readFile(filepath.Join(dev, "serial"))
	}
	if ev.VendorID == "" {
		// PRODUCT=46d/c52b/1211
		if parts := strings.Split(uevent.Env["PRODUCT"], "/"); len(parts) >= 2 {
			ev.VendorID, ev.ProductID = parts[0], parts[1]
		}
	}
	return ev, true
}

func readFile(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
