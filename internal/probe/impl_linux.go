//go:build linux

package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Hara602/usbAudit/internal/watcher"
	"go.uber.org/zap"
)

// LinuxProbe answers queries natively: udev netlink for events, sysfs for
// descriptors, procfs (via gopsutil) for sockets.
type LinuxProbe struct {
	watcher watcher.DeviceWatcher
	window  *watcher.Window
	log     *zap.Logger

	SysfsRoot     string
	HistoryFiles  []string
	AutostartDirs []string
	PtsDir        string
}

func openNative(log *zap.Logger) (SystemProbe, error) {
	p, err := NewLinuxProbe(log)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewLinuxProbe subscribes to udev and starts buffering USB add events
// until the next PollUSBEvent.
func NewLinuxProbe(log *zap.Logger) (*LinuxProbe, error) {
	if log == nil {
		log = zap.NewNop()
	}
	home, _ := os.UserHomeDir()
	p := &LinuxProbe{
		watcher:   watcher.New(),
		window:    watcher.NewWindow(0),
		log:       log,
		SysfsRoot: DefaultSysfsUSB,
		HistoryFiles: []string{
			filepath.Join(home, ".bash_history"),
			filepath.Join(home, ".zsh_history"),
		},
		AutostartDirs: []string{
			filepath.Join(home, ".config", "autostart"),
			filepath.Join(home, ".config", "systemd", "user"),
			"/etc/xdg/autostart",
		},
		PtsDir: "/dev/pts",
	}

	events, err := p.watcher.Start()
	if err != nil {
		return nil, fail("usb-event", err)
	}
	go func() {
		for ev := range events {
			if ev.Action != "add" {
				log.Debug("usb device removed", zap.String("dev", ev.DevicePath))
				continue
			}
			p.window.Push(ev)
		}
	}()
	return p, nil
}

func (p *LinuxProbe) Close() error {
	p.watcher.Stop()
	return nil
}

func (p *LinuxProbe) PollUSBEvent(context.Context) (string, error) {
	events := p.window.Drain()
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		lines = append(lines, ev.String())
	}
	return strings.Join(lines, "\n"), nil
}

func (p *LinuxProbe) DumpDeviceDescriptors(context.Context) (string, error) {
	dump, err := dumpSysfs(p.SysfsRoot)
	return dump, fail("device-descriptors", err)
}

func (p *LinuxProbe) SnapshotConnections(ctx context.Context) ([]string, error) {
	lines, err := connectionLines(ctx)
	return lines, fail("connections", err)
}

func (p *LinuxProbe) ResolveHostname(ctx context.Context, ip string) (string, error) {
	names, err := net.DefaultResolver.LookupAddr(ctx, ip)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return "", nil
		}
		return "", fail("reverse-dns", err)
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

func (p *LinuxProbe) ResolveOwningProcess(ctx context.Context, ip string) (string, error) {
	out, err := socketOwners(ctx, ip)
	return out, fail("owning-process", err)
}

func (p *LinuxProbe) ScanShellHistory(_ context.Context, tokens []string) ([]string, error) {
	lines, err := scanHistory(p.HistoryFiles, tokens)
	return lines, fail("shell-history", err)
}

func (p *LinuxProbe) ScanLaunchAgents(_ context.Context, since time.Time) ([]string, error) {
	paths, err := recentFiles(p.AutostartDirs, since)
	return paths, fail("autostart", err)
}

// RecentTerminalActivity lists pseudo-terminals written to since the given
// time.
func (p *LinuxProbe) RecentTerminalActivity(_ context.Context, since time.Time) (string, error) {
	entries, err := os.ReadDir(p.PtsDir)
	if err != nil {
		return "", fail("terminal-activity", err)
	}
	var active []string
	for _, e := range entries {
		if e.Name() == "ptmx" {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().After(since) {
			continue
		}
		active = append(active, filepath.Join(p.PtsDir, e.Name())+" last active "+info.ModTime().Format("15:04:05"))
	}
	sort.Strings(active)
	return strings.Join(active, "\n"), nil
}

func (p *LinuxProbe) ListLoginItems(context.Context) ([]string, error) {
	items, err := desktopEntryNames(p.AutostartDirs)
	return items, fail("login-items", err)
}

var (
	_ SystemProbe = (*LinuxProbe)(nil)
	_ AuxProbe    = (*LinuxProbe)(nil)
)
