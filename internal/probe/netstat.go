package probe

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"syscall"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// connectionLines lists inet sockets in netstat layout
// "<proto> 0 0 <local> <remote> [state]".
func connectionLines(ctx context.Context) ([]string, error) {
	conns, err := gnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(conns))
	for _, c := range conns {
		lines = append(lines, renderConnection(c))
	}
	return lines, nil
}

func renderConnection(c gnet.ConnectionStat) string {
	proto := "udp"
	if c.Type == syscall.SOCK_STREAM {
		proto = "tcp"
	}
	if c.Family == syscall.AF_INET6 {
		proto += "6"
	}

	line := fmt.Sprintf("%s 0 0 %s %s", proto, renderAddr(c.Laddr), renderAddr(c.Raddr))
	if c.Status != "" && c.Status != "NONE" {
		line += " " + c.Status
	}
	return line
}

func renderAddr(a gnet.Addr) string {
	if a.IP == "" {
		return "*:*"
	}
	return net.JoinHostPort(a.IP, strconv.FormatUint(uint64(a.Port), 10))
}

// socketOwners lists the processes holding a socket to or from ip, one
// "<name> <pid> <local> -> <remote> <state>" line each. Sockets whose pid
// the kernel hides from us (pid 0) are left out.
func socketOwners(ctx context.Context, ip string) (string, error) {
	target, err := netip.ParseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("bad ip %q: %w", ip, err)
	}
	target = target.Unmap()

	conns, err := gnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return "", err
	}

	seen := make(map[string]bool)
	var lines []string
	for _, c := range conns {
		if c.Pid <= 0 || !(sameIP(c.Raddr.IP, target) || sameIP(c.Laddr.IP, target)) {
			continue
		}
		name := "?"
		if p, err := process.NewProcessWithContext(ctx, c.Pid); err == nil {
			if n, err := p.NameWithContext(ctx); err == nil {
				name = n
			}
		}
		line := fmt.Sprintf("%s %d %s -> %s %s", name, c.Pid, renderAddr(c.Laddr), renderAddr(c.Raddr), c.Status)
		line = strings.TrimSpace(line)
		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}

func sameIP(s string, target netip.Addr) bool {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	return a.Unmap() == target
}
