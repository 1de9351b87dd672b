package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Output of one external command.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes external commands. It returns an error only when the
// command could not be run at all; exit status is reported in Output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, err
}

// CommandProbe answers queries with the stock macOS tools: log, ioreg,
// netstat, dig, lsof and osascript.
type CommandProbe struct {
	runner Runner
	now    func() time.Time

	HistoryFiles  []string
	AutostartDirs []string
}

func NewCommandProbe(r Runner) *CommandProbe {
	home, _ := os.UserHomeDir()
	return &CommandProbe{
		runner: r,
		now:    time.Now,
		HistoryFiles: []string{
			filepath.Join(home, ".zsh_history"),
			filepath.Join(home, ".bash_history"),
		},
		AutostartDirs: []string{
			filepath.Join(home, "Library", "LaunchAgents"),
			"/Library/LaunchAgents",
			"/Library/LaunchDaemons",
		},
	}
}

// run executes name and treats any exit code outside okCodes (0 is always
// fine) as a failure.
func (p *CommandProbe) run(ctx context.Context, op string, okCodes []int, name string, args ...string) (Output, error) {
	out, err := p.runner.Run(ctx, name, args...)
	if err != nil {
		return out, fail(op, err)
	}
	if out.ExitCode == 0 {
		return out, nil
	}
	for _, c := range okCodes {
		if out.ExitCode == c {
			return out, nil
		}
	}
	return out, fail(op, fmt.Errorf("%s exited with status %d: %s", name, out.ExitCode, strings.TrimSpace(string(out.Stderr))))
}

func (p *CommandProbe) PollUSBEvent(ctx context.Context) (string, error) {
	out, err := p.run(ctx, "usb-event", nil, "log", "show", "--style", "syslog",
		"--predicate", `eventMessage CONTAINS "USB"`, "--last", "1s")
	if err != nil {
		return "", err
	}
	// log show prints a column header even when nothing matched
	var hits []string
	for _, line := range splitLines(out.Stdout) {
		if strings.Contains(line, "USB") {
			hits = append(hits, line)
		}
	}
	return strings.Join(hits, "\n"), nil
}

func (p *CommandProbe) DumpDeviceDescriptors(ctx context.Context) (string, error) {
	out, err := p.run(ctx, "device-descriptors", nil, "ioreg", "-p", "IOUSB", "-l")
	if err != nil {
		return "", err
	}
	return string(out.Stdout), nil
}

func (p *CommandProbe) SnapshotConnections(ctx context.Context) ([]string, error) {
	out, err := p.run(ctx, "connections", nil, "netstat", "-an")
	if err != nil {
		return nil, err
	}
	return splitLines(out.Stdout), nil
}

func (p *CommandProbe) ResolveHostname(ctx context.Context, ip string) (string, error) {
	out, err := p.run(ctx, "reverse-dns", nil, "dig", "+short", "-x", ip)
	if err != nil {
		return "", err
	}
	lines := splitLines(out.Stdout)
	if len(lines) == 0 {
		return "", nil
	}
	return strings.TrimSpace(lines[0]), nil
}

func (p *CommandProbe) ResolveOwningProcess(ctx context.Context, ip string) (string, error) {
	// lsof exits 1 both when nothing matched and on some failures; only a
	// silent exit 1 counts as "no process".
	out, err := p.run(ctx, "owning-process", []int{1}, "lsof", "-nP", "-i", "@"+ip)
	if err != nil {
		return "", err
	}
	if out.ExitCode == 1 && len(bytes.TrimSpace(out.Stderr)) > 0 {
		return "", fail("owning-process", fmt.Errorf("lsof: %s", strings.TrimSpace(string(out.Stderr))))
	}
	return strings.TrimSpace(string(out.Stdout)), nil
}

func (p *CommandProbe) ScanShellHistory(_ context.Context, tokens []string) ([]string, error) {
	lines, err := scanHistory(p.HistoryFiles, tokens)
	return lines, fail("shell-history", err)
}

func (p *CommandProbe) ScanLaunchAgents(_ context.Context, since time.Time) ([]string, error) {
	paths, err := recentFiles(p.AutostartDirs, since)
	return paths, fail("launch-agents", err)
}

func (p *CommandProbe) RecentTerminalActivity(ctx context.Context, since time.Time) (string, error) {
	window := p.now().Sub(since).Round(time.Second)
	if window < time.Second {
		window = time.Second
	}
	out, err := p.run(ctx, "terminal-activity", nil, "log", "show", "--style", "syslog",
		"--predicate", `process == "Terminal"`, "--last", fmt.Sprintf("%ds", int(window.Seconds())))
	if err != nil {
		return "", err
	}
	var lines []string
	for _, line := range splitLines(out.Stdout) {
		if strings.HasPrefix(line, "Timestamp") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func (p *CommandProbe) ListLoginItems(ctx context.Context) ([]string, error) {
	out, err := p.run(ctx, "login-items", nil, "osascript", "-e",
		`tell application "System Events" to get the name of every login item`)
	if err != nil {
		return nil, err
	}
	var items []string
	for _, it := range strings.Split(string(out.Stdout), ",") {
		if it = strings.TrimSpace(it); it != "" {
			items = append(items, it)
		}
	}
	return items, nil
}

func splitLines(b []byte) []string {
	var lines []string
	for _, l := range strings.Split(string(b), "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

var (
	_ SystemProbe = (*CommandProbe)(nil)
	_ AuxProbe    = (*CommandProbe)(nil)
)
