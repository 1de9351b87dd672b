package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Hara602/usbAudit/internal/analysis"
	"github.com/Hara602/usbAudit/internal/model"
	"go.uber.org/zap"
)

// SuspiciousCommands are the shell-history tokens worth flagging after a
// USB insertion: downloaders, AppleScript and privilege escalation.
var SuspiciousCommands = []string{"curl", "wget", "osascript", "sudo"}

const (
	DefaultAutostartWindow = 5 * time.Minute
	DefaultTerminalWindow  = 30 * time.Second
)

// AuxSource is the auxiliary half of the system probe.
type AuxSource interface {
	ScanShellHistory(ctx context.Context, tokens []string) ([]string, error)
	ScanLaunchAgents(ctx context.Context, since time.Time) ([]string, error)
	RecentTerminalActivity(ctx context.Context, since time.Time) (string, error)
	ListLoginItems(ctx context.Context) ([]string, error)
}

// Report is the outcome of one advanced pass.
type Report struct {
	Alerts []model.Alert
	// Degraded names the checks whose probe failed.
	Degraded []string
}

// AdvancedChecks runs the host heuristics that are not tied to a specific
// device. Each check stands alone; a failing probe only degrades that check.
type AdvancedChecks struct {
	src       AuxSource
	inspector *analysis.Inspector
	log       *zap.Logger
	now       func() time.Time

	AutostartWindow time.Duration
	TerminalWindow  time.Duration
}

func NewAdvancedChecks(src AuxSource, log *zap.Logger) *AdvancedChecks {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdvancedChecks{
		src:             src,
		inspector:       analysis.NewInspector(),
		log:             log,
		now:             time.Now,
		AutostartWindow: DefaultAutostartWindow,
		TerminalWindow:  DefaultTerminalWindow,
	}
}

func (c *AdvancedChecks) Run(ctx context.Context) Report {
	c.log.Info("Running advanced checks...")
	var rep Report

	checks := []struct {
		name string
		run  func(context.Context, *Report) error
	}{
		{"shell history", c.shellHistory},
		{"autostart entries", c.autostart},
		{"terminal activity", c.terminal},
		{"login items", c.loginItems},
	}
	for _, chk := range checks {
		if ctx.Err() != nil {
			break
		}
		if err := chk.run(ctx, &rep); err != nil {
			rep.Degraded = append(rep.Degraded, chk.name)
			c.log.Warn("advanced check degraded", zap.String("check", chk.name), zap.Error(err))
		}
	}

	c.log.Info("Advanced checks completed.")
	return rep
}

func (c *AdvancedChecks) shellHistory(ctx context.Context, rep *Report) error {
	c.log.Info("Checking shell history for " + strings.Join(SuspiciousCommands, "/") + "...")
	lines, err := c.src.ScanShellHistory(ctx, SuspiciousCommands)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	c.log.Debug(strings.Join(lines, "\n"))
	// the alert log holds one message per line
	matched := strings.Join(lines, "; ")
	alert := model.NewAlert(model.KindSuspiciousShellHistory, fmt.Sprintf(
		"Red Flag: Suspicious shell command executed after USB plug-in! Commands: %s. "+
			"This could be an attempt to download or run a malicious script. "+
			"Review recent command history and make sure no unauthorized scripts are running.",
		matched), c.now())
	c.log.Warn(alert.Message)
	rep.Alerts = append(rep.Alerts, alert)
	return nil
}

func (c *AdvancedChecks) autostart(ctx context.Context, rep *Report) error {
	since := c.now().Add(-c.AutostartWindow)
	paths, err := c.src.ScanLaunchAgents(ctx, since)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		c.log.Debug("No recently modified autostart entries.")
		return nil
	}

	c.log.Info(fmt.Sprintf("Autostart entries modified in the last %s:", c.AutostartWindow))
	for _, p := range paths {
		c.log.Info(p)

		res, err := c.inspector.Inspect(p)
		if err != nil {
			c.log.Debug("autostart inspect failed", zap.String("path", p), zap.Error(err))
			continue
		}
		if !res.IsMasquerade {
			continue
		}
		alert := model.NewAlert(model.KindSuspiciousAutostart, fmt.Sprintf(
			"Red Flag: Autostart entry %s carries a disguised payload [%s]! %s. "+
				"A new persistence item right after a USB insertion deserves a close look.",
			p, res.RiskLevel, res.Message), c.now())
		c.log.Warn(alert.Message)
		rep.Alerts = append(rep.Alerts, alert)
	}
	return nil
}

func (c *AdvancedChecks) terminal(ctx context.Context, rep *Report) error {
	out, err := c.src.RecentTerminalActivity(ctx, c.now().Add(-c.TerminalWindow))
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) == "" {
		c.log.Debug("No recent terminal activity.")
		return nil
	}
	c.log.Info(fmt.Sprintf("Terminal activity in the last %s:", c.TerminalWindow))
	c.log.Info(out)
	return nil
}

func (c *AdvancedChecks) loginItems(ctx context.Context, rep *Report) error {
	items, err := c.src.ListLoginItems(ctx)
	if err != nil {
		return err
	}
	c.log.Info(fmt.Sprintf("Login items (%d):", len(items)))
	for _, it := range items {
		c.log.Info(it)
	}
	return nil
}
