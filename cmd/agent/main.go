package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hara602/usbAudit/internal/alertstore"
	"github.com/Hara602/usbAudit/internal/audit"
	"github.com/Hara602/usbAudit/internal/config"
	"github.com/Hara602/usbAudit/internal/probe"
	"github.com/Hara602/usbAudit/internal/sysutil"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, "usb-audit:", err)
		return 2
	}

	startedAt := time.Now()
	logPath, alertPath := audit.SessionPaths(cfg.LogDir, startedAt)

	// logger
	if err := sysutil.InitLogger(sysutil.LogOptions{Verbose: cfg.Verbose, FilePath: logPath}); err != nil {
		fmt.Fprintln(os.Stderr, "usb-audit:", err)
		return 1
	}
	defer sysutil.Log.Sync()

	if !sysutil.Privileged() {
		sysutil.Log.Warn("Not running as root: connections owned by other users will look unattributed.")
	}

	p, err := probe.Open(cfg.Probe, sysutil.Log)
	if err != nil {
		sysutil.Log.Error("Probe init failed", zap.String("probe", cfg.Probe), zap.Error(err))
		return 1
	}
	if c, ok := p.(io.Closer); ok {
		defer c.Close()
	}

	store, err := openStore(cfg, startedAt)
	if err != nil {
		sysutil.Log.Error("Alert store init failed", zap.Error(err))
		return 1
	}
	defer store.Close()

	session := audit.New(cfg, p, store, sysutil.Log, startedAt)
	sysutil.LogSugar.Infof("Logs will be saved to: %s", logPath)
	sysutil.LogSugar.Infof("Alerts will be saved to: %s", alertPath)

	// SIGINT / SIGTERM end the session
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := session.Run(ctx); err != nil {
		sysutil.Log.Error("Audit stopped", zap.Error(err))
		return 1
	}
	sysutil.Log.Info("Shutting down...")
	return 0
}

func openStore(cfg config.Config, startedAt time.Time) (alertstore.Store, error) {
	if cfg.AlertDB == "" {
		return alertstore.NewMemoryStore(), nil
	}
	return alertstore.OpenSQLite(cfg.AlertDB, startedAt.Format("20060102_150405"))
}
