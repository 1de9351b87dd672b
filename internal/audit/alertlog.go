package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Hara602/usbAudit/internal/model"
)

// IOError is a persistence failure that survived one retry.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// SessionPaths derives the session log and alert log names from the start
// time, e.g. usb_audit_log_20261016_120000.txt.
func SessionPaths(dir string, startedAt time.Time) (logPath, alertLogPath string) {
	stamp := startedAt.Format("20060102_150405")
	return filepath.Join(dir, "usb_audit_log_"+stamp+".txt"),
		filepath.Join(dir, "usb_audit_alerts_"+stamp+".txt")
}

// AlertLog holds the current alert set on disk, one message per line. Each
// Write replaces the whole file.
type AlertLog struct {
	path      string
	writeFile func(path string, data []byte) error
}

func NewAlertLog(path string) *AlertLog {
	return &AlertLog{path: path, writeFile: replaceFile}
}

// Write dumps alerts one per line, retrying once before giving up with an
// *IOError. Line breaks inside a message are flattened to spaces.
func (l *AlertLog) Write(alerts []model.Alert) error {
	var b strings.Builder
	for _, a := range alerts {
		b.WriteString(lineBreaks.Replace(a.Message))
		b.WriteByte('\n')
	}
	data := []byte(b.String())

	if err := retryOnce(func() error { return l.writeFile(l.path, data) }); err != nil {
		return &IOError{Path: l.path, Err: err}
	}
	return nil
}

func retryOnce(fn func() error) error {
	if err := fn(); err == nil {
		return nil
	}
	return fn()
}

// replaceFile writes to a sibling temp file and renames it over path so a
// reader never sees a half-written log.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
