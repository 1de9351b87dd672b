// Package probe wraps the operating-system queries the audit loop depends on.
// Every query either returns its raw result or a *Error; an empty result with
// a nil error always means "ran fine, found nothing".
package probe

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// ErrUnsupported is returned when a probe kind cannot run on this host.
var ErrUnsupported = errors.New("probe not supported on this platform")

// Error is a query that failed to execute (tool missing, non-zero exit,
// permission denied). It is never used for an empty result.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// SystemProbe is the set of queries the detection loop needs.
type SystemProbe interface {
	// PollUSBEvent returns non-empty text iff a USB entry was logged since
	// the previous poll. Entries landing between two polls come back as one
	// combined result.
	PollUSBEvent(ctx context.Context) (string, error)
	DumpDeviceDescriptors(ctx context.Context) (string, error)
	SnapshotConnections(ctx context.Context) ([]string, error)
	ResolveHostname(ctx context.Context, ip string) (string, error)
	ResolveOwningProcess(ctx context.Context, ip string) (string, error)
}

// AuxProbe is implemented by probes that can feed the advanced checks.
type AuxProbe interface {
	ScanShellHistory(ctx context.Context, tokens []string) ([]string, error)
	ScanLaunchAgents(ctx context.Context, since time.Time) ([]string, error)
	RecentTerminalActivity(ctx context.Context, since time.Time) (string, error)
	ListLoginItems(ctx context.Context) ([]string, error)
}

const (
	KindAuto    = "auto"
	KindCommand = "command"
	KindLinux   = "linux"
)

// Open builds the probe for kind. "auto" picks the native Linux probe on
// Linux and the command-line probe elsewhere.
func Open(kind string, log *zap.Logger) (SystemProbe, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch kind {
	case KindAuto, "":
		if runtime.GOOS == "linux" {
			return openNative(log)
		}
		return NewCommandProbe(ExecRunner{}), nil
	case KindCommand:
		return NewCommandProbe(ExecRunner{}), nil
	case KindLinux:
		return openNative(log)
	default:
		return nil, fmt.Errorf("unknown probe kind %q", kind)
	}
}
