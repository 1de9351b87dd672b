//go:build unix

package sysutil

import "golang.org/x/sys/unix"

// Privileged reports whether we run as root. Without it the socket table
// hides other users' processes and every such connection looks unowned.
func Privileged() bool {
	return unix.Geteuid() == 0
}
