//go:build !unix

package sysutil

func Privileged() bool { return true }
