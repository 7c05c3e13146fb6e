//go:build !linux && !darwin && !freebsd

package logger

func isTerminal(uintptr) bool { return false }
