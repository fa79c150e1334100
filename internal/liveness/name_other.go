//go:build !windows

package liveness

func normalizeName(n string) string { return n }
