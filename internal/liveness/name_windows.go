//go:build windows

package liveness

import "strings"

// normalizeName drops the ".exe" suffix Windows reports so configured names
// match the way Task Manager and tasklist show them.
func normalizeName(n string) string {
	if len(n) > 4 && strings.EqualFold(n[len(n)-4:], ".exe") {
		return n[:len(n)-4]
	}
	return n
}
