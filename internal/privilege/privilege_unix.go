//go:build !windows

package privilege

import "os"

// Elevated reports whether the effective user is root.
func Elevated() (bool, error) {
	return os.Geteuid() == 0, nil
}
