//go:build windows

package privilege

import "golang.org/x/sys/windows"

// Elevated reports whether the process token is elevated, i.e. started with
// "Run as administrator". A UAC-filtered admin token is not elevated.
func Elevated() (bool, error) {
	return windows.GetCurrentProcessToken().IsElevated(), nil
}
