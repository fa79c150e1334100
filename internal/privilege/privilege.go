// Package privilege checks, once at startup, that the controller has the
// rights it needs to launch and terminate emulators.
package privilege

import "errors"

// ErrNotElevated is returned by Require when the process lacks admin rights.
var ErrNotElevated = errors.New("emuctl must run with administrator privileges")

// Require returns ErrNotElevated unless the current process is elevated.
func Require() error {
	ok, err := Elevated()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotElevated
	}
	return nil
}
