package lifecycle

import (
	"errors"
	"fmt"
)

// Status is the result of one lifecycle action on one emulator.
type Status string

const (
	StatusStarted        Status = "started"
	StatusAlreadyRunning Status = "already_running"
	StatusStopped        Status = "stopped"
	StatusNotRunning     Status = "not_running"
	StatusFileNotFound   Status = "file_not_found"
	StatusError          Status = "error"
)

// Outcome records what happened to one emulator during a start or stop.
// Message is set for StatusError, Path for StatusFileNotFound.
type Outcome struct {
	Server   string `json:"server"`
	Emulator string `json:"emulator"`
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Path     string `json:"path,omitempty"`
}

var (
	// ErrNotFound is returned when a server id is not in the catalog.
	ErrNotFound = errors.New("server not found")
	// ErrDisabled is returned when starting a disabled server.
	ErrDisabled = errors.New("server is disabled")
)

func notFound(id string) error { return fmt.Errorf("%w: '%s'", ErrNotFound, id) }
func disabled(id string) error { return fmt.Errorf("%w: '%s'", ErrDisabled, id) }

// Count tallies outcomes by status.
func Count(outs []Outcome) map[Status]int {
	m := make(map[Status]int)
	for _, o := range outs {
		m[o.Status]++
	}
	return m
}
