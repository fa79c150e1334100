package client

import (
	"fmt"
	"time"
)

// Outcome is the result of one start or stop step.
type Outcome struct {
	Server   string `json:"server"`
	Emulator string `json:"emulator"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Path     string `json:"path,omitempty"`
}

// SequenceResponse is returned by Start and Stop.
type SequenceResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Results []Outcome `json:"results"`
}

// EmulatorStatus reports one emulator. PID, MemoryMB and StartTime are set
// only while it runs.
type EmulatorStatus struct {
	Name      string     `json:"name"`
	Process   string     `json:"process"`
	IsRunning bool       `json:"isRunning"`
	PID       *int32     `json:"pid,omitempty"`
	MemoryMB  *float64   `json:"memoryMB,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	Error     string     `json:"error,omitempty"`
	Path      string     `json:"path"`
}

type ServerStatus struct {
	ID        string           `json:"serverId"`
	Name      string           `json:"serverName"`
	Path      string           `json:"serverPath"`
	Enabled   bool             `json:"enabled"`
	Emulators []EmulatorStatus `json:"emulators"`
}

// StatusResponse holds Servers for multi-server daemons and Emulators for
// single-server ones.
type StatusResponse struct {
	Timestamp time.Time        `json:"timestamp"`
	Servers   []ServerStatus   `json:"servers,omitempty"`
	Emulators []EmulatorStatus `json:"emulators,omitempty"`
}

// ServerSummary is one entry of the Info server list.
type ServerSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Enabled   bool   `json:"enabled"`
	Emulators int    `json:"emulators"`
}

// InfoResponse describes the daemon.
type InfoResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Port      int               `json:"port"`
	Servers   []ServerSummary   `json:"servers"`
	Endpoints map[string]string `json:"endpoints"`
	Examples  map[string]string `json:"examples"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}
