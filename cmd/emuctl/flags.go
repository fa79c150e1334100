package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PIDFile    string
	LogFile    string
}

// APIFlags holds the remote daemon connection used by client commands.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
	CACert     string
	Insecure   bool
	JSON       bool
}
