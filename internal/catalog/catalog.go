package catalog

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// AllProfiles is the reserved selector that addresses every enabled profile.
const AllProfiles = "all"

// Process describes one controllable emulator.
// Exe is resolved relative to the owning profile's Path.
type Process struct {
	Name        string        `json:"name"`
	Exe         string        `json:"exe"`
	ProcessName string        `json:"process"`
	Delay       time.Duration `json:"delay"`
}

// Profile is an ordered group of processes sharing one install directory.
// Start walks Processes in order, stop walks them in reverse.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Enabled   bool      `json:"enabled"`
	Processes []Process `json:"emulators"`
}

// ExePath returns the absolute executable path of p inside the profile.
func (pr Profile) ExePath(p Process) string {
	if filepath.IsAbs(p.Exe) {
		return filepath.Clean(p.Exe)
	}
	return filepath.Join(pr.Path, p.Exe)
}

// Reversed returns the profile's processes in shutdown order.
func (pr Profile) Reversed() []Process {
	out := make([]Process, len(pr.Processes))
	for i, p := range pr.Processes {
		out[len(pr.Processes)-1-i] = p
	}
	return out
}

// Catalog is the read-only set of profiles loaded at startup.
// The zero value is an empty catalog.
type Catalog struct {
	profiles []Profile
	single   bool
}

// New validates profiles and builds a Catalog. The slice is copied.
func New(profiles []Profile) (*Catalog, error) {
	if len(profiles) == 0 {
		return nil, errors.New("catalog requires at least one server profile")
	}
	seen := make(map[string]struct{}, len(profiles))
	out := make([]Profile, 0, len(profiles))
	for i, p := range profiles {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("server #%d: id required", i+1)
		}
		if strings.EqualFold(id, AllProfiles) {
			return nil, fmt.Errorf("server #%d: id %q is reserved", i+1, id)
		}
		key := strings.ToLower(id)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate server id %q", id)
		}
		seen[key] = struct{}{}
		if err := validateProcesses(id, p.Processes); err != nil {
			return nil, err
		}
		p.ID = id
		if p.Path != "" {
			p.Path = filepath.Clean(p.Path)
		}
		p.Processes = append([]Process(nil), p.Processes...)
		out = append(out, p)
	}
	return &Catalog{profiles: out}, nil
}

// NewSingle builds a catalog holding exactly one always-enabled profile.
func NewSingle(p Profile) (*Catalog, error) {
	p.Enabled = true
	c, err := New([]Profile{p})
	if err != nil {
		return nil, err
	}
	c.single = true
	return c, nil
}

func validateProcesses(id string, ps []Process) error {
	if len(ps) == 0 {
		return fmt.Errorf("server %s: at least one emulator required", id)
	}
	for i, p := range ps {
		switch {
		case strings.TrimSpace(p.Name) == "":
			return fmt.Errorf("server %s emulator #%d: name required", id, i+1)
		case strings.TrimSpace(p.Exe) == "":
			return fmt.Errorf("server %s emulator %s: exe required", id, p.Name)
		case strings.TrimSpace(p.ProcessName) == "":
			return fmt.Errorf("server %s emulator %s: process required", id, p.Name)
		case p.Delay < 0:
			return fmt.Errorf("server %s emulator %s: delay must not be negative", id, p.Name)
		}
	}
	return nil
}

// Single reports whether the catalog was built for the single-profile deployment.
func (c *Catalog) Single() bool { return c != nil && c.single }

// Profiles returns all profiles in declaration order.
func (c *Catalog) Profiles() []Profile {
	if c == nil {
		return nil
	}
	out := make([]Profile, len(c.profiles))
	for i, p := range c.profiles {
		out[i] = p.clone()
	}
	return out
}

// Enabled returns the enabled profiles in declaration order.
func (c *Catalog) Enabled() []Profile {
	var out []Profile
	for _, p := range c.Profiles() {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Lookup finds a profile by id, ignoring case.
func (c *Catalog) Lookup(id string) (Profile, bool) {
	if c == nil {
		return Profile{}, false
	}
	for _, p := range c.profiles {
		if strings.EqualFold(p.ID, id) {
			return p.clone(), true
		}
	}
	return Profile{}, false
}

// Default returns the first profile; in single mode it is the only one.
func (c *Catalog) Default() (Profile, bool) {
	if c == nil || len(c.profiles) == 0 {
		return Profile{}, false
	}
	return c.profiles[0].clone(), true
}

// Len returns the number of profiles.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.profiles)
}

func (pr Profile) clone() Profile {
	pr.Processes = append([]Process(nil), pr.Processes...)
	return pr
}
