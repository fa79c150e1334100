package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/emuctl/internal/catalog"
	"github.com/loykin/emuctl/internal/logger"
)

// DefaultFile is loaded when no config path is given.
const DefaultFile = "emulators.json"

// DefaultPort is the control surface port when none is configured.
const DefaultPort = 8080

// EnvPrefix prefixes environment overrides, e.g. EMUCTL_PORT.
const EnvPrefix = "EMUCTL"

// SingleProfileID names the profile of a single-profile document.
const SingleProfileID = "default"

// EmulatorConfig is one emulator entry. Delay is in milliseconds.
type EmulatorConfig struct {
	Name    string `mapstructure:"name"`
	Exe     string `mapstructure:"exe"`
	Process string `mapstructure:"process"`
	Delay   int    `mapstructure:"delay"`
}

// ServerConfig is one server installation in a multi-profile document.
// $VAR and ${VAR} references in Path and emulator Exe are expanded from the
// environment.
type ServerConfig struct {
	ID        string           `mapstructure:"id"`
	Name      string           `mapstructure:"name"`
	Path      string           `mapstructure:"path"`
	Enabled   bool             `mapstructure:"enabled"`
	Emulators []EmulatorConfig `mapstructure:"emulators"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type TLSConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CertFile     string `mapstructure:"cert_file"`
	KeyFile      string `mapstructure:"key_file"`
	Dir          string `mapstructure:"dir"`
	AutoGenerate bool   `mapstructure:"auto_generate"`
}

// FileConfig mirrors the configuration document. A document either lists
// Servers or describes one installation through Path, Name and Emulators.
type FileConfig struct {
	Port         int    `mapstructure:"port"`
	Listen       string `mapstructure:"listen"`
	RequireAdmin bool   `mapstructure:"require_admin"`

	Servers []ServerConfig `mapstructure:"servers"`

	Path      string           `mapstructure:"path"`
	Name      string           `mapstructure:"name"`
	Emulators []EmulatorConfig `mapstructure:"emulators"`

	Log     logger.Config `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	TLS     TLSConfig     `mapstructure:"tls"`
}

// Config is the loaded, validated configuration.
type Config struct {
	File    string
	Catalog *catalog.Catalog
	Port    int
	Listen  string
	// RequireAdmin refuses to serve without elevated rights.
	RequireAdmin bool
	Log          logger.Config
	Metrics      MetricsConfig
	TLS          TLSConfig
}

// Addr is the control surface listen address.
func (c *Config) Addr() string {
	host := c.Listen
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}

// Load reads the document at path (DefaultFile when empty), applies
// EMUCTL_* overrides and builds the catalog.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType(configType(path))
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %s not found: %w", path, err)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg, err := build(fc)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.File = path
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("port", DefaultPort)
	v.SetDefault("listen", "")
	v.SetDefault("require_admin", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", true)
	v.SetDefault("metrics.listen", ":9090")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// keys without a default are only seen by Unmarshal when bound
	for _, k := range []string{"path", "name", "log.file", "log.emulator_dir", "metrics.enabled", "tls.enabled", "tls.dir", "tls.cert_file", "tls.key_file", "tls.auto_generate"} {
		_ = v.BindEnv(k)
	}
	return v
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func build(fc FileConfig) (*Config, error) {
	if fc.Port < 1 || fc.Port > 65535 {
		return nil, fmt.Errorf("port %d out of range 1-65535", fc.Port)
	}
	cat, err := buildCatalog(fc)
	if err != nil {
		return nil, err
	}
	return &Config{
		Catalog:      cat,
		Port:         fc.Port,
		Listen:       fc.Listen,
		RequireAdmin: fc.RequireAdmin,
		Log:          fc.Log,
		Metrics:      fc.Metrics,
		TLS:          fc.TLS,
	}, nil
}

func buildCatalog(fc FileConfig) (*catalog.Catalog, error) {
	if len(fc.Servers) > 0 {
		if len(fc.Emulators) > 0 {
			return nil, errors.New("config has both servers and top-level emulators")
		}
		profiles := make([]catalog.Profile, 0, len(fc.Servers))
		for _, s := range fc.Servers {
			profiles = append(profiles, catalog.Profile{
				ID:        s.ID,
				Name:      s.Name,
				Path:      os.ExpandEnv(s.Path),
				Enabled:   s.Enabled,
				Processes: processes(s.Emulators),
			})
		}
		return catalog.New(profiles)
	}
	if len(fc.Emulators) == 0 {
		return nil, errors.New("no servers configured")
	}
	if fc.Path == "" {
		return nil, errors.New("single-server config requires path")
	}
	name := fc.Name
	if name == "" {
		name = SingleProfileID
	}
	return catalog.NewSingle(catalog.Profile{
		ID:        SingleProfileID,
		Name:      name,
		Path:      os.ExpandEnv(fc.Path),
		Processes: processes(fc.Emulators),
	})
}

func processes(in []EmulatorConfig) []catalog.Process {
	out := make([]catalog.Process, 0, len(in))
	for _, e := range in {
		out = append(out, catalog.Process{
			Name:        e.Name,
			Exe:         os.ExpandEnv(e.Exe),
			ProcessName: e.Process,
			Delay:       time.Duration(e.Delay) * time.Millisecond,
		})
	}
	return out
}

// MissingDirs lists enabled profiles whose install directory does not exist.
func MissingDirs(cat *catalog.Catalog) []catalog.Profile {
	var out []catalog.Profile
	for _, p := range cat.Enabled() {
		if fi, err := os.Stat(p.Path); err != nil || !fi.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

// WarnMissingDirs logs a warning for every enabled profile without an
// install directory. Such profiles stay usable.
func WarnMissingDirs(logger *slog.Logger, cat *catalog.Catalog) {
	for _, p := range MissingDirs(cat) {
		logger.Warn("server directory not found", "server", p.ID, "name", p.Name, "path", p.Path)
	}
}
