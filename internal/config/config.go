// Package config loads the WasteTrace configuration from
// ~/.wastetrace/config.toml. A missing file means defaults; a malformed
// file is an error rather than a silent fallback.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config is the full configuration tree.
type Config struct {
	API      APIConfig      `toml:"api"`
	Web      WebConfig      `toml:"web"`
	Services ServicesConfig `toml:"services"`
	Storage  StorageConfig  `toml:"storage"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// APIConfig is the backend server bind address.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// WebConfig is the dashboard server bind address.
type WebConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ServicesConfig points the client side at its upstream services.
type ServicesConfig struct {
	BackendURL  string `toml:"backend_url"`
	ClassifyURL string `toml:"classify_url"`
	GeocodeURL  string `toml:"geocode_url"`
}

// StorageConfig locates on-disk state.
type StorageConfig struct {
	DataDir  string `toml:"data_dir"`
	Database string `toml:"database"`
	Sessions string `toml:"sessions"`
}

// MetricsConfig gates the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{Host: "127.0.0.1", Port: 8000},
		Web: WebConfig{Host: "127.0.0.1", Port: 8080},
		Services: ServicesConfig{
			BackendURL:  "http://127.0.0.1:8000",
			ClassifyURL: "http://127.0.0.1:8001",
			GeocodeURL:  "https://nominatim.openstreetmap.org/reverse",
		},
		Storage: StorageConfig{
			DataDir:  Home(),
			Database: "wastetrace.db",
			Sessions: "sessions.json",
		},
		Metrics: MetricsConfig{Enabled: false},
	}
}

// Home returns the WasteTrace home directory. WASTETRACE_HOME overrides
// the default ~/.wastetrace.
func Home() string {
	if home := os.Getenv("WASTETRACE_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".wastetrace"
	}
	return filepath.Join(userHome, ".wastetrace")
}

// Load reads config.toml from the home directory, overlaying the file's
// values onto the defaults.
func Load() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(Home(), "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// APIAddr returns the backend listen address.
func (c Config) APIAddr() string {
	return net.JoinHostPort(c.API.Host, strconv.Itoa(c.API.Port))
}

// WebAddr returns the dashboard listen address.
func (c Config) WebAddr() string {
	return net.JoinHostPort(c.Web.Host, strconv.Itoa(c.Web.Port))
}

// DatabasePath returns the sqlite file location.
func (c Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.Database)
}

// SessionsPath returns the session persistence file location.
func (c Config) SessionsPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.Sessions)
}
