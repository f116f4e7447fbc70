package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config is ytmpd's top-level configuration, loaded from a TOML file.
//
// Fields map onto the options enumerated by the external interface: sync
// scheduling, the playlist name prefix, the ICY proxy's bind address and
// limits, and the filesystem/socket paths the daemon owns.
type Config struct {
	Catalog CatalogConfig `toml:"catalog"`
	Sync    SyncConfig    `toml:"sync"`
	Proxy   ProxyConfig   `toml:"proxy"`
	MPD     MPDConfig     `toml:"mpd"`
	Store   StoreConfig   `toml:"store"`
	Daemon  DaemonConfig  `toml:"daemon"`
}

// CatalogConfig contains credentials and endpoints for the remote catalog
// and stream resolver, both external collaborators.
type CatalogConfig struct {
	BaseURL     string `toml:"base_url"`
	APIKey      string `toml:"api_key"`
	ResolverURL string `toml:"resolver_url"`
}

// SyncConfig controls the periodic reconciliation pass.
type SyncConfig struct {
	IntervalMinutes int    `toml:"interval_minutes"`
	AutoSyncEnabled bool   `toml:"auto_sync_enabled"`
	PlaylistPrefix  string `toml:"playlist_prefix"`
}

// ProxyConfig controls the local ICY streaming proxy.
type ProxyConfig struct {
	Enabled              bool `toml:"enabled"`
	Host                 string `toml:"host"`
	Port                 int    `toml:"port"`
	MaxConcurrentStreams int    `toml:"max_concurrent_streams"`
	StreamCacheHours     int    `toml:"stream_cache_hours"`
}

// MPDConfig points at the MPD instance the wire client talks to.
type MPDConfig struct {
	SocketPath string `toml:"socket_path"`
}

// StoreConfig points at TrackStore's backing file.
type StoreConfig struct {
	Path string `toml:"path"`
}

// DaemonConfig contains the command socket and state-file paths owned by
// the supervising daemon.
type DaemonConfig struct {
	CommandSocketPath string `toml:"command_socket_path"`
	StatePath         string `toml:"state_path"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Expands ~ in file paths to the user's home directory and validates the
// result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	config.Store.Path = ExpandPath(config.Store.Path)
	config.MPD.SocketPath = ExpandPath(config.MPD.SocketPath)
	config.Daemon.CommandSocketPath = ExpandPath(config.Daemon.CommandSocketPath)
	config.Daemon.StatePath = ExpandPath(config.Daemon.StatePath)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the invariants the spec places on configuration: a
// positive sync interval and a sane proxy concurrency cap.
func (c *Config) Validate() error {
	if c.Sync.IntervalMinutes <= 0 {
		return fmt.Errorf("%w: sync.interval_minutes must be > 0", ErrInvalidConfig)
	}
	if c.Proxy.MaxConcurrentStreams <= 0 {
		return fmt.Errorf("%w: proxy.max_concurrent_streams must be > 0", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the
// embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using
// the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes a Config struct to a TOML file at the specified path.
func SaveConfig(path string, config *Config) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file for writing: %w", err)
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
